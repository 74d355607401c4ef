package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/carecircle-dispatch/internal/access"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

func TestAccessIntegration_CheckPermission(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{
		checkFn: func(_ context.Context, req access.AccessRequest) bool {
			if req.RequestingUserType != domain.UserTypeSecondary || req.DataType != domain.DataCategoryHealthRecords {
				t.Fatalf("unexpected request %+v", req)
			}
			if req.Action != domain.ActionRead {
				t.Fatalf("action = %q, want read default", req.Action)
			}
			return true
		},
	}
	app := newTestApp(t, resolver, nil, nil)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/access/check",
		`{"requestingUserId":"s1","requestingUserType":"secondary","targetUserId":"p1","dataType":"healthrecords"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}

	var parsed accessCheckResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Allowed || parsed.DataType != "healthRecords" || parsed.Action != "read" {
		t.Fatalf("unexpected response %+v", parsed)
	}
}

func TestAccessIntegration_CheckPermissionValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &stubResolver{}, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"requestingUserId":`},
		{name: "missing target", body: `{"requestingUserId":"s1","requestingUserType":"secondary","dataType":"vitals"}`},
		{name: "unknown user type", body: `{"requestingUserId":"s1","requestingUserType":"admin","targetUserId":"p1","dataType":"vitals"}`},
		{name: "unknown category", body: `{"requestingUserId":"s1","requestingUserType":"secondary","targetUserId":"p1","dataType":"genome"}`},
		{name: "unknown action", body: `{"requestingUserId":"s1","requestingUserType":"secondary","targetUserId":"p1","dataType":"vitals","action":"share"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := performRequest(t, app, http.MethodPost, "/v1/access/check", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, body)
			}
		})
	}
}

func TestAccessIntegration_CheckBatch(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{
		checkManyFn: func(_ context.Context, _ string, _ domain.UserType, _ string, categories []domain.DataCategory, _ domain.Action) map[domain.DataCategory]bool {
			out := make(map[domain.DataCategory]bool, len(categories))
			for _, c := range categories {
				out[c] = c == domain.DataCategoryVitals
			}
			return out
		},
	}
	app := newTestApp(t, resolver, nil, nil)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/access/check-batch",
		`{"requestingUserId":"s1","requestingUserType":"secondary","targetUserId":"p1","dataTypes":["vitals","medications"]}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}
	var parsed accessBatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Permissions["vitals"] || parsed.Permissions["medications"] {
		t.Fatalf("unexpected permissions %+v", parsed.Permissions)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/access/check-batch",
		`{"requestingUserId":"s1","requestingUserType":"secondary","targetUserId":"p1","dataTypes":[]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty dataTypes", resp.StatusCode)
	}
}

func TestAccessIntegration_GetEffectivePermissions(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{
		effectiveFn: func(_ context.Context, secondaryUserID, primaryUserID string) (*domain.PermissionSet, error) {
			switch secondaryUserID {
			case "s1":
				p := domain.DefaultPermissions
				return &p, nil
			case "broken":
				return nil, errors.New("dynamodb unavailable")
			}
			return nil, nil
		},
	}
	app := newTestApp(t, resolver, nil, nil)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/care-circles/p1/members/s1/permissions", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}
	var parsed effectivePermissionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Permissions != domain.DefaultPermissions || parsed.PrimaryUserID != "p1" {
		t.Fatalf("unexpected response %+v", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/care-circles/p1/members/stranger/permissions", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for non-member", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/care-circles/p1/members/broken/permissions", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for lookup failure", resp.StatusCode)
	}
}

func TestAccessIntegration_ListAccessAudit(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{
		historyFn: func(_ context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error) {
			if targetUserID != "p1" || limit != 10 {
				t.Fatalf("target = %q limit = %d", targetUserID, limit)
			}
			return []domain.AccessAuditEntry{{
				ID:                 "audit-1",
				RequestingUserID:   "s1",
				RequestingUserType: domain.UserTypeSecondary,
				TargetUserID:       "p1",
				DataType:           domain.DataCategoryVitals,
				Action:             domain.ActionRead,
				Allowed:            false,
				Reason:             domain.ReasonCareCircleMembership,
				CreatedAt:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
	app := newTestApp(t, resolver, nil, nil)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/users/p1/access-audit?limit=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}
	var parsed struct {
		Data []accessAuditResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Reason != "care-circle-membership" {
		t.Fatalf("unexpected response %+v", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/users/p1/access-audit?limit=0", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid limit", resp.StatusCode)
	}
}
