package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCareCircleRepo struct {
	getMemberFn   func(ctx context.Context, primaryUserID, secondaryUserID string) (*domain.CareCircleMember, error)
	listMembersFn func(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error)
}

func (f *fakeCareCircleRepo) GetMember(ctx context.Context, primaryUserID, secondaryUserID string) (*domain.CareCircleMember, error) {
	if f.getMemberFn != nil {
		return f.getMemberFn(ctx, primaryUserID, secondaryUserID)
	}
	return nil, nil
}

func (f *fakeCareCircleRepo) ListMembers(ctx context.Context, primaryUserID string) ([]domain.CareCircleMember, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx, primaryUserID)
	}
	return nil, nil
}

type fakeAuditRepo struct {
	mu       sync.Mutex
	entries  []domain.AccessAuditEntry
	recordFn func(ctx context.Context, entry *domain.AccessAuditEntry) error
}

func (f *fakeAuditRepo) RecordAccess(ctx context.Context, entry *domain.AccessAuditEntry) error {
	f.mu.Lock()
	f.entries = append(f.entries, *entry)
	f.mu.Unlock()
	if f.recordFn != nil {
		return f.recordFn(ctx, entry)
	}
	return nil
}

func (f *fakeAuditRepo) ListByTargetUser(_ context.Context, targetUserID string, limit int) ([]domain.AccessAuditEntry, error) {
	out := make([]domain.AccessAuditEntry, 0)
	for _, e := range f.all() {
		if e.TargetUserID == targetUserID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) all() []domain.AccessAuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AccessAuditEntry(nil), f.entries...)
}

func memberRepo(members ...domain.CareCircleMember) *fakeCareCircleRepo {
	return &fakeCareCircleRepo{
		getMemberFn: func(_ context.Context, primaryUserID, secondaryUserID string) (*domain.CareCircleMember, error) {
			for i := range members {
				if members[i].PrimaryUserID == primaryUserID && members[i].SecondaryUserID == secondaryUserID {
					m := members[i]
					return &m, nil
				}
			}
			return nil, nil
		},
	}
}

func newTestResolver(members *fakeCareCircleRepo, audit *fakeAuditRepo) *Resolver {
	r := NewResolver(members, audit, zap.NewNop(), observability.NewMetrics())
	r.now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestCheckPermission_SelfAccess(t *testing.T) {
	t.Parallel()

	members := &fakeCareCircleRepo{
		getMemberFn: func(context.Context, string, string) (*domain.CareCircleMember, error) {
			t.Fatal("self access must not consult the care circle")
			return nil, nil
		},
	}
	audit := &fakeAuditRepo{}
	r := newTestResolver(members, audit)

	for _, category := range domain.AllDataCategories {
		allowed := r.CheckPermission(context.Background(), AccessRequest{
			RequestingUserID:   "p1",
			RequestingUserType: domain.UserTypePrimary,
			TargetUserID:       "p1",
			DataType:           category,
		})
		if !allowed {
			t.Fatalf("self access to %s should be allowed", category)
		}
	}

	entries := audit.all()
	if len(entries) != len(domain.AllDataCategories) {
		t.Fatalf("expected one audit entry per check, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Reason != domain.ReasonSelfAccess || !e.Allowed || e.Action != domain.ActionRead {
			t.Fatalf("unexpected audit entry: %+v", e)
		}
	}
}

func TestCheckPermission_PrimaryCannotReadOtherPrimary(t *testing.T) {
	t.Parallel()

	audit := &fakeAuditRepo{}
	// Even a stray membership row must not grant a primary user access to another primary.
	r := newTestResolver(memberRepo(domain.CareCircleMember{
		PrimaryUserID:   "p2",
		SecondaryUserID: "p1",
		Permissions:     domain.FullAccessPermissions,
	}), audit)

	allowed := r.CheckPermission(context.Background(), AccessRequest{
		RequestingUserID:   "p1",
		RequestingUserType: domain.UserTypePrimary,
		TargetUserID:       "p2",
		DataType:           domain.DataCategoryVitals,
	})
	if allowed {
		t.Fatal("primary must not read another primary's data")
	}
	if got := audit.all()[0].Reason; got != domain.ReasonCrossUserAccess {
		t.Fatalf("reason = %q, want %q", got, domain.ReasonCrossUserAccess)
	}
}

func TestCheckPermission_NonMemberDenied(t *testing.T) {
	t.Parallel()

	audit := &fakeAuditRepo{}
	r := newTestResolver(memberRepo(), audit)

	for _, category := range domain.AllDataCategories {
		if r.CheckPermission(context.Background(), AccessRequest{
			RequestingUserID:   "stranger",
			RequestingUserType: domain.UserTypeSecondary,
			TargetUserID:       "p1",
			DataType:           category,
		}) {
			t.Fatalf("non-member must be denied %s", category)
		}
	}
	for _, e := range audit.all() {
		if e.Reason != domain.ReasonCareCircleMembership || e.Allowed {
			t.Fatalf("unexpected audit entry: %+v", e)
		}
	}
}

func TestCheckPermission_ReadsExactlyOneBit(t *testing.T) {
	t.Parallel()

	for _, granted := range domain.AllDataCategories {
		t.Run(string(granted), func(t *testing.T) {
			t.Parallel()

			key, err := domain.RequiredPermission(granted)
			if err != nil {
				t.Fatalf("RequiredPermission() error = %v", err)
			}
			perms := permissionSetWith(key)

			audit := &fakeAuditRepo{}
			r := newTestResolver(memberRepo(domain.CareCircleMember{
				PrimaryUserID:   "p1",
				SecondaryUserID: "s1",
				Permissions:     perms,
			}), audit)

			for _, asked := range domain.AllDataCategories {
				got := r.CheckPermission(context.Background(), AccessRequest{
					RequestingUserID:   "s1",
					RequestingUserType: domain.UserTypeSecondary,
					TargetUserID:       "p1",
					DataType:           asked,
				})
				if want := asked == granted; got != want {
					t.Fatalf("grant %s, ask %s: allowed = %v, want %v", granted, asked, got, want)
				}
			}

			for _, e := range audit.all() {
				if e.Reason != domain.ReasonCareCirclePermission {
					t.Fatalf("reason = %q", e.Reason)
				}
				if e.Permissions == nil || *e.Permissions != perms {
					t.Fatalf("audit must carry the evaluated permission set: %+v", e.Permissions)
				}
				if want, _ := domain.RequiredPermission(e.DataType); e.PermissionChecked != want {
					t.Fatalf("PermissionChecked = %q, want %q", e.PermissionChecked, want)
				}
			}
		})
	}
}

func TestCheckPermission_Idempotent(t *testing.T) {
	t.Parallel()

	r := newTestResolver(memberRepo(domain.CareCircleMember{
		PrimaryUserID:   "p1",
		SecondaryUserID: "s1",
		Permissions:     domain.LimitedPermissions,
	}), &fakeAuditRepo{})

	req := AccessRequest{
		RequestingUserID:   "s1",
		RequestingUserType: domain.UserTypeSecondary,
		TargetUserID:       "p1",
		DataType:           domain.DataCategoryAppointments,
	}
	first := r.CheckPermission(context.Background(), req)
	for i := 0; i < 5; i++ {
		if got := r.CheckPermission(context.Background(), req); got != first {
			t.Fatalf("call %d returned %v, first returned %v", i+2, got, first)
		}
	}
	if !first {
		t.Fatal("limited preset grants appointments")
	}
}

func TestCheckPermission_FailsClosed(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("dynamodb unavailable")

	testCases := []struct {
		name    string
		members *fakeCareCircleRepo
		req     AccessRequest
	}{
		{
			name: "membership lookup error",
			members: &fakeCareCircleRepo{getMemberFn: func(context.Context, string, string) (*domain.CareCircleMember, error) {
				return nil, lookupErr
			}},
			req: AccessRequest{RequestingUserID: "s1", RequestingUserType: domain.UserTypeSecondary, TargetUserID: "p1", DataType: domain.DataCategoryVitals},
		},
		{
			name: "unknown data category",
			members: memberRepo(domain.CareCircleMember{
				PrimaryUserID: "p1", SecondaryUserID: "s1", Permissions: domain.FullAccessPermissions,
			}),
			req: AccessRequest{RequestingUserID: "s1", RequestingUserType: domain.UserTypeSecondary, TargetUserID: "p1", DataType: "genome"},
		},
		{
			name:    "unknown user type",
			members: memberRepo(),
			req:     AccessRequest{RequestingUserID: "x", RequestingUserType: "admin", TargetUserID: "x", DataType: domain.DataCategoryVitals},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.ErrorLevel)
			audit := &fakeAuditRepo{}
			r := NewResolver(tc.members, audit, zap.New(core), nil)

			if r.CheckPermission(context.Background(), tc.req) {
				t.Fatal("expected denial")
			}

			entries := audit.all()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one audit entry, got %d", len(entries))
			}
			if entries[0].Reason != domain.ReasonError || entries[0].Error == "" || entries[0].Allowed {
				t.Fatalf("unexpected audit entry: %+v", entries[0])
			}
			if logs.FilterMessage("permission check failed, denying").Len() != 1 {
				t.Fatal("expected error log for failed check")
			}
		})
	}
}

func TestCheckPermission_AuditFailureDoesNotChangeDecision(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	audit := &fakeAuditRepo{recordFn: func(context.Context, *domain.AccessAuditEntry) error {
		return errors.New("postgres down")
	}}
	r := NewResolver(memberRepo(domain.CareCircleMember{
		PrimaryUserID: "p1", SecondaryUserID: "s1", Permissions: domain.DefaultPermissions,
	}), audit, zap.New(core), nil)

	allowed := r.CheckPermission(context.Background(), AccessRequest{
		RequestingUserID:   "s1",
		RequestingUserType: domain.UserTypeSecondary,
		TargetUserID:       "p1",
		DataType:           domain.DataCategoryVitals,
	})
	if !allowed {
		t.Fatal("decision must survive audit failure")
	}
	if logs.FilterMessage("failed to write access audit entry").Len() != 1 {
		t.Fatal("expected audit failure to be logged")
	}
}

func TestCheckMultiplePermissions_PartialGrant(t *testing.T) {
	t.Parallel()

	audit := &fakeAuditRepo{}
	r := newTestResolver(memberRepo(domain.CareCircleMember{
		PrimaryUserID: "p1", SecondaryUserID: "s1", Permissions: domain.LimitedPermissions,
	}), audit)

	got := r.CheckMultiplePermissions(context.Background(), "s1", domain.UserTypeSecondary, "p1",
		[]domain.DataCategory{domain.DataCategoryVitals, domain.DataCategoryAppointments, domain.DataCategoryAlerts},
		domain.ActionRead,
	)

	want := map[domain.DataCategory]bool{
		domain.DataCategoryVitals:       false,
		domain.DataCategoryAppointments: true,
		domain.DataCategoryAlerts:       true,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for category, allowed := range want {
		if got[category] != allowed {
			t.Fatalf("%s: allowed = %v, want %v", category, got[category], allowed)
		}
	}
	if len(audit.all()) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(audit.all()))
	}
}

func TestGetEffectivePermissions(t *testing.T) {
	t.Parallel()

	r := newTestResolver(memberRepo(domain.CareCircleMember{
		PrimaryUserID: "p1", SecondaryUserID: "s1", Permissions: domain.DefaultPermissions,
	}), &fakeAuditRepo{})

	perms, err := r.GetEffectivePermissions(context.Background(), "s1", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perms == nil || *perms != domain.DefaultPermissions {
		t.Fatalf("unexpected permissions: %+v", perms)
	}

	perms, err = r.GetEffectivePermissions(context.Background(), "stranger", "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perms != nil {
		t.Fatalf("expected nil for non-member, got %+v", perms)
	}
}

func TestGetEffectivePermissions_LookupError(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("timeout")
	r := newTestResolver(&fakeCareCircleRepo{getMemberFn: func(context.Context, string, string) (*domain.CareCircleMember, error) {
		return nil, lookupErr
	}}, &fakeAuditRepo{})

	if _, err := r.GetEffectivePermissions(context.Background(), "s1", "p1"); !errors.Is(err, lookupErr) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func permissionSetWith(keys ...domain.PermissionKey) domain.PermissionSet {
	var p domain.PermissionSet
	for _, k := range keys {
		switch k {
		case domain.PermissionViewVitals:
			p.CanViewVitals = true
		case domain.PermissionViewMedications:
			p.CanViewMedications = true
		case domain.PermissionViewAppointments:
			p.CanViewAppointments = true
		case domain.PermissionViewHealthRecords:
			p.CanViewHealthRecords = true
		case domain.PermissionReceiveAlerts:
			p.CanReceiveAlerts = true
		case domain.PermissionSendMessages:
			p.CanSendMessages = true
		case domain.PermissionManageDevices:
			p.CanManageDevices = true
		}
	}
	return p
}

func TestAccessHistory_ReturnsRecordedDecisions(t *testing.T) {
	t.Parallel()

	audit := &fakeAuditRepo{}
	r := NewResolver(&fakeCareCircleRepo{}, audit, nil, nil)
	ctx := context.Background()

	r.CheckPermission(ctx, AccessRequest{
		RequestingUserID:   "p1",
		RequestingUserType: domain.UserTypePrimary,
		TargetUserID:       "p1",
		DataType:           domain.DataCategoryVitals,
	})
	r.CheckPermission(ctx, AccessRequest{
		RequestingUserID:   "s1",
		RequestingUserType: domain.UserTypeSecondary,
		TargetUserID:       "p2",
		DataType:           domain.DataCategoryVitals,
	})

	history, err := r.AccessHistory(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 entry for p1, got %d", len(history))
	}
	if history[0].Reason != domain.ReasonSelfAccess || !history[0].Allowed {
		t.Fatalf("unexpected entry: %+v", history[0])
	}
}

func TestAccessHistory_NoAuditRepository(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeCareCircleRepo{}, nil, nil, nil)
	history, err := r.AccessHistory(context.Background(), "p1", 10)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v, %v", history, err)
	}
}
