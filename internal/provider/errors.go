package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ProviderError classifies provider call failures as transient/permanent.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	if e.Provider != "" {
		parts = append(parts, e.Provider+" provider error")
	} else {
		parts = append(parts, "provider error")
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	if transientAWSError(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

var transientAWSCodes = map[string]struct{}{
	"Throttling":                  {},
	"ThrottlingException":         {},
	"ThrottledException":          {},
	"TooManyRequestsException":    {},
	"RequestLimitExceeded":        {},
	"LimitExceededException":      {},
	"InternalError":               {},
	"InternalFailure":             {},
	"InternalErrorException":      {},
	"ServiceUnavailable":          {},
	"ServiceUnavailableException": {},
	"KMSThrottlingException":      {},
}

func transientAWSError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientAWSCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return isTransientHTTPStatus(respErr.HTTPStatusCode())
	}

	return false
}

// classifyAWSError wraps an SDK error so callers only deal with ProviderError.
func classifyAWSError(providerName string, err error) error {
	if err == nil {
		return nil
	}

	pErr := &ProviderError{
		Provider:  providerName,
		Transient: transientAWSError(err) || errors.Is(err, context.DeadlineExceeded),
		Cause:     err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pErr.Code = apiErr.ErrorCode()
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		pErr.StatusCode = respErr.HTTPStatusCode()
	}

	if !pErr.Transient && pErr.Code == "" && pErr.StatusCode == 0 && !errors.Is(err, context.Canceled) {
		// No API response at all: connection level failure.
		var netErr net.Error
		pErr.Transient = errors.As(err, &netErr)
	}

	return pErr
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
