package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	InstallErrorBadGrant  = "INSTALL_BAD_GRANT"
	InstallErrorUpstream  = "INSTALL_UPSTREAM"
	InstallErrorNotFound  = "INSTALL_NOT_FOUND"
	InstallErrorConflict  = "INSTALL_REFRESH_LOCKED"
	InstallErrorOperation = "INSTALL_OPERATION_FAILED"
	InstallErrorInternal  = "INSTALL_INTERNAL_ERROR"
)

// BadGrantError marks malformed exchange input. These are fatal and never
// retried.
func BadGrantError(message string) *goerrors.Error {
	return ensureInstallErrorEnvelope(
		goerrors.New(message, goerrors.CategoryValidation).
			WithTextCode(InstallErrorBadGrant),
	)
}

// UpstreamError wraps a non-2xx response from the CRM platform. Status and
// body are preserved for callers that decide on retry.
func UpstreamError(status int, body string) *goerrors.Error {
	return ensureInstallErrorEnvelope(
		goerrors.New(
			fmt.Sprintf("core: upstream request failed (%d)", status),
			goerrors.CategoryOperation,
		).
			WithTextCode(InstallErrorUpstream).
			WithMetadata(map[string]any{
				"upstream_status": status,
				"upstream_body":   strings.TrimSpace(body),
			}),
	)
}

// NotFoundError marks a missing persisted record. Fatal for the current
// invocation; a later event for the same subject may still succeed.
func NotFoundError(kind string, id string) *goerrors.Error {
	return ensureInstallErrorEnvelope(
		goerrors.New(
			fmt.Sprintf("core: %s %q not found", kind, strings.TrimSpace(id)),
			goerrors.CategoryNotFound,
		).
			WithTextCode(InstallErrorNotFound).
			WithMetadata(map[string]any{
				"record_kind": kind,
				"record_id":   strings.TrimSpace(id),
			}),
	)
}

func IsBadGrant(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryValidation ||
		richErr.Category == goerrors.CategoryBadInput
}

func IsNotFound(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryNotFound
}

func IsUpstream(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(richErr.TextCode, InstallErrorUpstream)
}

// UpstreamStatus returns the recorded status code for an upstream error, or
// zero when the error did not come from the platform.
func UpstreamStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0
	}
	if richErr.Metadata == nil {
		return 0
	}
	if status, ok := richErr.Metadata["upstream_status"].(int); ok {
		return status
	}
	return 0
}

func installErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureInstallErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newInstallError(err.Error(), goerrors.CategoryNotFound, InstallErrorNotFound)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "refresh lock"):
		return newInstallError(err.Error(), goerrors.CategoryConflict, InstallErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newInstallError(err.Error(), goerrors.CategoryBadInput, InstallErrorBadGrant)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureInstallErrorEnvelope(mapped)
}

func newInstallError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureInstallErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureInstallErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = installHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultInstallTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultInstallTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return InstallErrorBadGrant
	case goerrors.CategoryNotFound:
		return InstallErrorNotFound
	case goerrors.CategoryConflict:
		return InstallErrorConflict
	case goerrors.CategoryOperation:
		return InstallErrorOperation
	default:
		return InstallErrorInternal
	}
}

func installHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
