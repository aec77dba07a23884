package core

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestUpstreamErrorKeepsStatusAndBody(t *testing.T) {
	err := UpstreamError(http.StatusBadGateway, `{"error":"upstream down"}`)

	if !IsUpstream(err) {
		t.Fatalf("expected upstream classification")
	}
	if got := UpstreamStatus(err); got != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", got)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors envelope")
	}
	if richErr.Metadata["upstream_body"] != `{"error":"upstream down"}` {
		t.Fatalf("expected body preserved, got %v", richErr.Metadata["upstream_body"])
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("company", "comp_1")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found classification")
	}
	if IsBadGrant(err) || IsUpstream(err) {
		t.Fatalf("not-found should not match other classes")
	}
	if err.Code != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d", err.Code)
	}
}

func TestInstallErrorMapperNormalizesPlainErrors(t *testing.T) {
	mapped := DefaultErrorMapper(errors.New("company \"comp_9\" not found"))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not-found category, got %v", mapped.Category)
	}
	if mapped.TextCode != InstallErrorNotFound {
		t.Fatalf("expected %s, got %s", InstallErrorNotFound, mapped.TextCode)
	}
}

func TestInstallErrorMapperPassesEnvelopesThrough(t *testing.T) {
	source := BadGrantError("core: authorization code is required")
	mapped := DefaultErrorMapper(source)
	if mapped.TextCode != InstallErrorBadGrant {
		t.Fatalf("expected bad grant code preserved, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 envelope, got %d", mapped.Code)
	}
}
