package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/refresh"
	goerrors "github.com/goliatone/go-errors"
)

type stubInstallService struct {
	installCompanyFn func(ctx context.Context, code string, redirectURI string) (core.Company, error)
	installWebhookFn func(ctx context.Context, companyID string, locationID string) (core.Location, error)
}

func (s stubInstallService) InstallCompany(ctx context.Context, code string, redirectURI string) (core.Company, error) {
	if s.installCompanyFn == nil {
		return core.Company{}, fmt.Errorf("unexpected install company call")
	}
	return s.installCompanyFn(ctx, code, redirectURI)
}

func (s stubInstallService) InstallFromWebhook(ctx context.Context, companyID string, locationID string) (core.Location, error) {
	if s.installWebhookFn == nil {
		return core.Location{}, fmt.Errorf("unexpected install from webhook call")
	}
	return s.installWebhookFn(ctx, companyID, locationID)
}

type stubContactService struct {
	handleFn func(ctx context.Context, contactID string, locationID string) (core.Contact, error)
}

func (s stubContactService) HandleContactCreate(ctx context.Context, contactID string, locationID string) (core.Contact, error) {
	if s.handleFn == nil {
		return core.Contact{}, fmt.Errorf("unexpected contact create call")
	}
	return s.handleFn(ctx, contactID, locationID)
}

type stubRefreshService struct {
	sweepFn func(ctx context.Context) (refresh.Report, error)
}

func (s stubRefreshService) Sweep(ctx context.Context) (refresh.Report, error) {
	if s.sweepFn == nil {
		return refresh.Report{}, fmt.Errorf("unexpected sweep call")
	}
	return s.sweepFn(ctx)
}

func TestInstallCompanyCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Company{
		CompanyID:    "comp_1",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	}
	called := false

	svc := stubInstallService{
		installCompanyFn: func(_ context.Context, code string, redirectURI string) (core.Company, error) {
			called = true
			if code != "auth-code-1" || redirectURI != "https://app.example.com/oauth/callback" {
				t.Fatalf("unexpected install payload: %q %q", code, redirectURI)
			}
			return expected, nil
		},
	}

	cmd := NewInstallCompanyCommand(svc)
	collector := gocmd.NewResult[core.Company]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, InstallCompanyMessage{
		Code:        "auth-code-1",
		RedirectURI: "https://app.example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("execute install company: %v", err)
	}
	if !called {
		t.Fatalf("expected install service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.CompanyID != expected.CompanyID || result.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestInstallLocationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Location{LocationID: "loc_1", CompanyID: "comp_1"}
	called := false

	svc := stubInstallService{
		installWebhookFn: func(_ context.Context, companyID string, locationID string) (core.Location, error) {
			called = true
			if companyID != "comp_1" || locationID != "loc_1" {
				t.Fatalf("unexpected install location payload: %q %q", companyID, locationID)
			}
			return expected, nil
		},
	}

	cmd := NewInstallLocationCommand(svc)
	collector := gocmd.NewResult[core.Location]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, InstallLocationMessage{CompanyID: "comp_1", LocationID: "loc_1"}); err != nil {
		t.Fatalf("execute install location: %v", err)
	}
	if !called {
		t.Fatalf("expected install from webhook invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected location result")
	}
	if result.LocationID != expected.LocationID || result.CompanyID != expected.CompanyID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestContactCreateCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Contact{ContactID: "cont_1", LocationID: "loc_1"}
	called := false

	svc := stubContactService{
		handleFn: func(_ context.Context, contactID string, locationID string) (core.Contact, error) {
			called = true
			if contactID != "cont_1" || locationID != "loc_1" {
				t.Fatalf("unexpected contact payload: %q %q", contactID, locationID)
			}
			return expected, nil
		},
	}

	cmd := NewContactCreateCommand(svc)
	collector := gocmd.NewResult[core.Contact]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, ContactCreateMessage{ContactID: "cont_1", LocationID: "loc_1"}); err != nil {
		t.Fatalf("execute contact create: %v", err)
	}
	if !called {
		t.Fatalf("expected contact service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected contact result")
	}
	if result.ContactID != expected.ContactID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRefreshSweepCommand_ExecuteStoresReport(t *testing.T) {
	expected := refresh.Report{Companies: 2, Locations: 3, Refreshed: 4, Failed: 1}

	svc := stubRefreshService{
		sweepFn: func(context.Context) (refresh.Report, error) {
			return expected, nil
		},
	}

	cmd := NewRefreshSweepCommand(svc)
	collector := gocmd.NewResult[refresh.Report]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RefreshSweepMessage{}); err != nil {
		t.Fatalf("execute refresh sweep: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected sweep report")
	}
	if result.Refreshed != expected.Refreshed || result.Failed != expected.Failed {
		t.Fatalf("unexpected report: %#v", result)
	}
}

func TestCommands_ValidationFailuresAreBadInput(t *testing.T) {
	cases := []struct {
		name    string
		execute func() error
	}{
		{
			name: "install company missing code",
			execute: func() error {
				cmd := NewInstallCompanyCommand(stubInstallService{})
				return cmd.Execute(context.Background(), InstallCompanyMessage{Code: "   "})
			},
		},
		{
			name: "install location missing company",
			execute: func() error {
				cmd := NewInstallLocationCommand(stubInstallService{})
				return cmd.Execute(context.Background(), InstallLocationMessage{LocationID: "loc_1"})
			},
		},
		{
			name: "contact create missing contact",
			execute: func() error {
				cmd := NewContactCreateCommand(stubContactService{})
				return cmd.Execute(context.Background(), ContactCreateMessage{LocationID: "loc_1"})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.execute()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var richErr *goerrors.Error
			if !goerrors.As(err, &richErr) {
				t.Fatalf("expected structured error, got %T", err)
			}
			if richErr.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %v", richErr.Category)
			}
			if richErr.TextCode != core.InstallErrorBadGrant {
				t.Fatalf("unexpected text code %q", richErr.TextCode)
			}
		})
	}
}

func TestCommands_MissingServiceIsDependencyError(t *testing.T) {
	cases := []struct {
		name    string
		execute func() error
	}{
		{
			name: "install company",
			execute: func() error {
				return NewInstallCompanyCommand(nil).Execute(context.Background(), InstallCompanyMessage{Code: "c"})
			},
		},
		{
			name: "install location",
			execute: func() error {
				return NewInstallLocationCommand(nil).Execute(context.Background(), InstallLocationMessage{CompanyID: "c", LocationID: "l"})
			},
		},
		{
			name: "contact create",
			execute: func() error {
				return NewContactCreateCommand(nil).Execute(context.Background(), ContactCreateMessage{ContactID: "c", LocationID: "l"})
			},
		},
		{
			name: "refresh sweep",
			execute: func() error {
				return NewRefreshSweepCommand(nil).Execute(context.Background(), RefreshSweepMessage{})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.execute()
			if err == nil {
				t.Fatalf("expected dependency error")
			}
			var richErr *goerrors.Error
			if !goerrors.As(err, &richErr) {
				t.Fatalf("expected structured error, got %T", err)
			}
			if richErr.Category != goerrors.CategoryInternal {
				t.Fatalf("expected internal category, got %v", richErr.Category)
			}
		})
	}
}

func TestCommands_ServiceErrorsPropagate(t *testing.T) {
	boom := fmt.Errorf("upstream exploded")
	svc := stubInstallService{
		installCompanyFn: func(context.Context, string, string) (core.Company, error) {
			return core.Company{}, boom
		},
	}
	cmd := NewInstallCompanyCommand(svc)
	err := cmd.Execute(context.Background(), InstallCompanyMessage{Code: "auth-code"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error to propagate, got %v", err)
	}
}
