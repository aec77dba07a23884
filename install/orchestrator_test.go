package install

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-crm-install/core"
)

type fakeExchanger struct {
	credential core.Credential
	err        error
	grants     []core.Grant
}

func (f *fakeExchanger) Exchange(_ context.Context, grant core.Grant) (core.Credential, error) {
	f.grants = append(f.grants, grant)
	if err := grant.Validate(); err != nil {
		return core.Credential{}, err
	}
	if f.err != nil {
		return core.Credential{}, f.err
	}
	return f.credential, nil
}

type fakeDirectory struct {
	locations []core.LocationSummary
	err       error
	calls     int
}

func (f *fakeDirectory) ListInstalledLocations(context.Context, string, string) ([]core.LocationSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.locations, nil
}

type fakeCompanyStore struct {
	companies map[string]core.Company
	upserts   int
}

func newFakeCompanyStore() *fakeCompanyStore {
	return &fakeCompanyStore{companies: map[string]core.Company{}}
}

func (f *fakeCompanyStore) Upsert(_ context.Context, in core.UpsertCompanyInput) (core.Company, error) {
	f.upserts++
	company := core.Company{
		CompanyID:    in.CompanyID,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt,
		UserID:       in.UserID,
	}
	f.companies[in.CompanyID] = company
	return company, nil
}

func (f *fakeCompanyStore) Get(_ context.Context, companyID string) (core.Company, error) {
	company, ok := f.companies[companyID]
	if !ok {
		return core.Company{}, core.NotFoundError("company", companyID)
	}
	return company, nil
}

func (f *fakeCompanyStore) ListExpiring(context.Context, int64) ([]core.Company, error) {
	return nil, nil
}

type fakeLocationStore struct {
	locations map[string]core.Location
	upserts   int
}

func newFakeLocationStore() *fakeLocationStore {
	return &fakeLocationStore{locations: map[string]core.Location{}}
}

func (f *fakeLocationStore) Upsert(_ context.Context, in core.UpsertLocationInput) (core.Location, error) {
	f.upserts++
	location := core.Location{
		LocationID:   in.LocationID,
		CompanyID:    in.CompanyID,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt,
	}
	f.locations[in.LocationID] = location
	return location, nil
}

func (f *fakeLocationStore) Get(_ context.Context, locationID string) (core.Location, error) {
	location, ok := f.locations[locationID]
	if !ok {
		return core.Location{}, core.NotFoundError("location", locationID)
	}
	return location, nil
}

func (f *fakeLocationStore) ListExpiring(context.Context, int64) ([]core.Location, error) {
	return nil, nil
}

type fakeTokenExchanger struct {
	credential core.Credential
	err        error
	calls      int
}

func (f *fakeTokenExchanger) ExchangeLocationToken(
	_ context.Context,
	_ string,
	locationID string,
	companyToken string,
) (core.Credential, error) {
	f.calls++
	if strings.TrimSpace(companyToken) == "" {
		return core.Credential{}, core.BadGrantError("install: company access token is required")
	}
	if f.err != nil {
		return core.Credential{}, f.err
	}
	credential := f.credential
	if credential.SubjectID == "" {
		credential.SubjectID = locationID
	}
	return credential, nil
}

type fakeTaskQueue struct {
	messages []*core.TaskMessage
	err      error
}

func (f *fakeTaskQueue) Enqueue(_ context.Context, msg *core.TaskMessage) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeTaskQueue) EnqueueAndAwait(_ context.Context, msg *core.TaskMessage) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, msg)
	return map[string]any{}, nil
}

func (f *fakeTaskQueue) BatchEnqueue(ctx context.Context, msgs []*core.TaskMessage) error {
	for _, msg := range msgs {
		if err := f.Enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func newTestOrchestrator(
	t *testing.T,
	exchanger *fakeExchanger,
	directory *fakeDirectory,
	companies *fakeCompanyStore,
	locations *fakeLocationStore,
	tokens *fakeTokenExchanger,
	tasks *fakeTaskQueue,
) *Orchestrator {
	t.Helper()
	installer, err := NewLocationInstaller(tokens, locations, nil)
	if err != nil {
		t.Fatalf("new installer: %v", err)
	}
	orchestrator, err := NewOrchestrator(exchanger, directory, companies, installer, tasks)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orchestrator
}

func TestInstallCompanyFansOutLocationBatches(t *testing.T) {
	exchanger := &fakeExchanger{credential: core.Credential{
		SubjectType:  core.SubjectCompany,
		SubjectID:    "comp_1",
		AccessToken:  "company-at",
		RefreshToken: "company-rt",
		ExpiresAt:    1_700_086_400,
		UserID:       "user_1",
	}}
	directory := &fakeDirectory{locations: makeLocations(250)}
	companies := newFakeCompanyStore()
	tasks := &fakeTaskQueue{}
	orchestrator := newTestOrchestrator(t, exchanger, directory, companies, newFakeLocationStore(), &fakeTokenExchanger{}, tasks)

	company, err := orchestrator.InstallCompany(context.Background(), "code-123", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("install company: %v", err)
	}
	if company.CompanyID != "comp_1" {
		t.Fatalf("unexpected company id %q", company.CompanyID)
	}
	if companies.upserts != 1 {
		t.Fatalf("expected one company upsert, got %d", companies.upserts)
	}
	if len(tasks.messages) != 250 {
		t.Fatalf("expected 250 install-location tasks, got %d", len(tasks.messages))
	}
	for _, msg := range tasks.messages {
		if msg.TaskID != TaskInstallLocation {
			t.Fatalf("unexpected task id %q", msg.TaskID)
		}
		if msg.IdempotencyKey == "" {
			t.Fatalf("expected idempotency key on fan-out task")
		}
	}
}

func TestInstallCompanyFanOutFailureDoesNotFailInstall(t *testing.T) {
	exchanger := &fakeExchanger{credential: core.Credential{
		SubjectType: core.SubjectCompany,
		SubjectID:   "comp_1",
		AccessToken: "company-at",
		ExpiresAt:   1_700_086_400,
	}}
	directory := &fakeDirectory{err: errors.New("listing down")}
	companies := newFakeCompanyStore()
	orchestrator := newTestOrchestrator(t, exchanger, directory, companies, newFakeLocationStore(), &fakeTokenExchanger{}, &fakeTaskQueue{})

	if _, err := orchestrator.InstallCompany(context.Background(), "code-123", ""); err != nil {
		t.Fatalf("company install must survive fan-out failure: %v", err)
	}
	if companies.upserts != 1 {
		t.Fatalf("expected company persisted, got %d upserts", companies.upserts)
	}
}

func TestInstallCompanyRejectsEmptyCodeBeforeAnyWork(t *testing.T) {
	exchanger := &fakeExchanger{}
	companies := newFakeCompanyStore()
	orchestrator := newTestOrchestrator(t, exchanger, &fakeDirectory{}, companies, newFakeLocationStore(), &fakeTokenExchanger{}, &fakeTaskQueue{})

	_, err := orchestrator.InstallCompany(context.Background(), "   ", "")
	if !core.IsBadGrant(err) {
		t.Fatalf("expected bad grant, got %v", err)
	}
	if companies.upserts != 0 {
		t.Fatalf("no store writes expected on bad grant")
	}
}

func TestInstallFromWebhookRequiresExistingCompany(t *testing.T) {
	tokens := &fakeTokenExchanger{}
	orchestrator := newTestOrchestrator(t, &fakeExchanger{}, &fakeDirectory{}, newFakeCompanyStore(), newFakeLocationStore(), tokens, &fakeTaskQueue{})

	_, err := orchestrator.InstallFromWebhook(context.Background(), "comp_missing", "loc_1")
	if !core.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if tokens.calls != 0 {
		t.Fatalf("no token exchange expected when company is missing")
	}
}

func TestInstallFromWebhookInstallsLocationWithCompanyToken(t *testing.T) {
	companies := newFakeCompanyStore()
	if _, err := companies.Upsert(context.Background(), core.UpsertCompanyInput{
		CompanyID:   "comp_1",
		AccessToken: "company-at",
		ExpiresAt:   1_700_086_400,
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	locations := newFakeLocationStore()
	tokens := &fakeTokenExchanger{credential: core.Credential{
		SubjectType:  core.SubjectLocation,
		AccessToken:  "loc-at",
		RefreshToken: "loc-rt",
		ExpiresAt:    1_700_090_000,
	}}
	orchestrator := newTestOrchestrator(t, &fakeExchanger{}, &fakeDirectory{}, companies, locations, tokens, &fakeTaskQueue{})

	location, err := orchestrator.InstallFromWebhook(context.Background(), "comp_1", "loc_1")
	if err != nil {
		t.Fatalf("install from webhook: %v", err)
	}
	if location.LocationID != "loc_1" || location.CompanyID != "comp_1" {
		t.Fatalf("unexpected location %+v", location)
	}
	if tokens.calls != 1 {
		t.Fatalf("expected one token exchange, got %d", tokens.calls)
	}
	if locations.upserts != 1 {
		t.Fatalf("expected one location upsert, got %d", locations.upserts)
	}
}

func TestInstallFromWebhookIsIdempotent(t *testing.T) {
	companies := newFakeCompanyStore()
	_, _ = companies.Upsert(context.Background(), core.UpsertCompanyInput{
		CompanyID:   "comp_1",
		AccessToken: "company-at",
	})
	locations := newFakeLocationStore()
	tokens := &fakeTokenExchanger{credential: core.Credential{AccessToken: "loc-at", ExpiresAt: 1_700_090_000}}
	orchestrator := newTestOrchestrator(t, &fakeExchanger{}, &fakeDirectory{}, companies, locations, tokens, &fakeTaskQueue{})

	for i := 0; i < 3; i++ {
		if _, err := orchestrator.InstallFromWebhook(context.Background(), "comp_1", "loc_1"); err != nil {
			t.Fatalf("repeat install %d: %v", i, err)
		}
	}
	if len(locations.locations) != 1 {
		t.Fatalf("expected a single location row, got %d", len(locations.locations))
	}
}
