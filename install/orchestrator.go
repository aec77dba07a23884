package install

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-install/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultChunkSize = 100

// Orchestrator drives company installation: code exchange, company upsert,
// then the per-location fan-out.
type Orchestrator struct {
	exchanger core.CredentialExchanger
	directory core.LocationDirectory
	companies core.CompanyStore
	installer *LocationInstaller
	tasks     core.TaskQueue
	chunkSize int
	queueName string
	logger    core.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithChunkSize(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

func WithQueueName(name string) OrchestratorOption {
	return func(o *Orchestrator) {
		if strings.TrimSpace(name) != "" {
			o.queueName = strings.TrimSpace(name)
		}
	}
}

func WithLogger(logger core.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(
	exchanger core.CredentialExchanger,
	directory core.LocationDirectory,
	companies core.CompanyStore,
	installer *LocationInstaller,
	tasks core.TaskQueue,
	options ...OrchestratorOption,
) (*Orchestrator, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("install: credential exchanger is required")
	}
	if companies == nil {
		return nil, fmt.Errorf("install: company store is required")
	}
	if installer == nil {
		return nil, fmt.Errorf("install: location installer is required")
	}
	orchestrator := &Orchestrator{
		exchanger: exchanger,
		directory: directory,
		companies: companies,
		installer: installer,
		tasks:     tasks,
		chunkSize: defaultChunkSize,
	}
	for _, option := range options {
		if option != nil {
			option(orchestrator)
		}
	}
	_, orchestrator.logger = glog.Resolve("crm-install.orchestrator", nil, orchestrator.logger)
	return orchestrator, nil
}

// InstallCompany runs the code-grant install flow. The location fan-out is
// fire-and-forget: the company install succeeds once its credential is
// persisted, and location batches complete independently.
func (o *Orchestrator) InstallCompany(ctx context.Context, code string, redirectURI string) (core.Company, error) {
	if o == nil || o.exchanger == nil || o.companies == nil {
		return core.Company{}, fmt.Errorf("install: orchestrator is not configured")
	}

	credential, err := o.exchanger.Exchange(ctx, core.AuthorizationCodeGrant{
		Code:        code,
		RedirectURI: redirectURI,
		SubjectType: core.SubjectCompany,
	})
	if err != nil {
		return core.Company{}, err
	}

	company, err := o.companies.Upsert(ctx, core.UpsertCompanyInput{
		CompanyID:    credential.SubjectID,
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		ExpiresAt:    credential.ExpiresAt,
		UserID:       credential.UserID,
	})
	if err != nil {
		return core.Company{}, err
	}

	o.logger.Info("company installed", "company_id", company.CompanyID)

	if err := o.fanOutLocations(ctx, company); err != nil {
		// The company credential is already durable; the listing or enqueue
		// failure only delays location installs until the next install event.
		o.logger.Error("location fan-out failed", "company_id", company.CompanyID, "error", err)
	}
	return company, nil
}

// InstallFromWebhook handles an INSTALL event that names a location. The
// company row must exist; a missing company is fatal for this delivery.
func (o *Orchestrator) InstallFromWebhook(ctx context.Context, companyID string, locationID string) (core.Location, error) {
	if o == nil || o.companies == nil || o.installer == nil {
		return core.Location{}, fmt.Errorf("install: orchestrator is not configured")
	}
	companyID = strings.TrimSpace(companyID)
	locationID = strings.TrimSpace(locationID)
	if companyID == "" || locationID == "" {
		return core.Location{}, core.BadGrantError("install: company id and location id are required")
	}

	company, err := o.companies.Get(ctx, companyID)
	if err != nil {
		return core.Location{}, err
	}
	if strings.TrimSpace(company.AccessToken) == "" {
		return core.Location{}, core.NotFoundError("company credential", companyID)
	}

	return o.installer.InstallLocation(ctx, companyID, locationID, company.AccessToken)
}

func (o *Orchestrator) fanOutLocations(ctx context.Context, company core.Company) error {
	if o.directory == nil || o.tasks == nil {
		return nil
	}
	locations, err := o.directory.ListInstalledLocations(ctx, company.CompanyID, company.AccessToken)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return nil
	}

	for _, batch := range chunkLocations(locations, o.chunkSize) {
		msgs := make([]*core.TaskMessage, 0, len(batch))
		for _, location := range batch {
			msgs = append(msgs, &core.TaskMessage{
				TaskID: TaskInstallLocation,
				Queue:  o.queueName,
				Parameters: map[string]any{
					ParamCompanyID:  company.CompanyID,
					ParamLocationID: location.ID,
				},
				IdempotencyKey: company.CompanyID + ":" + location.ID,
			})
		}
		if err := o.tasks.BatchEnqueue(ctx, msgs); err != nil {
			return err
		}
	}
	o.logger.Info("location installs enqueued",
		"company_id", company.CompanyID,
		"locations", len(locations),
	)
	return nil
}
