package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/refresh"
)

// InstallService is the mutating surface the install commands drive.
type InstallService interface {
	InstallCompany(ctx context.Context, code string, redirectURI string) (core.Company, error)
	InstallFromWebhook(ctx context.Context, companyID string, locationID string) (core.Location, error)
}

type ContactService interface {
	HandleContactCreate(ctx context.Context, contactID string, locationID string) (core.Contact, error)
}

type RefreshService interface {
	Sweep(ctx context.Context) (refresh.Report, error)
}

type InstallCompanyCommand struct {
	service InstallService
}

func NewInstallCompanyCommand(service InstallService) *InstallCompanyCommand {
	return &InstallCompanyCommand{service: service}
}

func (c *InstallCompanyCommand) Execute(ctx context.Context, msg InstallCompanyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: install service is required")
	}
	if err := commandWrapValidation(msg.Validate(), "command: invalid install company message"); err != nil {
		return err
	}
	out, err := c.service.InstallCompany(ctx, msg.Code, msg.RedirectURI)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type InstallLocationCommand struct {
	service InstallService
}

func NewInstallLocationCommand(service InstallService) *InstallLocationCommand {
	return &InstallLocationCommand{service: service}
}

func (c *InstallLocationCommand) Execute(ctx context.Context, msg InstallLocationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: install service is required")
	}
	if err := commandWrapValidation(msg.Validate(), "command: invalid install location message"); err != nil {
		return err
	}
	out, err := c.service.InstallFromWebhook(ctx, msg.CompanyID, msg.LocationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ContactCreateCommand struct {
	service ContactService
}

func NewContactCreateCommand(service ContactService) *ContactCreateCommand {
	return &ContactCreateCommand{service: service}
}

func (c *ContactCreateCommand) Execute(ctx context.Context, msg ContactCreateMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: contact service is required")
	}
	if err := commandWrapValidation(msg.Validate(), "command: invalid contact create message"); err != nil {
		return err
	}
	out, err := c.service.HandleContactCreate(ctx, msg.ContactID, msg.LocationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshSweepCommand struct {
	service RefreshService
}

func NewRefreshSweepCommand(service RefreshService) *RefreshSweepCommand {
	return &RefreshSweepCommand{service: service}
}

func (c *RefreshSweepCommand) Execute(ctx context.Context, _ RefreshSweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Sweep(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
