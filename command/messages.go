package command

import (
	"fmt"
	"strings"
)

const (
	TypeInstallCompany  = "crm.command.install.company"
	TypeInstallLocation = "crm.command.install.location"
	TypeContactCreate   = "crm.command.contact.create"
	TypeRefreshSweep    = "crm.command.refresh.sweep"
)

type InstallCompanyMessage struct {
	Code        string
	RedirectURI string
}

func (InstallCompanyMessage) Type() string { return TypeInstallCompany }

func (m InstallCompanyMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	return nil
}

type InstallLocationMessage struct {
	CompanyID  string
	LocationID string
}

func (InstallLocationMessage) Type() string { return TypeInstallLocation }

func (m InstallLocationMessage) Validate() error {
	if strings.TrimSpace(m.CompanyID) == "" {
		return fmt.Errorf("command: company id is required")
	}
	if strings.TrimSpace(m.LocationID) == "" {
		return fmt.Errorf("command: location id is required")
	}
	return nil
}

type ContactCreateMessage struct {
	ContactID  string
	LocationID string
}

func (ContactCreateMessage) Type() string { return TypeContactCreate }

func (m ContactCreateMessage) Validate() error {
	if strings.TrimSpace(m.ContactID) == "" {
		return fmt.Errorf("command: contact id is required")
	}
	if strings.TrimSpace(m.LocationID) == "" {
		return fmt.Errorf("command: location id is required")
	}
	return nil
}

// RefreshSweepMessage triggers one sweep pass on demand. It carries no
// payload; the sweeper owns its window and budget.
type RefreshSweepMessage struct{}

func (RefreshSweepMessage) Type() string { return TypeRefreshSweep }

func (RefreshSweepMessage) Validate() error { return nil }
