package crminstall

import "github.com/goliatone/go-crm-install/core"

type Config = core.Config

type OAuthConfig = core.OAuthConfig

type InstallConfig = core.InstallConfig

type RefreshConfig = core.RefreshConfig

type Company = core.Company
type Location = core.Location
type Contact = core.Contact
type Credential = core.Credential

type CompanyStore = core.CompanyStore
type LocationStore = core.LocationStore
type ContactStore = core.ContactStore
type TaskQueue = core.TaskQueue
type SubjectLocker = core.SubjectLocker
type IdempotencyClaimStore = core.IdempotencyClaimStore

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult

func DefaultConfig() Config {
	return core.DefaultConfig()
}
