package install

// Task identifiers for the background queue. Handle-install runs the full
// company install; install-location is the per-location fan-out unit.
const (
	TaskHandleInstall      = "crm.install.company"
	TaskInstallLocation    = "crm.install.location"
	TaskContactCreate      = "crm.contact.create"
	TaskExchangeCredential = "crm.credential.exchange"
)

// Parameter keys shared by task producers and handlers.
const (
	ParamCode         = "code"
	ParamRedirectURI  = "redirect_uri"
	ParamCompanyID    = "company_id"
	ParamLocationID   = "location_id"
	ParamContactID    = "contact_id"
	ParamGrantType    = "grant_type"
	ParamRefreshToken = "refresh_token"
	ParamSubjectType  = "subject_type"
)
