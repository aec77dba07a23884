package core

import (
	"strings"
	"time"
)

// SubjectType identifies which tenant level a credential belongs to.
type SubjectType string

const (
	SubjectCompany  SubjectType = "company"
	SubjectLocation SubjectType = "location"
)

func (t SubjectType) Valid() bool {
	switch t {
	case SubjectCompany, SubjectLocation:
		return true
	default:
		return false
	}
}

// Company is an agency-level tenant record keyed by the CRM company id.
type Company struct {
	CompanyID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	UserID       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location is a sub-account under a company, keyed by the CRM location id.
type Location struct {
	LocationID   string
	CompanyID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Contact struct {
	ContactID  string
	LocationID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential is the value returned by a token exchange. ExpiresAt is an
// absolute unix timestamp in seconds, computed at receipt time.
type Credential struct {
	SubjectType  SubjectType
	SubjectID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	UserID       string
}

// Expired reports whether the credential is past its expiry at the given
// instant. A zero ExpiresAt means the provider did not report a ttl.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return now.UTC().Unix() >= c.ExpiresAt
}

// LocationSummary is one entry from the installed-locations listing.
type LocationSummary struct {
	ID      string
	Name    string
	Address string
}

const (
	InstallEventKindCodeGrant = "code_grant"
	InstallEventKindWebhook   = "webhook"
)

// InstallEvent is the transient trigger for an installation flow. Code-grant
// events carry an authorization code through the callback surface; webhook
// events carry company and location ids.
type InstallEvent struct {
	Kind       string
	CompanyID  string
	LocationID string
	Code       string
}

type UpsertCompanyInput struct {
	CompanyID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	UserID       string
}

type UpsertLocationInput struct {
	LocationID   string
	CompanyID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

type UpsertContactInput struct {
	ContactID  string
	LocationID string
}

// SubjectKey is the advisory lock key for a credential subject.
func SubjectKey(subjectType SubjectType, subjectID string) string {
	return string(subjectType) + ":" + strings.TrimSpace(subjectID)
}
