package core

import (
	"strings"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Grant is the tagged union of supported token exchange inputs. Every grant
// names the subject level the resulting credential belongs to.
type Grant interface {
	GrantType() string
	Subject() SubjectType
	Validate() error
}

// AuthorizationCodeGrant exchanges a single-use callback code. Codes are
// consumed on first use upstream, so callers key retries by the code value.
type AuthorizationCodeGrant struct {
	Code        string
	RedirectURI string
	SubjectType SubjectType
}

func (AuthorizationCodeGrant) GrantType() string { return GrantTypeAuthorizationCode }

func (g AuthorizationCodeGrant) Subject() SubjectType { return g.SubjectType }

func (g AuthorizationCodeGrant) Validate() error {
	if strings.TrimSpace(g.Code) == "" {
		return BadGrantError("core: authorization code is required")
	}
	if !g.SubjectType.Valid() {
		return BadGrantError("core: grant subject type is invalid")
	}
	return nil
}

type RefreshTokenGrant struct {
	RefreshToken string
	SubjectType  SubjectType
}

func (RefreshTokenGrant) GrantType() string { return GrantTypeRefreshToken }

func (g RefreshTokenGrant) Subject() SubjectType { return g.SubjectType }

func (g RefreshTokenGrant) Validate() error {
	if strings.TrimSpace(g.RefreshToken) == "" {
		return BadGrantError("core: refresh token is required")
	}
	if !g.SubjectType.Valid() {
		return BadGrantError("core: grant subject type is invalid")
	}
	return nil
}

var (
	_ Grant = AuthorizationCodeGrant{}
	_ Grant = RefreshTokenGrant{}
)
