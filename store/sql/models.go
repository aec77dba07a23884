package sqlstore

import (
	"time"

	"github.com/goliatone/go-crm-install/core"
	"github.com/uptrace/bun"
)

type companyRecord struct {
	bun.BaseModel `bun:"table:crm_companies,alias:cc"`

	ID           string    `bun:"id,pk"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token"`
	ExpiresAt    *int64    `bun:"expires_at,nullzero"`
	UserID       string    `bun:"user_id"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *companyRecord) toDomain() core.Company {
	if r == nil {
		return core.Company{}
	}
	company := core.Company{
		CompanyID:    r.ID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		company.ExpiresAt = *r.ExpiresAt
	}
	return company
}

type locationRecord struct {
	bun.BaseModel `bun:"table:crm_locations,alias:cl"`

	ID           string    `bun:"id,pk"`
	CompanyID    string    `bun:"company_id,notnull"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token"`
	ExpiresAt    *int64    `bun:"expires_at,nullzero"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *locationRecord) toDomain() core.Location {
	if r == nil {
		return core.Location{}
	}
	location := core.Location{
		LocationID:   r.ID,
		CompanyID:    r.CompanyID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		location.ExpiresAt = *r.ExpiresAt
	}
	return location
}

type contactRecord struct {
	bun.BaseModel `bun:"table:crm_contacts,alias:cct"`

	ID         string    `bun:"id,pk"`
	LocationID string    `bun:"location_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *contactRecord) toDomain() core.Contact {
	if r == nil {
		return core.Contact{}
	}
	return core.Contact{
		ContactID:  r.ID,
		LocationID: r.LocationID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func expiresAtColumn(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}
