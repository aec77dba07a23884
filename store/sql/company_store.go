package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-install/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type CompanyStore struct {
	db   *bun.DB
	repo repository.Repository[*companyRecord]
}

func NewCompanyStore(db *bun.DB) (*CompanyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*companyRecord](db, companyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid company repository wiring: %w", err)
		}
	}
	return &CompanyStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert writes the credential for a company, keyed by the platform company
// id. Select-then-write inside a transaction keeps redeliveries convergent.
func (s *CompanyStore) Upsert(ctx context.Context, in core.UpsertCompanyInput) (core.Company, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Company{}, fmt.Errorf("sqlstore: company store is not configured")
	}
	in.CompanyID = strings.TrimSpace(in.CompanyID)
	in.AccessToken = strings.TrimSpace(in.AccessToken)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.CompanyID == "" {
		return core.Company{}, fmt.Errorf("sqlstore: company id is required")
	}
	if in.AccessToken == "" {
		return core.Company{}, fmt.Errorf("sqlstore: access token is required")
	}
	now := time.Now().UTC()

	var out core.Company
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findCompanyTx(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &companyRecord{
				ID:           in.CompanyID,
				AccessToken:  in.AccessToken,
				RefreshToken: in.RefreshToken,
				ExpiresAt:    expiresAtColumn(in.ExpiresAt),
				UserID:       in.UserID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.AccessToken = in.AccessToken
		existing.RefreshToken = in.RefreshToken
		existing.ExpiresAt = expiresAtColumn(in.ExpiresAt)
		if in.UserID != "" {
			existing.UserID = in.UserID
		}
		existing.UpdatedAt = now

		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Company{}, err
	}

	return out, nil
}

func (s *CompanyStore) Get(ctx context.Context, companyID string) (core.Company, error) {
	if s == nil || s.repo == nil {
		return core.Company{}, fmt.Errorf("sqlstore: company store is not configured")
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return core.Company{}, core.BadGrantError("sqlstore: company id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", companyID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Company{}, err
	}
	if len(records) == 0 {
		return core.Company{}, core.NotFoundError("company", companyID)
	}
	return records[0].toDomain(), nil
}

// ListExpiring returns companies whose credential expires strictly before
// the given unix timestamp. Rows without an expiry never refresh.
func (s *CompanyStore) ListExpiring(ctx context.Context, before int64) ([]core.Company, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: company store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.expires_at IS NOT NULL").
				Where("?TableAlias.expires_at < ?", before)
		}),
		repository.OrderBy("expires_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Company, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findCompanyTx(ctx context.Context, tx bun.Tx, companyID string) (*companyRecord, error) {
	record := &companyRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(companyID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}

var _ core.CompanyStore = (*CompanyStore)(nil)
