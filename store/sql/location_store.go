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

type LocationStore struct {
	db   *bun.DB
	repo repository.Repository[*locationRecord]
}

func NewLocationStore(db *bun.DB) (*LocationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*locationRecord](db, locationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid location repository wiring: %w", err)
		}
	}
	return &LocationStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *LocationStore) Upsert(ctx context.Context, in core.UpsertLocationInput) (core.Location, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Location{}, fmt.Errorf("sqlstore: location store is not configured")
	}
	in.LocationID = strings.TrimSpace(in.LocationID)
	in.CompanyID = strings.TrimSpace(in.CompanyID)
	in.AccessToken = strings.TrimSpace(in.AccessToken)
	if in.LocationID == "" {
		return core.Location{}, fmt.Errorf("sqlstore: location id is required")
	}
	if in.AccessToken == "" {
		return core.Location{}, fmt.Errorf("sqlstore: access token is required")
	}
	now := time.Now().UTC()

	var out core.Location
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findLocationTx(ctx, tx, in.LocationID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &locationRecord{
				ID:           in.LocationID,
				CompanyID:    in.CompanyID,
				AccessToken:  in.AccessToken,
				RefreshToken: in.RefreshToken,
				ExpiresAt:    expiresAtColumn(in.ExpiresAt),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		if in.CompanyID != "" {
			existing.CompanyID = in.CompanyID
		}
		existing.AccessToken = in.AccessToken
		existing.RefreshToken = in.RefreshToken
		existing.ExpiresAt = expiresAtColumn(in.ExpiresAt)
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
		return core.Location{}, err
	}

	return out, nil
}

func (s *LocationStore) Get(ctx context.Context, locationID string) (core.Location, error) {
	if s == nil || s.repo == nil {
		return core.Location{}, fmt.Errorf("sqlstore: location store is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return core.Location{}, core.BadGrantError("sqlstore: location id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", locationID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Location{}, err
	}
	if len(records) == 0 {
		return core.Location{}, core.NotFoundError("location", locationID)
	}
	return records[0].toDomain(), nil
}

func (s *LocationStore) ListExpiring(ctx context.Context, before int64) ([]core.Location, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: location store is not configured")
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
	out := make([]core.Location, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ListByCompany supports operational tooling that inspects a company's
// installed locations.
func (s *LocationStore) ListByCompany(ctx context.Context, companyID string) ([]core.Location, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: location store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("company_id", "=", strings.TrimSpace(companyID)),
		repository.OrderBy("id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Location, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findLocationTx(ctx context.Context, tx bun.Tx, locationID string) (*locationRecord, error) {
	record := &locationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(locationID)).
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

var _ core.LocationStore = (*LocationStore)(nil)
