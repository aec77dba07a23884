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

type ContactStore struct {
	db   *bun.DB
	repo repository.Repository[*contactRecord]
}

func NewContactStore(db *bun.DB) (*ContactStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*contactRecord](db, contactHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid contact repository wiring: %w", err)
		}
	}
	return &ContactStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *ContactStore) Upsert(ctx context.Context, in core.UpsertContactInput) (core.Contact, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Contact{}, fmt.Errorf("sqlstore: contact store is not configured")
	}
	in.ContactID = strings.TrimSpace(in.ContactID)
	in.LocationID = strings.TrimSpace(in.LocationID)
	if in.ContactID == "" || in.LocationID == "" {
		return core.Contact{}, fmt.Errorf("sqlstore: contact id and location id are required")
	}
	now := time.Now().UTC()

	var out core.Contact
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findContactTx(ctx, tx, in.ContactID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &contactRecord{
				ID:         in.ContactID,
				LocationID: in.LocationID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.LocationID = in.LocationID
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
		return core.Contact{}, err
	}

	return out, nil
}

func (s *ContactStore) Get(ctx context.Context, contactID string) (core.Contact, error) {
	if s == nil || s.repo == nil {
		return core.Contact{}, fmt.Errorf("sqlstore: contact store is not configured")
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return core.Contact{}, core.BadGrantError("sqlstore: contact id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", contactID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Contact{}, err
	}
	if len(records) == 0 {
		return core.Contact{}, core.NotFoundError("contact", contactID)
	}
	return records[0].toDomain(), nil
}

func findContactTx(ctx context.Context, tx bun.Tx, contactID string) (*contactRecord, error) {
	record := &contactRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(contactID)).
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

var _ core.ContactStore = (*ContactStore)(nil)
