package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Record ids are the CRM platform's external identifiers, not UUIDs; the
// uuid accessors exist for the repository contract and fall back to Nil.

func companyHandlers() repository.ModelHandlers[*companyRecord] {
	return repository.ModelHandlers[*companyRecord]{
		NewRecord: func() *companyRecord {
			return &companyRecord{}
		},
		GetID: func(record *companyRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *companyRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *companyRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func locationHandlers() repository.ModelHandlers[*locationRecord] {
	return repository.ModelHandlers[*locationRecord]{
		NewRecord: func() *locationRecord {
			return &locationRecord{}
		},
		GetID: func(record *locationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *locationRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *locationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func contactHandlers() repository.ModelHandlers[*contactRecord] {
	return repository.ModelHandlers[*contactRecord]{
		NewRecord: func() *contactRecord {
			return &contactRecord{}
		},
		GetID: func(record *contactRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *contactRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *contactRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
