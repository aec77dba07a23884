package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-install/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Enricher runs after a contact row is persisted. Implementations can call
// back into the CRM with the location credential to pull the full contact
// record.
type Enricher interface {
	EnrichContact(ctx context.Context, contact core.Contact, location core.Location) error
}

// Handler persists contacts announced by webhook events. A contact is only
// accepted for a location that is installed, since downstream work needs that
// location's credential.
type Handler struct {
	locations core.LocationStore
	contacts  core.ContactStore
	enricher  Enricher
	logger    core.Logger
}

type Option func(*Handler)

func WithEnricher(enricher Enricher) Option {
	return func(h *Handler) {
		h.enricher = enricher
	}
}

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(locations core.LocationStore, contacts core.ContactStore, options ...Option) (*Handler, error) {
	if locations == nil {
		return nil, fmt.Errorf("contacts: location store is required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contacts: contact store is required")
	}
	handler := &Handler{
		locations: locations,
		contacts:  contacts,
	}
	for _, option := range options {
		if option != nil {
			option(handler)
		}
	}
	_, handler.logger = glog.Resolve("crm-install.contacts", nil, handler.logger)
	return handler, nil
}

// HandleContactCreate records the contact under its location. The upsert is
// keyed by contact id, so webhook redeliveries converge on one row.
func (h *Handler) HandleContactCreate(
	ctx context.Context,
	contactID string,
	locationID string,
) (core.Contact, error) {
	if h == nil || h.locations == nil || h.contacts == nil {
		return core.Contact{}, fmt.Errorf("contacts: handler is not configured")
	}
	contactID = strings.TrimSpace(contactID)
	locationID = strings.TrimSpace(locationID)
	if contactID == "" || locationID == "" {
		return core.Contact{}, core.BadGrantError("contacts: contact id and location id are required")
	}

	location, err := h.locations.Get(ctx, locationID)
	if err != nil {
		return core.Contact{}, err
	}

	contact, err := h.contacts.Upsert(ctx, core.UpsertContactInput{
		ContactID:  contactID,
		LocationID: locationID,
	})
	if err != nil {
		return core.Contact{}, err
	}

	if h.enricher != nil {
		if err := h.enricher.EnrichContact(ctx, contact, location); err != nil {
			// Enrichment is best effort; the contact row is already durable.
			h.logger.Warn("contact enrichment failed",
				"contact_id", contactID,
				"location_id", locationID,
				"error", err,
			)
		}
	}

	h.logger.Info("contact recorded", "contact_id", contactID, "location_id", locationID)
	return contact, nil
}
