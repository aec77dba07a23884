package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/install"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	SurfaceWebhook = "webhook"

	EventTypeContactCreate = "CONTACTCREATE"
	EventTypeInstall       = "INSTALL"
)

// Event is the decoded webhook payload. Field names follow the platform's
// JSON keys.
type Event struct {
	Type       string `json:"type"`
	CompanyID  string `json:"companyId"`
	LocationID string `json:"locationId"`
	ContactID  string `json:"id"`
	Challenge  string `json:"challenge"`
}

type IdempotencyKeyExtractor func(req core.InboundRequest) (string, error)

// Dispatcher classifies webhook deliveries and enqueues the matching
// background task. Acks are cheap: unrecognized event kinds and install
// events without a location id return 200 so the platform stops redelivering
// them.
type Dispatcher struct {
	Tasks      core.TaskQueue
	Store      core.IdempotencyClaimStore
	ExtractKey IdempotencyKeyExtractor
	KeyTTL     time.Duration
	Queue      string

	logger core.Logger
}

func NewDispatcher(tasks core.TaskQueue, store core.IdempotencyClaimStore, logger core.Logger) *Dispatcher {
	_, logger = glog.Resolve("crm-install.inbound", nil, logger)
	return &Dispatcher{
		Tasks:      tasks,
		Store:      store,
		ExtractKey: DefaultIdempotencyKeyExtractor,
		KeyTTL:     10 * time.Minute,
		logger:     logger,
	}
}

func (d *Dispatcher) Surface() string { return SurfaceWebhook }

// Handle processes one delivery. A verification request (challenge present)
// short-circuits with a verbatim echo. Enqueue failures surface as
// retryable: the transport answers 500 with an empty body so the platform
// redelivers.
func (d *Dispatcher) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil || d.Tasks == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is not configured", nil)
	}

	if challenge := challengeValue(req); challenge != "" {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Body:       []byte(challenge),
			Metadata:   map[string]any{"verification": true},
		}, nil
	}

	var event Event
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusInternalServerError,
			}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: decode webhook payload",
				http.StatusInternalServerError,
				core.InstallErrorOperation,
				map[string]any{"surface": SurfaceWebhook},
			)
	}

	// Subscription verification sends the challenge in the payload body.
	if strings.TrimSpace(event.Challenge) != "" {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Body:       []byte(event.Challenge),
			Metadata:   map[string]any{"verification": true},
		}, nil
	}

	claimID := ""
	if d.Store != nil {
		extractor := d.ExtractKey
		if extractor == nil {
			extractor = DefaultIdempotencyKeyExtractor
		}
		key, err := extractor(req)
		if err != nil || strings.TrimSpace(key) == "" {
			key = eventFallbackKey(event)
		}
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, SurfaceWebhook+":"+key, d.keyTTL())
		if err != nil {
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.InstallErrorOperation,
				map[string]any{"idempotency": key},
			)
		}
		if !accepted {
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   map[string]any{"deduped": true},
			}, nil
		}
	}

	msg, ack := d.classify(event)
	if msg == nil {
		d.completeClaim(ctx, claimID)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"ignored": true, "event_type": event.Type, "reason": ack},
		}, nil
	}

	if err := d.Tasks.Enqueue(ctx, msg); err != nil {
		d.failClaim(ctx, claimID, err)
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusInternalServerError,
			}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: enqueue webhook task",
				http.StatusInternalServerError,
				core.InstallErrorOperation,
				map[string]any{"task": msg.TaskID, "event_type": event.Type},
			)
	}

	d.completeClaim(ctx, claimID)
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   map[string]any{"task": msg.TaskID, "event_type": event.Type},
	}, nil
}

// classify maps an event to its task message. A nil message with a reason
// means the delivery is acked without work.
func (d *Dispatcher) classify(event Event) (*core.TaskMessage, string) {
	eventType := strings.ToUpper(strings.TrimSpace(event.Type))
	switch eventType {
	case EventTypeContactCreate:
		contactID := strings.TrimSpace(event.ContactID)
		locationID := strings.TrimSpace(event.LocationID)
		if contactID == "" || locationID == "" {
			d.logger.Warn("contact event missing ids", "contact_id", contactID, "location_id", locationID)
			return nil, "missing contact or location id"
		}
		return &core.TaskMessage{
			TaskID: install.TaskContactCreate,
			Queue:  d.Queue,
			Parameters: map[string]any{
				install.ParamContactID:  contactID,
				install.ParamLocationID: locationID,
			},
			IdempotencyKey: contactID + ":" + locationID,
		}, ""
	case EventTypeInstall:
		locationID := strings.TrimSpace(event.LocationID)
		if locationID == "" {
			// Company-level installs arrive through the OAuth callback; the
			// webhook variant only matters for locations.
			d.logger.Info("install event without location id ignored", "company_id", event.CompanyID)
			return nil, "install without location id"
		}
		return &core.TaskMessage{
			TaskID: install.TaskInstallLocation,
			Queue:  d.Queue,
			Parameters: map[string]any{
				install.ParamCompanyID:  strings.TrimSpace(event.CompanyID),
				install.ParamLocationID: locationID,
			},
			IdempotencyKey: strings.TrimSpace(event.CompanyID) + ":" + locationID,
		}, ""
	default:
		d.logger.Info("unrecognized webhook event acked", "event_type", event.Type)
		return nil, "unrecognized event type"
	}
}

func DefaultIdempotencyKeyExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["idempotency_key"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["delivery_id"]); value != "" {
			return value, nil
		}
		if value := trimAny(req.Metadata["message_id"]); value != "" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-message-id"); value != "" {
			return value, nil
		}
	}
	return "", inboundBadInput("inbound: idempotency key is required", nil)
}

// challengeValue returns a verification challenge carried in transport
// metadata. Body-level challenges are handled after the payload is decoded.
func challengeValue(req core.InboundRequest) string {
	if req.Metadata != nil {
		if value := trimAny(req.Metadata["challenge"]); value != "" {
			return value
		}
	}
	return ""
}

func eventFallbackKey(event Event) string {
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(event.Type)),
		strings.TrimSpace(event.CompanyID),
		strings.TrimSpace(event.LocationID),
		strings.TrimSpace(event.ContactID),
	}, ":")
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

func (d *Dispatcher) completeClaim(ctx context.Context, claimID string) {
	if d.Store == nil || claimID == "" {
		return
	}
	if err := d.Store.Complete(ctx, claimID); err != nil {
		d.logger.Error("complete idempotency claim", "claim_id", claimID, "error", err)
	}
}

func (d *Dispatcher) failClaim(ctx context.Context, claimID string, cause error) {
	if d.Store == nil || claimID == "" {
		return
	}
	if err := d.Store.Fail(ctx, claimID, cause, time.Time{}); err != nil {
		d.logger.Error("fail idempotency claim", "claim_id", claimID, "error", err)
	}
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.InboundHandler = (*Dispatcher)(nil)
