package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CredentialExchanger performs a token exchange against the CRM platform.
type CredentialExchanger interface {
	Exchange(ctx context.Context, grant Grant) (Credential, error)
}

// LocationTokenExchanger mints a location credential using a company bearer
// token. The company must already be installed.
type LocationTokenExchanger interface {
	ExchangeLocationToken(ctx context.Context, companyID, locationID, companyToken string) (Credential, error)
}

// LocationDirectory lists the locations a company has installed the app on.
type LocationDirectory interface {
	ListInstalledLocations(ctx context.Context, companyID string, companyToken string) ([]LocationSummary, error)
}

type CompanyStore interface {
	Upsert(ctx context.Context, in UpsertCompanyInput) (Company, error)
	Get(ctx context.Context, companyID string) (Company, error)
	ListExpiring(ctx context.Context, before int64) ([]Company, error)
}

type LocationStore interface {
	Upsert(ctx context.Context, in UpsertLocationInput) (Location, error)
	Get(ctx context.Context, locationID string) (Location, error)
	ListExpiring(ctx context.Context, before int64) ([]Location, error)
}

type ContactStore interface {
	Upsert(ctx context.Context, in UpsertContactInput) (Contact, error)
	Get(ctx context.Context, contactID string) (Contact, error)
}

// TaskMessage describes one background task. IdempotencyKey dedupes repeat
// submissions; Queue selects a named queue with its own concurrency bound.
type TaskMessage struct {
	TaskID         string
	Queue          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// TaskQueue is the background execution contract. Enqueue and BatchEnqueue
// are fire-and-forget; EnqueueAndAwait blocks for the task result.
type TaskQueue interface {
	Enqueue(ctx context.Context, msg *TaskMessage) error
	EnqueueAndAwait(ctx context.Context, msg *TaskMessage) (map[string]any, error)
	BatchEnqueue(ctx context.Context, msgs []*TaskMessage) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// SubjectLocker serializes credential writes per subject. Acquire fails when
// the lease is already held.
type SubjectLocker interface {
	Acquire(ctx context.Context, subjectKey string, ttl time.Duration) (LockHandle, error)
}

// IdempotencyClaimStore backs inbound delivery dedupe. Claim returns a claim
// id plus whether the caller won the claim.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

// InboundRequest is a transport-agnostic webhook delivery.
type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// InboundResult tells the transport how to respond. Body is written verbatim
// when non-empty (challenge echoes).
type InboundResult struct {
	Accepted   bool
	StatusCode int
	Body       []byte
	Metadata   map[string]any
}

type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
