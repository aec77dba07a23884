package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-crm-install/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	defaultQueueName        = "default"
	defaultQueueConcurrency = 8
	defaultClaimLease       = 10 * time.Minute
)

// HandlerFunc executes one task. The returned map is the task result for
// await-style callers.
type HandlerFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Runner is an in-process task queue with named queues, per-queue concurrency
// bounds and optional idempotency-key dedupe. Tasks are at-least-once:
// a handler failure releases the claim so a redelivery can run again.
type Runner struct {
	logger core.Logger
	claims core.IdempotencyClaimStore

	mu          sync.RWMutex
	handlers    map[string]HandlerFunc
	semaphores  map[string]chan struct{}
	concurrency map[string]int

	wg sync.WaitGroup
}

type Option func(*Runner)

func WithLogger(logger core.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClaimStore(store core.IdempotencyClaimStore) Option {
	return func(r *Runner) {
		r.claims = store
	}
}

func WithQueueConcurrency(queue string, limit int) Option {
	return func(r *Runner) {
		queue = normalizeQueue(queue)
		if limit > 0 {
			r.concurrency[queue] = limit
		}
	}
}

func NewRunner(options ...Option) *Runner {
	_, logger := glog.Resolve("crm-install.queue", nil, nil)
	runner := &Runner{
		logger:      logger,
		handlers:    map[string]HandlerFunc{},
		semaphores:  map[string]chan struct{}{},
		concurrency: map[string]int{},
	}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}
	return runner
}

// RegisterTask binds a task id to its handler. Duplicate registration is a
// wiring bug and fails loudly.
func (r *Runner) RegisterTask(taskID string, handler HandlerFunc) error {
	if r == nil {
		return fmt.Errorf("queue: runner is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return fmt.Errorf("queue: task id is required")
	}
	if handler == nil {
		return fmt.Errorf("queue: handler is required for task %q", taskID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskID]; exists {
		return fmt.Errorf("queue: task %q is already registered", taskID)
	}
	r.handlers[taskID] = handler
	return nil
}

// Enqueue submits a task for asynchronous execution and returns once the
// task is accepted.
func (r *Runner) Enqueue(ctx context.Context, msg *core.TaskMessage) error {
	handler, claimID, accepted, err := r.admit(ctx, msg)
	if err != nil {
		return err
	}
	if !accepted {
		r.logger.Debug("task deduped", "task", msg.TaskID, "idempotency_key", msg.IdempotencyKey)
		return nil
	}

	runID := uuid.NewString()
	params := copyAnyMap(msg.Parameters)
	taskID := msg.TaskID
	queueName := normalizeQueue(msg.Queue)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Detached from the caller's request context on purpose: the
		// submitter does not wait for completion.
		runCtx := context.WithoutCancel(ctx)
		if _, runErr := r.run(runCtx, queueName, handler, params); runErr != nil {
			r.logger.Error("task failed", "task", taskID, "run_id", runID, "error", runErr)
			r.failClaim(runCtx, claimID, runErr)
			return
		}
		r.completeClaim(runCtx, claimID)
	}()
	return nil
}

// EnqueueAndAwait executes the task synchronously, honoring the queue's
// concurrency bound, and returns the handler result.
func (r *Runner) EnqueueAndAwait(ctx context.Context, msg *core.TaskMessage) (map[string]any, error) {
	handler, claimID, accepted, err := r.admit(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !accepted {
		r.logger.Debug("task deduped", "task", msg.TaskID, "idempotency_key", msg.IdempotencyKey)
		return map[string]any{"deduped": true}, nil
	}

	result, runErr := r.run(ctx, normalizeQueue(msg.Queue), handler, copyAnyMap(msg.Parameters))
	if runErr != nil {
		r.failClaim(ctx, claimID, runErr)
		return nil, runErr
	}
	r.completeClaim(ctx, claimID)
	return result, nil
}

// BatchEnqueue submits every message, collecting the first submission error.
// Already-submitted tasks keep running either way.
func (r *Runner) BatchEnqueue(ctx context.Context, msgs []*core.TaskMessage) error {
	if r == nil {
		return fmt.Errorf("queue: runner is not configured")
	}
	for _, msg := range msgs {
		if err := r.Enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until all in-flight asynchronous tasks finish.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Runner) admit(ctx context.Context, msg *core.TaskMessage) (HandlerFunc, string, bool, error) {
	if r == nil {
		return nil, "", false, fmt.Errorf("queue: runner is not configured")
	}
	if msg == nil {
		return nil, "", false, fmt.Errorf("queue: task message is required")
	}
	msg.TaskID = strings.TrimSpace(msg.TaskID)
	if msg.TaskID == "" {
		return nil, "", false, fmt.Errorf("queue: task id is required")
	}

	r.mu.RLock()
	handler := r.handlers[msg.TaskID]
	r.mu.RUnlock()
	if handler == nil {
		return nil, "", false, fmt.Errorf("queue: task %q is not registered", msg.TaskID)
	}

	key := strings.TrimSpace(msg.IdempotencyKey)
	if r.claims == nil || key == "" {
		return handler, "", true, nil
	}
	claimID, accepted, err := r.claims.Claim(ctx, msg.TaskID+":"+key, defaultClaimLease)
	if err != nil {
		return nil, "", false, fmt.Errorf("queue: idempotency claim failed: %w", err)
	}
	return handler, claimID, accepted, nil
}

func (r *Runner) run(
	ctx context.Context,
	queueName string,
	handler HandlerFunc,
	params map[string]any,
) (map[string]any, error) {
	semaphore := r.semaphore(queueName)
	select {
	case semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-semaphore }()

	return handler(ctx, params)
}

func (r *Runner) semaphore(queueName string) chan struct{} {
	queueName = normalizeQueue(queueName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.semaphores[queueName]; ok {
		return existing
	}
	limit := r.concurrency[queueName]
	if limit <= 0 {
		limit = defaultQueueConcurrency
	}
	created := make(chan struct{}, limit)
	r.semaphores[queueName] = created
	return created
}

func (r *Runner) completeClaim(ctx context.Context, claimID string) {
	if r.claims == nil || claimID == "" {
		return
	}
	if err := r.claims.Complete(ctx, claimID); err != nil {
		r.logger.Error("complete idempotency claim", "claim_id", claimID, "error", err)
	}
}

func (r *Runner) failClaim(ctx context.Context, claimID string, cause error) {
	if r.claims == nil || claimID == "" {
		return
	}
	if err := r.claims.Fail(ctx, claimID, cause, time.Time{}); err != nil {
		r.logger.Error("fail idempotency claim", "claim_id", claimID, "error", err)
	}
}

func normalizeQueue(queueName string) string {
	queueName = strings.TrimSpace(strings.ToLower(queueName))
	if queueName == "" {
		return defaultQueueName
	}
	return queueName
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.TaskQueue = (*Runner)(nil)
