package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-install/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// queueParameterKey carries the named queue through go-job's message shape,
// which has no queue field of its own.
const queueParameterKey = "_queue"

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
// The broker requires an explicit disposition, so an empty one defaults to
// retry, and attempts past the policy limit become terminal.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		} else {
			out.Disposition = queue.NackDispositionFailed
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// ToExecutionMessage maps a task message to go-job's wire shape.
func ToExecutionMessage(msg *core.TaskMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	params := copyAnyMap(msg.Parameters)
	if queueName := strings.TrimSpace(msg.Queue); queueName != "" {
		params[queueParameterKey] = queueName
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.TaskID),
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message back into the task contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.TaskMessage {
	if msg == nil {
		return nil
	}
	params := copyAnyMap(msg.Parameters)
	queueName := ""
	if value, ok := params[queueParameterKey]; ok {
		queueName = strings.TrimSpace(fmt.Sprint(value))
		delete(params, queueParameterKey)
	}
	return &core.TaskMessage{
		TaskID:         strings.TrimSpace(msg.JobID),
		Queue:          queueName,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// TaskQueueAdapter fronts a go-job enqueuer with the core.TaskQueue contract.
// Fire-and-forget submissions go to the broker; awaited tasks run on the
// local delegate, since a broker round trip cannot return a handler result.
type TaskQueueAdapter struct {
	enqueuer queue.Enqueuer
	local    core.TaskQueue
}

func NewTaskQueueAdapter(enqueuer queue.Enqueuer, local core.TaskQueue) (*TaskQueueAdapter, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &TaskQueueAdapter{enqueuer: enqueuer, local: local}, nil
}

func (a *TaskQueueAdapter) Enqueue(ctx context.Context, msg *core.TaskMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: task queue adapter is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: task message is required")
	}
	if _, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg)); err != nil {
		return err
	}
	return nil
}

func (a *TaskQueueAdapter) EnqueueAndAwait(ctx context.Context, msg *core.TaskMessage) (map[string]any, error) {
	if a == nil {
		return nil, fmt.Errorf("gojob: task queue adapter is not configured")
	}
	if a.local == nil {
		return nil, fmt.Errorf("gojob: awaited tasks require a local runner")
	}
	return a.local.EnqueueAndAwait(ctx, msg)
}

func (a *TaskQueueAdapter) BatchEnqueue(ctx context.Context, msgs []*core.TaskMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: task queue adapter is not configured")
	}
	for _, msg := range msgs {
		if err := a.Enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.TaskMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts queue.NackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts queue.NackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, d.policy.NormalizeAttempt(opts, attempt))
}

// TaskEvent is the worker lifecycle payload surfaced to hooks.
type TaskEvent struct {
	Message   *core.TaskMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// TaskHook receives worker lifecycle callbacks in task terms.
type TaskHook interface {
	OnStart(ctx context.Context, event TaskEvent)
	OnSuccess(ctx context.Context, event TaskEvent)
	OnFailure(ctx context.Context, event TaskEvent)
	OnRetry(ctx context.Context, event TaskEvent)
}

type WorkerHookAdapter struct {
	hook TaskHook
}

func NewWorkerHookAdapter(hook TaskHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) TaskEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return TaskEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
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

var (
	_ core.TaskQueue = (*TaskQueueAdapter)(nil)
	_ worker.Hook    = (*WorkerHookAdapter)(nil)
)
