package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// OutboundJobScript marks queue jobs produced by QueueOutbound. The dispatcher
// rejects jobs carrying any other script path.
const OutboundJobScript = "messaging:outbound:send"

// Outbound job parameter keys. DispatchAttempts counts completed delivery
// attempts and travels with the job across requeues.
const (
	JobParamTenantID         = "tenant_id"
	JobParamChannel          = "channel"
	JobParamRecipient        = "recipient"
	JobParamContent          = "content"
	JobParamReplyTo          = "reply_to_channel_message_id"
	JobParamDispatchAttempts = "_dispatch_attempts"
)

// EncodeOutboundJob flattens a send request into queue job parameters.
func EncodeOutboundJob(req SendRequest) *JobExecutionMessage {
	params := map[string]any{
		JobParamTenantID:  strings.TrimSpace(req.TenantID),
		JobParamChannel:   strings.TrimSpace(req.Channel),
		JobParamRecipient: req.Message.Recipient,
		JobParamContent:   req.Message.Content,
	}
	if req.Message.ReplyToChannelMessageID != "" {
		params[JobParamReplyTo] = req.Message.ReplyToChannelMessageID
	}
	for key, value := range req.Message.Metadata {
		if _, reserved := params[key]; reserved {
			continue
		}
		params[key] = value
	}
	return &JobExecutionMessage{
		ScriptPath: OutboundJobScript,
		Parameters: params,
	}
}

// DecodeOutboundJob rebuilds the send request from job parameters. Metadata
// receives every parameter that is not one of the reserved keys above.
func DecodeOutboundJob(msg *JobExecutionMessage) (SendRequest, error) {
	if msg == nil {
		return SendRequest{}, fmt.Errorf("core: outbound job is nil")
	}
	if msg.ScriptPath != OutboundJobScript {
		return SendRequest{}, fmt.Errorf("core: unexpected job script %q", msg.ScriptPath)
	}
	tenantID := strings.TrimSpace(metadataString(msg.Parameters, JobParamTenantID))
	channel := strings.TrimSpace(metadataString(msg.Parameters, JobParamChannel))
	recipient := strings.TrimSpace(metadataString(msg.Parameters, JobParamRecipient))
	if tenantID == "" {
		return SendRequest{}, fmt.Errorf("core: outbound job tenant_id is required")
	}
	if channel == "" {
		return SendRequest{}, fmt.Errorf("core: outbound job channel is required")
	}
	if recipient == "" {
		return SendRequest{}, fmt.Errorf("core: outbound job recipient is required")
	}

	var metadata map[string]any
	for key, value := range msg.Parameters {
		switch key {
		case JobParamTenantID, JobParamChannel, JobParamRecipient, JobParamContent, JobParamReplyTo, JobParamDispatchAttempts:
			continue
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	return SendRequest{
		TenantID: tenantID,
		Channel:  channel,
		Message: OutboundMessage{
			Recipient:               recipient,
			Content:                 metadataString(msg.Parameters, JobParamContent),
			ReplyToChannelMessageID: metadataString(msg.Parameters, JobParamReplyTo),
			Metadata:                metadata,
		},
	}, nil
}

// OutboundDispatcher drains queued outbound jobs through a channel sender.
// Failed deliveries are requeued with exponential backoff until MaxAttempts,
// then dead-lettered. An optional throttle postpones sends without burning
// an attempt.
type OutboundDispatcher struct {
	queue    JobDequeuer
	sender   ChannelSender
	throttle SendThrottle
	config   DispatchConfig
}

func NewOutboundDispatcher(queue JobDequeuer, sender ChannelSender, config DispatchConfig) (*OutboundDispatcher, error) {
	if queue == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("core: channel sender is required")
	}
	defaults := DefaultConfig().Dispatch
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &OutboundDispatcher{
		queue:  queue,
		sender: sender,
		config: config,
	}, nil
}

// WithThrottle installs the send throttle consulted before each delivery.
func (d *OutboundDispatcher) WithThrottle(throttle SendThrottle) *OutboundDispatcher {
	if d != nil {
		d.throttle = throttle
	}
	return d
}

// DispatchPending dequeues up to batchSize jobs and attempts delivery for
// each. It stops cleanly when the queue runs dry or the context ends; per-job
// failures are joined into the returned error without aborting the batch.
func (d *OutboundDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.queue == nil || d.sender == nil {
		return DispatchStats{}, fmt.Errorf("core: outbound dispatcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}

	stats := DispatchStats{}
	var dispatchErr error
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}
		delivery, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return stats, joinErrors(dispatchErr, err)
		}
		if delivery == nil {
			break
		}
		stats.Claimed++
		if err := d.dispatchOne(ctx, delivery, &stats); err != nil {
			dispatchErr = joinErrors(dispatchErr, err)
		}
	}
	return stats, dispatchErr
}

func (d *OutboundDispatcher) dispatchOne(ctx context.Context, delivery JobDelivery, stats *DispatchStats) error {
	msg := delivery.Message()
	req, err := DecodeOutboundJob(msg)
	if err != nil {
		stats.Failed++
		if nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return joinErrors(err, nackErr)
		}
		return err
	}

	if d.throttle != nil {
		if throttleErr := d.throttle.BeforeSend(ctx, req.TenantID, req.Channel); throttleErr != nil {
			stats.Throttled++
			return delivery.Nack(ctx, JobNackOptions{
				Delay:   throttleDelay(throttleErr, d.config.InitialBackoff),
				Requeue: true,
				Reason:  throttleErr.Error(),
			})
		}
	}

	result := d.sender.Send(ctx, req.TenantID, req.Channel, req.Message)
	var observeErr error
	if d.throttle != nil {
		observeErr = d.throttle.AfterSend(ctx, req.TenantID, req.Channel, result)
	}
	if result.Success {
		if err := delivery.Ack(ctx); err != nil {
			return joinErrors(observeErr, err)
		}
		stats.Delivered++
		return observeErr
	}

	sendErr := joinErrors(
		fmt.Errorf("core: dispatch failed for %s/%s: %s", req.TenantID, req.Channel, result.Error),
		observeErr,
	)
	attempt := dispatchAttemptIndex(msg.Parameters) + 1
	if attempt >= d.config.MaxAttempts {
		stats.Failed++
		if nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: result.Error}); nackErr != nil {
			return joinErrors(sendErr, nackErr)
		}
		return sendErr
	}

	if msg.Parameters == nil {
		msg.Parameters = map[string]any{}
	}
	msg.Parameters[JobParamDispatchAttempts] = attempt
	stats.Retried++
	if nackErr := delivery.Nack(ctx, JobNackOptions{
		Delay:   d.nextBackoffDelay(attempt),
		Requeue: true,
		Reason:  result.Error,
	}); nackErr != nil {
		return joinErrors(sendErr, nackErr)
	}
	return sendErr
}

func (d *OutboundDispatcher) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(d.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 {
		return d.config.MaxBackoff
	}
	if next > d.config.MaxBackoff {
		return d.config.MaxBackoff
	}
	return next
}

// throttleDelay prefers the throttle's own retry hint over the configured
// backoff floor.
func throttleDelay(err error, fallback time.Duration) time.Duration {
	var hinted interface{ RetryHint() time.Duration }
	if errors.As(err, &hinted) {
		if hint := hinted.RetryHint(); hint > 0 {
			return hint
		}
	}
	if fallback <= 0 {
		fallback = time.Second
	}
	return fallback
}

// dispatchAttemptIndex tolerates the value types a queue round trip produces.
func dispatchAttemptIndex(params map[string]any) int {
	if len(params) == 0 {
		return 0
	}
	raw, ok := params[JobParamDispatchAttempts]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case int:
		if typed < 0 {
			return 0
		}
		return typed
	case int64:
		if typed < 0 {
			return 0
		}
		return int(typed)
	case float64:
		if typed < 0 {
			return 0
		}
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

// InMemoryJobQueue is the default outbound queue: a mutex-guarded FIFO with
// delayed requeue support. Dequeue pops the first entry whose ready time has
// passed; Ack is a no-op because the pop already removed the entry.
type InMemoryJobQueue struct {
	mu      sync.Mutex
	entries []queuedJob
	nextID  int
	Now     func() time.Time
}

type queuedJob struct {
	message *JobExecutionMessage
	readyAt time.Time
}

func NewInMemoryJobQueue() *InMemoryJobQueue {
	return &InMemoryJobQueue{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (q *InMemoryJobQueue) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("core: job queue is nil")
	}
	if msg == nil {
		return fmt.Errorf("core: job message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg.JobID == "" {
		q.nextID++
		msg.JobID = fmt.Sprintf("job_%d", q.nextID)
	}
	q.entries = append(q.entries, queuedJob{message: msg})
	return nil
}

func (q *InMemoryJobQueue) Dequeue(ctx context.Context) (JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("core: job queue is nil")
	}
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for i, entry := range q.entries {
		if !entry.readyAt.IsZero() && now.Before(entry.readyAt) {
			continue
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return &memoryJobDelivery{queue: q, message: entry.message}, nil
	}
	return nil, ErrQueueEmpty
}

// Len reports queued entries including those not yet ready.
func (q *InMemoryJobQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *InMemoryJobQueue) now() time.Time {
	if q != nil && q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}

func (q *InMemoryJobQueue) requeue(msg *JobExecutionMessage, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry := queuedJob{message: msg}
	if delay > 0 {
		entry.readyAt = q.now().Add(delay)
	}
	q.entries = append(q.entries, entry)
}

type memoryJobDelivery struct {
	queue   *InMemoryJobQueue
	message *JobExecutionMessage
	settled bool
}

func (d *memoryJobDelivery) Message() *JobExecutionMessage {
	if d == nil {
		return nil
	}
	return d.message
}

func (d *memoryJobDelivery) Ack(context.Context) error {
	if d == nil || d.settled {
		return fmt.Errorf("core: job delivery already settled")
	}
	d.settled = true
	return nil
}

func (d *memoryJobDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	if d == nil || d.settled {
		return fmt.Errorf("core: job delivery already settled")
	}
	d.settled = true
	if opts.Requeue && !opts.DeadLetter && d.queue != nil {
		d.queue.requeue(d.message, opts.Delay)
	}
	return nil
}

var (
	_ QueueDispatcher = (*OutboundDispatcher)(nil)
	_ JobEnqueuer     = (*InMemoryJobQueue)(nil)
	_ JobDequeuer     = (*InMemoryJobQueue)(nil)
	_ JobDelivery     = (*memoryJobDelivery)(nil)
)
