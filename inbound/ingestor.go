package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/marianoberton/go-messaging/core"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultProcessTimeout = 30 * time.Second
)

// Sink consumes queued inbound messages. The messaging service satisfies it
// with its inbound pipeline.
type Sink interface {
	ProcessInbound(ctx context.Context, msg core.InboundMessage) core.SendResult
}

type Config struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	Logger         core.Logger
	Metrics        core.MetricsRecorder
}

// Ingestor decouples webhook ingress from inbound processing with a bounded
// in-memory queue and a fixed worker pool. Submit never blocks: a full queue
// rejects immediately so the ingress tier can push back on the provider
// instead of stalling its HTTP handlers.
type Ingestor struct {
	sink    Sink
	workers int
	size    int
	timeout time.Duration
	logger  core.Logger
	metrics core.MetricsRecorder

	mu      sync.Mutex
	queue   chan core.InboundMessage
	base    context.Context
	running bool
	wg      sync.WaitGroup
}

func NewIngestor(sink Sink, cfg Config) (*Ingestor, error) {
	if sink == nil {
		return nil, queueUnavailable("inbound: sink is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &Ingestor{
		sink:    sink,
		workers: workers,
		size:    size,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Start spins up the worker pool. ctx is the base context for message
// processing; cancelling it aborts in-flight handlers while Stop still
// drains whatever is queued.
func (i *Ingestor) Start(ctx context.Context) error {
	if i == nil || i.sink == nil {
		return queueUnavailable("inbound: ingestor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}
	i.queue = make(chan core.InboundMessage, i.size)
	i.base = ctx
	i.running = true
	for n := 0; n < i.workers; n++ {
		i.wg.Add(1)
		go i.work()
	}
	return nil
}

// Submit enqueues a message for asynchronous processing. It fails fast when
// the ingestor is stopped, the message is unroutable, or the queue is full.
func (i *Ingestor) Submit(ctx context.Context, msg core.InboundMessage) error {
	if i == nil {
		return queueUnavailable("inbound: ingestor is not configured")
	}
	if err := msg.Validate(); err != nil {
		return badMessage(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return queueUnavailable(fmt.Sprintf("inbound: submit aborted: %v", err))
	}

	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return queueUnavailable("inbound: ingestor is not running")
	}
	select {
	case i.queue <- msg:
		i.mu.Unlock()
		i.metrics.IncCounter(ctx, "messaging.ingest.accepted.total", 1, ingestTags(msg))
		return nil
	default:
		depth, capacity := len(i.queue), cap(i.queue)
		i.mu.Unlock()
		i.metrics.IncCounter(ctx, "messaging.ingest.rejected.total", 1, ingestTags(msg))
		return queueSaturated(depth, capacity)
	}
}

// Stop closes the intake and waits for the workers to drain what is already
// queued. A ctx deadline bounds the drain.
func (i *Ingestor) Stop(ctx context.Context) error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	close(i.queue)
	i.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(drained)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inbound: drain interrupted: %w", ctx.Err())
	}
}

// QueueDepth reports how many messages are waiting for a worker.
func (i *Ingestor) QueueDepth() int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.queue == nil {
		return 0
	}
	return len(i.queue)
}

func (i *Ingestor) work() {
	defer i.wg.Done()
	for msg := range i.queue {
		i.process(msg)
	}
}

func (i *Ingestor) process(msg core.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("inbound worker recovered",
				"panic", fmt.Sprint(r),
				"channel", msg.Channel,
				"tenant_id", msg.TenantID,
			)
			i.metrics.IncCounter(i.base, "messaging.ingest.panic.total", 1, ingestTags(msg))
		}
	}()

	ctx, cancel := context.WithTimeout(i.base, i.timeout)
	defer cancel()

	startedAt := time.Now()
	result := i.sink.ProcessInbound(ctx, msg)
	i.metrics.ObserveHistogram(ctx, "messaging.ingest.duration_ms",
		float64(time.Since(startedAt).Milliseconds()), ingestTags(msg))

	if result.Success {
		i.metrics.IncCounter(ctx, "messaging.ingest.processed.total", 1, ingestTags(msg))
		return
	}
	i.logger.Warn("inbound processing failed",
		"channel", msg.Channel,
		"tenant_id", msg.TenantID,
		"error", result.Error,
	)
	i.metrics.IncCounter(ctx, "messaging.ingest.failed.total", 1, ingestTags(msg))
}

func ingestTags(msg core.InboundMessage) map[string]string {
	return map[string]string{
		"channel":   msg.Channel,
		"tenant_id": msg.TenantID,
	}
}
