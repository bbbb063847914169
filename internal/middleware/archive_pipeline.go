package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	"TokenPulse/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, tokenID string, tx models.Transaction) error
}

type item struct {
	token    string
	tx       models.Transaction
	attempts int
}

// ArchivePipeline decouples ingestion from the archive backend. Enqueue never
// blocks. A single worker forwards items in arrival order and retries a
// failed item before moving on to the next one.
type ArchivePipeline struct {
	proc        Proc
	metrics     domrepo.Metrics
	log         *logger.Logger
	bufSize     int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxAttempts int
	bufCh       chan item

	mu       sync.Mutex
	started  bool
	closed   bool
	stopCh   chan struct{}
	done     chan struct{}
	drainCtx context.Context
}

type PipelineOption func(*ArchivePipeline)

// WithBufferSize sets the queue size between ingestion and the backend.
func WithBufferSize(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff sets the retry delay range after a failed forward.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *ArchivePipeline) {
		if min > 0 {
			p.minBackoff = min
		}
		if max >= p.minBackoff {
			p.maxBackoff = max
		}
	}
}

// WithMaxAttempts bounds how often one transaction is retried before it is dropped.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *ArchivePipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *ArchivePipeline) { p.log = l }
}

func NewArchivePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ArchivePipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &ArchivePipeline{
		proc:        proc,
		metrics:     metrics,
		bufSize:     2000,
		minBackoff:  50 * time.Millisecond,
		maxBackoff:  2 * time.Second,
		maxAttempts: 10,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan item, p.bufSize)
	return p
}

// Enqueue hands tx to the worker. It returns false when the queue is full or
// the pipeline is stopped; the transaction is then dropped.
func (p *ArchivePipeline) Enqueue(tokenID string, tx models.Transaction) bool {
	if err := validateTransaction(tx); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return false
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.metrics.RecordError("pipeline_closed")
		return false
	}
	select {
	case p.bufCh <- item{token: tokenID, tx: tx}:
		return true
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return false
	}
}

// Len is the number of queued transactions.
func (p *ArchivePipeline) Len() int { return len(p.bufCh) }

// Start launches the forwarding worker.
func (p *ArchivePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop refuses new items, forwards what is still queued once, and waits for
// the worker until ctx ends.
func (p *ArchivePipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	p.drainCtx = ctx
	p.mu.Unlock()
	if !started {
		return nil
	}
	close(p.stopCh)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("archive pipeline stop: %w", ctx.Err())
	}
}

func (p *ArchivePipeline) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			p.drain(nil)
			return
		case it := <-p.bufCh:
			if pending, stopped := p.forward(ctx, it); stopped {
				p.drain(pending)
				return
			}
		}
	}
}

// forward retries it in place until the backend takes it, its attempts run
// out or the pipeline stops. Items queued behind it wait, so the backend sees
// transactions in arrival order. On stop the unfinished item is returned.
func (p *ArchivePipeline) forward(ctx context.Context, it item) (*item, bool) {
	backoff := p.minBackoff
	for {
		err := p.proc.Process(ctx, it.token, it.tx)
		if err == nil {
			return nil, false
		}
		p.metrics.RecordError("pipeline_flush")
		it.attempts++
		if it.attempts >= p.maxAttempts {
			p.metrics.RecordError("pipeline_give_up")
			p.log.Warn("archive dropped transaction",
				logger.String("signature", it.tx.Signature),
				logger.Int("attempts", it.attempts),
				logger.Error(err),
			)
			return nil, false
		}
		select {
		case <-time.After(backoff):
		case <-p.stopCh:
			return &it, true
		}
		if backoff < p.maxBackoff {
			backoff *= 2
			if backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
		}
	}
}

// drain gives pending and every queued item one last attempt under the Stop context.
func (p *ArchivePipeline) drain(pending *item) {
	p.mu.Lock()
	ctx := p.drainCtx
	p.mu.Unlock()
	if pending != nil {
		p.drainOne(ctx, *pending)
	}
	for {
		select {
		case it := <-p.bufCh:
			if ctx.Err() != nil {
				p.metrics.RecordError("pipeline_drain_abandoned")
				return
			}
			p.drainOne(ctx, it)
		default:
			return
		}
	}
}

func (p *ArchivePipeline) drainOne(ctx context.Context, it item) {
	if err := p.proc.Process(ctx, it.token, it.tx); err != nil {
		p.metrics.RecordError("pipeline_drain")
	}
}

func validateTransaction(tx models.Transaction) error {
	if tx.Signature == "" {
		return errors.New("signature empty")
	}
	if tx.Timestamp.IsZero() {
		return errors.New("timestamp invalid")
	}
	if tx.Amount == 0 {
		return errors.New("amount zero")
	}
	return nil
}
