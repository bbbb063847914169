package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
	"TokenPulse/internal/services/activity"
	"TokenPulse/internal/services/ledger"
	"TokenPulse/internal/services/normalizer"
	"TokenPulse/pkg/logger"
)

const releaseTimeout = 5 * time.Second

var errSuperseded = errors.New("session run superseded")

// TransactionSink receives every accepted transaction after it is in the buffer.
type TransactionSink interface {
	Enqueue(tokenID string, tx models.Transaction) bool
}

type SessionConfig struct {
	TokenID        string
	Decimals       uint8
	TopN           int
	BufferCapacity int
	DedupWindow    int
	PollInterval   time.Duration
	FutureSkew     time.Duration
	Windows        []string
	MaxRetained    int
	Backoff        Backoff
}

type SessionOption func(*MonitorSession)

func WithSessionLogger(l *logger.Logger) SessionOption {
	return func(s *MonitorSession) { s.log = l }
}

func WithSessionMetrics(m drepo.Metrics) SessionOption {
	return func(s *MonitorSession) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithSink(sink TransactionSink) SessionOption {
	return func(s *MonitorSession) { s.sink = sink }
}

func WithHistory(h *HistoryQuery) SessionOption {
	return func(s *MonitorSession) { s.history = h }
}

// WithSessionClock replaces time.Now for the session and its normalizer.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *MonitorSession) { s.now = now }
}

// WithSleeper replaces the backoff wait. It must return ctx.Err() when ctx ends first.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *MonitorSession) { s.sleep = sleep }
}

// WithJitterSource replaces the [0,1) source used for backoff jitter.
func WithJitterSource(rnd func() float64) SessionOption {
	return func(s *MonitorSession) { s.rnd = rnd }
}

type streamFailure struct {
	sub uint64
	err error
}

// MonitorSession tracks one token: it keeps a live subscription to the feed,
// polls holders periodically and serves consistent snapshots to readers.
type MonitorSession struct {
	cfg     SessionConfig
	feed    drepo.FeedAdapter
	norm    *normalizer.Normalizer
	ledger  *ledger.Ledger
	agg     *activity.Aggregator
	history *HistoryQuery
	sink    TransactionSink
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	rnd     func() float64

	// lifeMu serializes Start and Stop.
	lifeMu  sync.Mutex
	stopRun context.CancelFunc
	wg      sync.WaitGroup

	// mu guards everything below plus buf, and orders ingestion against Stop.
	mu              sync.RWMutex
	state           models.ConnState
	epoch           uint64
	handle          drepo.SubscriptionHandle
	hasHandle       bool
	activeSub       uint64
	subCounter      uint64
	lastErr         error
	reconnects      int
	subscribedSince time.Time
	lastEvent       time.Time
	buf             *TxBuffer

	listenersMu  sync.Mutex
	listeners    map[int]func(models.Snapshot)
	nextListener int
	updates      chan struct{}
}

func NewMonitorSession(cfg SessionConfig, feed drepo.FeedAdapter, classifier normalizer.VenueClassifier, opts ...SessionOption) (*MonitorSession, error) {
	if cfg.TokenID == "" {
		return nil, fmt.Errorf("%w: empty token id", models.ErrInvalidToken)
	}
	if feed == nil {
		return nil, errors.New("monitor session: nil feed adapter")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 60
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 100
	}
	// A signature must stay remembered for as long as it can sit in the buffer.
	if cfg.DedupWindow < cfg.BufferCapacity {
		cfg.DedupWindow = cfg.BufferCapacity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	s := &MonitorSession{
		cfg:       cfg,
		feed:      feed,
		ledger:    ledger.New(),
		metrics:   drepo.NopMetrics{},
		now:       time.Now,
		sleep:     sleepCtx,
		rnd:       rand.Float64,
		state:     models.StateDisconnected,
		buf:       NewTxBuffer(cfg.BufferCapacity),
		listeners: make(map[int]func(models.Snapshot)),
		updates:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = NewHistoryQuery(feed, nil, 0, 0)
	}

	aggOpts := []activity.Option{activity.WithDecimals(cfg.Decimals)}
	if cfg.MaxRetained > 0 {
		aggOpts = append(aggOpts, activity.WithMaxRetained(cfg.MaxRetained))
	}
	agg, err := activity.New(cfg.Windows, aggOpts...)
	if err != nil {
		return nil, fmt.Errorf("monitor session %s: %w", cfg.TokenID, err)
	}
	s.agg = agg

	normOpts := []normalizer.Option{
		normalizer.WithClock(s.now),
		normalizer.WithDedupWindow(cfg.DedupWindow),
	}
	if cfg.FutureSkew > 0 {
		normOpts = append(normOpts, normalizer.WithSkew(cfg.FutureSkew))
	}
	s.norm = normalizer.New(classifier, normOpts...)
	s.log = s.log.With(logger.String("token", cfg.TokenID))
	return s, nil
}

func (s *MonitorSession) TokenID() string { return s.cfg.TokenID }

// WindowIDs lists the aggregate windows this session computes.
func (s *MonitorSession) WindowIDs() []string { return s.agg.WindowIDs() }

// Start subscribes to the feed and begins holder polling. It returns at once;
// progress is visible through Status. Calling Start on a running session is a no-op.
func (s *MonitorSession) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != models.StateDisconnected {
		return nil
	}
	// a previous run that ended on its own still has its dispatcher alive
	if s.stopRun != nil {
		s.stopRun()
		s.wg.Wait()
		s.stopRun = nil
	}

	sessCtx, stopSess := context.WithCancel(context.WithoutCancel(ctx))
	runCtx, stopConn := context.WithCancel(sessCtx)
	s.stopRun = stopSess
	failures := make(chan streamFailure, 4)

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.lastErr = nil
	s.setStateLocked(models.StateConnecting)
	s.mu.Unlock()

	s.log.Info("monitor session starting")
	s.wg.Add(3)
	go s.connectLoop(runCtx, stopConn, epoch, failures)
	go s.pollLoop(runCtx, stopConn, epoch)
	go s.dispatchLoop(sessCtx)
	s.notify()
	return nil
}

// Stop releases the subscription, cancels pending backoff and polling, and
// invalidates every outstanding feed callback. It is idempotent. Once it
// returns no event or poll result mutates the session.
func (s *MonitorSession) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	s.epoch++
	h, has := s.handle, s.hasHandle
	s.hasHandle = false
	s.activeSub = 0
	s.setStateLocked(models.StateDisconnected)
	s.mu.Unlock()

	if s.stopRun == nil {
		return nil
	}
	s.stopRun()
	s.stopRun = nil
	if has {
		if err := s.feed.Unsubscribe(ctx, h); err != nil {
			s.log.Warn("unsubscribe failed", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("monitor session stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", s.cfg.TokenID, ctx.Err())
	}
}

func (s *MonitorSession) connectLoop(ctx context.Context, stopConn context.CancelFunc, epoch uint64, failures chan streamFailure) {
	defer s.wg.Done()
	for {
		if err := s.subscribeWithRetry(ctx, epoch, failures); err != nil {
			if ctx.Err() == nil && !errors.Is(err, errSuperseded) {
				s.fail(epoch, stopConn, err)
			}
			return
		}

		var cause error
		for cause == nil {
			select {
			case <-ctx.Done():
				return
			case f := <-failures:
				s.mu.RLock()
				current := f.sub == s.activeSub
				s.mu.RUnlock()
				if current {
					cause = f.err
				}
			}
		}

		if !models.IsRetryable(cause) {
			s.fail(epoch, stopConn, cause)
			return
		}
		if !s.beginReconnect(epoch, cause) {
			return
		}
	}
}

// subscribeWithRetry makes the initial attempt plus up to MaxRetries retries.
func (s *MonitorSession) subscribeWithRetry(ctx context.Context, epoch uint64, failures chan streamFailure) error {
	attempt := 0
	for {
		s.mu.Lock()
		s.subCounter++
		sub := s.subCounter
		s.mu.Unlock()

		h, err := s.feed.Subscribe(ctx, s.cfg.TokenID, s.eventHandler(epoch), errorHandler(sub, failures))
		if err == nil {
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				s.release(h)
				return errSuperseded
			}
			s.handle, s.hasHandle = h, true
			s.activeSub = sub
			s.subscribedSince = s.now()
			s.lastErr = nil
			s.setStateLocked(models.StateSubscribed)
			s.mu.Unlock()
			s.log.Info("subscribed", logger.Int("retries", attempt))
			s.notify()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !models.IsRetryable(err) {
			return err
		}

		connErr := asConnectionError(err)
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return errSuperseded
		}
		s.lastErr = connErr
		s.mu.Unlock()
		s.metrics.RecordError("subscribe")

		attempt++
		if attempt > s.cfg.Backoff.MaxRetries {
			return fmt.Errorf("subscribe gave up after %d retries: %w", attempt-1, connErr)
		}
		d := s.cfg.Backoff.Delay(attempt, s.rnd)
		s.log.Warn("subscribe failed, backing off",
			logger.Int("attempt", attempt),
			logger.Duration("delay_ms", d),
			logger.Error(err),
		)
		if err := s.sleep(ctx, d); err != nil {
			return err
		}
	}
}

func (s *MonitorSession) beginReconnect(epoch uint64, cause error) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	h, has := s.handle, s.hasHandle
	s.hasHandle = false
	s.activeSub = 0
	s.reconnects++
	s.lastErr = asConnectionError(cause)
	s.setStateLocked(models.StateReconnecting)
	s.mu.Unlock()

	s.metrics.RecordReconnect(s.cfg.TokenID)
	s.log.Warn("stream failed, reconnecting", logger.Error(cause))
	if has {
		s.release(h)
	}
	s.notify()
	return true
}

// fail ends the current run in Disconnected with err, unless Stop or a newer
// Start already took over.
func (s *MonitorSession) fail(epoch uint64, stopConn context.CancelFunc, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.epoch++
	h, has := s.handle, s.hasHandle
	s.hasHandle = false
	s.activeSub = 0
	s.lastErr = err
	s.setStateLocked(models.StateDisconnected)
	s.mu.Unlock()

	stopConn()
	if has {
		s.release(h)
	}
	s.metrics.RecordError("session_fatal")
	s.log.Error("monitor session disconnected", logger.Error(err))
	s.notify()
}

func (s *MonitorSession) release(h drepo.SubscriptionHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.feed.Unsubscribe(ctx, h); err != nil {
		s.log.Warn("unsubscribe failed", logger.String("handle", string(h)), logger.Error(err))
	}
}

func (s *MonitorSession) eventHandler(epoch uint64) func(models.RawEvent) {
	return func(ev models.RawEvent) {
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.lastEvent = s.now()
		s.metrics.RecordEvent(s.cfg.TokenID)
		tx, err := s.norm.Normalize(ev)
		if err != nil {
			s.mu.Unlock()
			s.metrics.RecordRejected(s.cfg.TokenID, normalizer.Reason(err))
			s.log.Debug("event rejected", logger.String("signature", ev.Signature), logger.Error(err))
			return
		}
		s.buf.Push(tx)
		s.agg.Ingest(tx)
		n := s.buf.Len()
		s.mu.Unlock()

		s.metrics.RecordBufferSize(s.cfg.TokenID, n)
		if s.sink != nil {
			s.sink.Enqueue(s.cfg.TokenID, tx)
		}
		s.notify()
	}
}

// errorHandler reports stream failures to the connect loop. When the queue is
// full the oldest report is dropped so the newest subscription is never lost.
func errorHandler(sub uint64, ch chan streamFailure) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		f := streamFailure{sub: sub, err: err}
		for {
			select {
			case ch <- f:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (s *MonitorSession) pollLoop(ctx context.Context, stopConn context.CancelFunc, epoch uint64) {
	defer s.wg.Done()
	if !s.pollOnce(ctx, stopConn, epoch) {
		return
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.pollOnce(ctx, stopConn, epoch) {
				return
			}
		}
	}
}

// pollOnce refreshes the ledger. It returns false when polling must stop.
func (s *MonitorSession) pollOnce(ctx context.Context, stopConn context.CancelFunc, epoch uint64) bool {
	start := time.Now()
	raw, err := s.feed.PollHolders(ctx, s.cfg.TokenID, s.cfg.TopN)
	if err != nil {
		return s.pollFailed(ctx, stopConn, epoch, err)
	}
	supply := s.ledger.TotalSupply()
	if src, ok := s.feed.(drepo.SupplySource); ok {
		v, err := src.TotalSupply(ctx, s.cfg.TokenID)
		switch {
		case err == nil:
			supply = v
		case !models.IsRetryable(err):
			return s.pollFailed(ctx, stopConn, epoch, err)
		default:
			s.log.Warn("total supply fetch failed, keeping last value", logger.Error(err))
		}
	}
	s.metrics.RecordLatency("holder_poll", time.Since(start).Seconds())

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.ledger.Refresh(raw, supply, s.cfg.TopN)
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *MonitorSession) pollFailed(ctx context.Context, stopConn context.CancelFunc, epoch uint64, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if !models.IsRetryable(err) {
		s.fail(epoch, stopConn, err)
		return false
	}
	s.metrics.RecordError("holder_poll")
	s.log.Warn("holder poll failed, keeping last ledger", logger.Error(err))
	return true
}

func (s *MonitorSession) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.updates:
			s.listenersMu.Lock()
			fns := make([]func(models.Snapshot), 0, len(s.listeners))
			for _, fn := range s.listeners {
				fns = append(fns, fn)
			}
			s.listenersMu.Unlock()
			if len(fns) == 0 {
				continue
			}
			snap := s.GetSnapshot()
			for _, fn := range fns {
				s.invoke(fn, snap)
			}
		}
	}
}

func (s *MonitorSession) invoke(fn func(models.Snapshot), snap models.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("update listener panicked", logger.Any("panic", r))
		}
	}()
	fn(snap)
}

func (s *MonitorSession) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// OnUpdate registers fn to run after ingestion, polls and state changes.
// Bursts collapse into one call. The returned func unregisters fn.
func (s *MonitorSession) OnUpdate(fn func(models.Snapshot)) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// GetSnapshot copies the current state without touching the network.
func (s *MonitorSession) GetSnapshot() models.Snapshot {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Snapshot{
		Status:             s.statusLocked(),
		Holders:            s.ledger.Holders(),
		TopTenShare:        s.ledger.TopTenShare(),
		TotalSupply:        s.ledger.TotalSupply(),
		RecentTransactions: s.buf.NewestFirst(),
		Aggregates:         s.agg.Snapshots(now),
		UniqueWalletsSeen:  s.agg.UniqueWalletsSeen(),
		Rejections:         s.norm.Stats(),
		TakenAt:            now,
	}
}

// Aggregate computes a single window as of now.
func (s *MonitorSession) Aggregate(windowID string) (models.AggregateWindow, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Snapshot(windowID, now)
}

// Activity splits a window into buy/sell buckets as of now.
func (s *MonitorSession) Activity(windowID string, bucket time.Duration) ([]models.ActivityBucket, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Buckets(windowID, bucket, now)
}

func (s *MonitorSession) Holders(limit int) []models.TokenHolder {
	h := s.ledger.Holders()
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h
}

func (s *MonitorSession) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

// GetHistoricalRange returns daily records for [from, to].
func (s *MonitorSession) GetHistoricalRange(ctx context.Context, from, to time.Time) ([]models.DailyRecord, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", models.ErrInvalidRange)
	}
	return s.history.Query(ctx, s.cfg.TokenID, from, to)
}

func (s *MonitorSession) statusLocked() models.SessionStatus {
	st := models.SessionStatus{
		TokenID:          s.cfg.TokenID,
		State:            s.state,
		Reconnects:       s.reconnects,
		LastHolderPoll:   s.ledger.RefreshedAt(),
		LastEventArrival: s.lastEvent,
	}
	if s.state == models.StateSubscribed {
		st.SubscribedSince = s.subscribedSince
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// LastError returns the error behind the current state, if any.
func (s *MonitorSession) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *MonitorSession) setStateLocked(st models.ConnState) {
	if s.state == st {
		return
	}
	s.state = st
	s.metrics.RecordState(s.cfg.TokenID, st)
}

func asConnectionError(err error) error {
	if errors.Is(err, models.ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrConnection, err)
}
