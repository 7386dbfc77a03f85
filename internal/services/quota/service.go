// Package quota keeps the published usage state of each provider in sync
// with the provider's usage API.
package quota

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/j-veylop/codequota/internal/logger"
	"github.com/j-veylop/codequota/internal/models"
)

// ErrRateLimited is returned when manual refreshes are requested too often.
var ErrRateLimited = errors.New("refresh requested too often, try again shortly")

// ErrClosed is returned when the engine was closed.
var ErrClosed = errors.New("engine closed")

// TokenSource supplies access tokens for a provider.
type TokenSource interface {
	HasCredentials() bool
	ValidToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// Fetcher retrieves and parses the usage of one provider.
type Fetcher[T any] interface {
	Provider() models.Provider
	Fetch(ctx context.Context, token string) (T, error)
}

// Event carries a published snapshot.
type Event[T any] struct {
	Snapshot models.Snapshot[T]
	Type     EventType
}

// EventType defines the type of engine event.
type EventType int

const (
	// EventStateChanged indicates that the usage state changed.
	EventStateChanged EventType = iota
	// EventTextChanged indicates that only the "updated ago" text changed.
	EventTextChanged
)

// Config holds configuration for an engine.
type Config struct {
	// Limiter throttles manual refreshes. Scheduled refreshes bypass it.
	Limiter *rate.Limiter
	// Interval is the auto-refresh period.
	Interval time.Duration
	// TextInterval is how often the "updated ago" text is recomputed.
	TextInterval time.Duration
}

// DefaultConfig returns the default configuration for interval.
func DefaultConfig(interval time.Duration) Config {
	return Config{
		Interval:     interval,
		TextInterval: time.Second,
		Limiter:      rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

type commandKind int

const (
	cmdRefresh commandKind = iota
	cmdStartAuto
	cmdStopAuto
	cmdReset
)

type command[T any] struct {
	reply chan models.Snapshot[T]
	kind  commandKind
}

type result[T any] struct {
	err   error
	usage T
	at    time.Time
	gen   int
}

// Engine owns the usage state of one provider. All state changes happen on
// a single loop goroutine; fetches run on worker goroutines and hand their
// result back to the loop.
type Engine[T any] struct {
	source    TokenSource
	fetcher   Fetcher[T]
	limiter   *rate.Limiter
	now       func() time.Time
	commands  chan command[T]
	results   chan result[T]
	eventChan chan Event[T]
	done      chan struct{}
	cancel    context.CancelFunc
	snapshot  models.Snapshot[T]
	config    Config
	closeOnce sync.Once
	mu        sync.RWMutex
}

// New creates an engine and starts its loop. Auto-refresh stays off until
// StartAutoRefresh is called.
func New[T any](source TokenSource, fetcher Fetcher[T], config Config) *Engine[T] {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.TextInterval <= 0 {
		config.TextInterval = time.Second
	}
	if config.Limiter == nil {
		config.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return newEngine(source, fetcher, config, time.Now)
}

func newEngine[T any](source TokenSource, fetcher Fetcher[T], config Config, now func() time.Time) *Engine[T] {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine[T]{
		source:    source,
		fetcher:   fetcher,
		limiter:   config.Limiter,
		now:       now,
		config:    config,
		commands:  make(chan command[T]),
		results:   make(chan result[T]),
		eventChan: make(chan Event[T], 100),
		done:      make(chan struct{}),
		cancel:    cancel,
		snapshot: models.Snapshot[T]{
			Provider:       fetcher.Provider(),
			State:          models.NotConnected[T](),
			LastUpdateText: FormatUpdatedAgo(time.Time{}, now()),
		},
	}

	go e.loop(ctx)
	return e
}

// Events returns the event channel.
func (e *Engine[T]) Events() <-chan Event[T] {
	return e.eventChan
}

// Provider returns the provider the engine serves.
func (e *Engine[T]) Provider() models.Provider {
	return e.fetcher.Provider()
}

// Snapshot returns the latest published snapshot.
func (e *Engine[T]) Snapshot() models.Snapshot[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Refresh requests a fetch. It returns ErrRateLimited when manual refreshes
// arrive faster than the limiter allows. A refresh requested while one is
// running joins it.
func (e *Engine[T]) Refresh() error {
	if !e.limiter.Allow() {
		return ErrRateLimited
	}
	return e.send(command[T]{kind: cmdRefresh})
}

// Sync requests a fetch without consulting the rate limiter, for fetches
// the application triggers itself, such as right after a login.
func (e *Engine[T]) Sync() error {
	return e.send(command[T]{kind: cmdRefresh})
}

// RefreshAndWait fetches and returns the resulting snapshot.
func (e *Engine[T]) RefreshAndWait(ctx context.Context) (models.Snapshot[T], error) {
	reply := make(chan models.Snapshot[T], 1)
	if err := e.send(command[T]{kind: cmdRefresh, reply: reply}); err != nil {
		return e.Snapshot(), err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return e.Snapshot(), ctx.Err()
	case <-e.done:
		return e.Snapshot(), ErrClosed
	}
}

// StartAutoRefresh fetches now and then on every interval, and starts the
// text ticker.
func (e *Engine[T]) StartAutoRefresh() error {
	return e.send(command[T]{kind: cmdStartAuto})
}

// StopAutoRefresh stops both tickers.
func (e *Engine[T]) StopAutoRefresh() error {
	return e.send(command[T]{kind: cmdStopAuto})
}

// Reset returns the engine to NotConnected and discards running fetches.
func (e *Engine[T]) Reset() error {
	return e.send(command[T]{kind: cmdReset})
}

func (e *Engine[T]) send(cmd command[T]) error {
	select {
	case e.commands <- cmd:
		return nil
	case <-e.done:
		return ErrClosed
	}
}

// loopState is owned by the loop goroutine.
type loopState[T any] struct {
	fetchTicker *time.Ticker
	textTicker  *time.Ticker
	waiters     []chan models.Snapshot[T]
	gen         int
	inFlight    bool
}

func (e *Engine[T]) loop(ctx context.Context) {
	defer close(e.done)

	var st loopState[T]
	defer st.stopTickers()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-e.commands:
			e.handleCommand(ctx, &st, cmd)

		case res := <-e.results:
			if res.gen != st.gen {
				continue
			}
			st.inFlight = false
			e.apply(res)
			st.reply(e.Snapshot())

		case <-st.fetchC():
			e.startFetch(ctx, &st)

		case <-st.textC():
			e.updateText()
		}
	}
}

func (e *Engine[T]) handleCommand(ctx context.Context, st *loopState[T], cmd command[T]) {
	switch cmd.kind {
	case cmdRefresh:
		if cmd.reply != nil {
			st.waiters = append(st.waiters, cmd.reply)
		}
		e.startFetch(ctx, st)

	case cmdStartAuto:
		st.stopTickers()
		st.fetchTicker = time.NewTicker(e.config.Interval)
		st.textTicker = time.NewTicker(e.config.TextInterval)
		logger.Debug("auto refresh started", "provider", e.Provider(), "interval", e.config.Interval)
		e.startFetch(ctx, st)

	case cmdStopAuto:
		st.stopTickers()

	case cmdReset:
		st.gen++
		st.inFlight = false
		e.publish(EventStateChanged, func(s *models.Snapshot[T]) {
			s.State = models.NotConnected[T]()
			s.LastUpdated = time.Time{}
			s.LastUpdateText = FormatUpdatedAgo(time.Time{}, e.now())
		})
		st.reply(e.Snapshot())
	}
}

// startFetch launches a worker unless one is running.
func (e *Engine[T]) startFetch(ctx context.Context, st *loopState[T]) {
	if st.inFlight {
		return
	}
	if !e.source.HasCredentials() {
		if e.Snapshot().State.Kind != models.StateNotConnected {
			e.publish(EventStateChanged, func(s *models.Snapshot[T]) {
				s.State = models.NotConnected[T]()
			})
		}
		st.reply(e.Snapshot())
		return
	}

	if !e.Snapshot().State.IsLoaded() {
		e.publish(EventStateChanged, func(s *models.Snapshot[T]) {
			s.State = models.Loading[T]()
		})
	}

	st.inFlight = true
	gen := st.gen
	id := uuid.NewString()
	go func() {
		usage, err := e.fetch(ctx, id)
		res := result[T]{usage: usage, err: err, at: e.now(), gen: gen}
		select {
		case e.results <- res:
		case <-ctx.Done():
		}
	}()
}

// fetch obtains a token and fetches usage, refreshing the token and
// retrying once when the provider rejects it with 401.
func (e *Engine[T]) fetch(ctx context.Context, id string) (T, error) {
	var zero T
	provider := e.Provider()
	start := time.Now()
	logger.Debug("fetching usage", "provider", provider, "fetch_id", id)

	token, err := e.source.ValidToken(ctx)
	if err != nil {
		logger.Warn("no valid token", "provider", provider, "fetch_id", id, "error", err)
		return zero, models.ErrSessionExpired
	}

	usage, err := e.fetcher.Fetch(ctx, token)
	if isUnauthorized(err) {
		logger.Info("token rejected, refreshing", "provider", provider, "fetch_id", id)
		if rerr := e.source.Refresh(ctx); rerr != nil {
			return zero, models.ErrSessionExpired
		}
		if token, err = e.source.ValidToken(ctx); err != nil {
			return zero, models.ErrSessionExpired
		}
		usage, err = e.fetcher.Fetch(ctx, token)
	}
	if err != nil {
		logger.Warn("usage fetch failed", "provider", provider, "fetch_id", id, "error", err)
		return zero, err
	}

	logger.Debug("usage fetched", "provider", provider, "fetch_id", id, "duration", time.Since(start))
	return usage, nil
}

func isUnauthorized(err error) bool {
	var authErr *models.AuthenticationError
	return errors.As(err, &authErr) && authErr.Status == http.StatusUnauthorized
}

// apply publishes the outcome of a fetch.
func (e *Engine[T]) apply(res result[T]) {
	if res.err != nil {
		e.publish(EventStateChanged, func(s *models.Snapshot[T]) {
			s.State = models.Failed[T](errorMessage(res.err))
		})
		return
	}
	e.publish(EventStateChanged, func(s *models.Snapshot[T]) {
		s.State = models.Loaded(res.usage)
		s.LastUpdated = res.at
		s.LastUpdateText = FormatUpdatedAgo(res.at, e.now())
	})
}

// errorMessage returns the text shown for a failed fetch.
func errorMessage(err error) string {
	if errors.Is(err, models.ErrSessionExpired) {
		return "session expired"
	}
	return err.Error()
}

// updateText recomputes the "updated ago" text without network activity.
func (e *Engine[T]) updateText() {
	snap := e.Snapshot()
	text := FormatUpdatedAgo(snap.LastUpdated, e.now())
	if text == snap.LastUpdateText {
		return
	}
	e.publish(EventTextChanged, func(s *models.Snapshot[T]) {
		s.LastUpdateText = text
	})
}

// publish applies fn to the snapshot and emits an event.
func (e *Engine[T]) publish(eventType EventType, fn func(*models.Snapshot[T])) {
	e.mu.Lock()
	fn(&e.snapshot)
	snap := e.snapshot
	e.mu.Unlock()

	e.sendEvent(Event[T]{Type: eventType, Snapshot: snap})
}

// sendEvent sends an event to the event channel non-blocking.
func (e *Engine[T]) sendEvent(event Event[T]) {
	select {
	case e.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-e.eventChan:
		default:
		}
		select {
		case e.eventChan <- event:
		default:
		}
	}
}

// Close stops the loop, both tickers and any running fetch, and waits for
// the loop to exit.
func (e *Engine[T]) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
	})
	return nil
}

func (st *loopState[T]) stopTickers() {
	if st.fetchTicker != nil {
		st.fetchTicker.Stop()
		st.fetchTicker = nil
	}
	if st.textTicker != nil {
		st.textTicker.Stop()
		st.textTicker = nil
	}
}

// fetchC returns the fetch ticker channel, nil when stopped.
func (st *loopState[T]) fetchC() <-chan time.Time {
	if st.fetchTicker == nil {
		return nil
	}
	return st.fetchTicker.C
}

// textC returns the text ticker channel, nil when stopped.
func (st *loopState[T]) textC() <-chan time.Time {
	if st.textTicker == nil {
		return nil
	}
	return st.textTicker.C
}

func (st *loopState[T]) reply(snap models.Snapshot[T]) {
	for _, w := range st.waiters {
		w <- snap
	}
	st.waiters = nil
}
