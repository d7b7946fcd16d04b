// Package feed provides periodically refreshing caches over the game service.
//
// A Source holds the latest snapshot of one resource. Refreshes can come from
// its own timer, from an explicit call, or from another source through a
// subscriber link. Results are applied in issue order: a response that
// arrives after a newer one was applied, or after the source was cleared or
// superseded, is dropped. A failed fetch keeps the previous snapshot.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/metrics"
)

// FetchFunc loads the resource.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Subscriber is invoked after each successful refresh, before the refresh
// is reported complete to whoever awaits it.
type Subscriber[T any] func(ctx context.Context, value T)

// ErrorHandler receives failed refreshes.
type ErrorHandler func(source string, err error)

// Options configures a Source.
type Options struct {
	// Interval between timer refreshes. Zero disables the timer.
	Interval time.Duration
	// Gate reports whether timer refreshes may run. Nil means always.
	Gate func() bool
	// OnError is called for every failed refresh that was not superseded.
	OnError ErrorHandler
	Logger  zerolog.Logger
}

// Status describes a source for health reporting.
type Status struct {
	Name        string        `json:"name"`
	HasValue    bool          `json:"has_value"`
	UpdatedAt   time.Time     `json:"updated_at,omitempty"`
	Interval    time.Duration `json:"interval"`
	Refreshes   uint64        `json:"refreshes"`
	Failures    uint64        `json:"failures"`
	Discarded   uint64        `json:"discarded"`
	LastError   string        `json:"last_error,omitempty"`
	LastErrorAt time.Time     `json:"last_error_at,omitempty"`
	InFlight    int           `json:"in_flight"`
}

type request struct {
	seq        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
	superseded bool
}

// Source is a cache of one resource.
type Source[T any] struct {
	name  string
	fetch FetchFunc[T]
	opts  Options

	mu        sync.Mutex
	value     T
	has       bool
	updatedAt time.Time
	seq       uint64 // last issued
	floor     uint64 // results with seq <= floor are dropped
	applied   uint64 // seq of the current value
	inflight  map[uint64]*request
	latest    *request
	subs      []Subscriber[T]
	watchers  []func()
	status    Status
	started   bool
	stopped   bool
	stopLoop  context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a source. It does nothing until Start, Refresh or Trigger.
func New[T any](name string, fetch FetchFunc[T], opts Options) *Source[T] {
	return &Source[T]{
		name:     name,
		fetch:    fetch,
		opts:     opts,
		inflight: make(map[uint64]*request),
		status:   Status{Name: name, Interval: opts.Interval},
	}
}

// Name returns the source name.
func (s *Source[T]) Name() string {
	return s.name
}

// Snapshot returns the current value and whether one has been loaded.
func (s *Source[T]) Snapshot() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.has
}

// Value returns the current value, or the zero value when none is loaded.
func (s *Source[T]) Value() T {
	v, _ := s.Snapshot()
	return v
}

// Subscribe registers a subscriber for successful refreshes.
func (s *Source[T]) Subscribe(fn Subscriber[T]) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// OnChange registers fn to run whenever the snapshot changes, including
// clears and local updates.
func (s *Source[T]) OnChange(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Status returns a copy of the source status.
func (s *Source[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.HasValue = s.has
	st.UpdatedAt = s.updatedAt
	st.InFlight = len(s.inflight)
	return st
}

// Start launches the timer loop when an interval is configured. The first
// timer refresh happens one interval after Start; callers wanting data
// immediately call Refresh first.
func (s *Source[T]) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.stopLoop = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(loopCtx)
}

func (s *Source[T]) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.opts.Gate != nil && !s.opts.Gate() {
				continue
			}
			r, err := s.issue(ctx, false, false)
			if err != nil {
				return
			}
			s.run(r)
		}
	}
}

// Stop cancels the timer and every in-flight request and waits for
// background work to finish. No snapshot changes after Stop returns.
func (s *Source[T]) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.stopLoop != nil {
		s.stopLoop()
	}
	for _, r := range s.inflight {
		r.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Refresh issues a request that supersedes any in flight and waits until
// its result, or the result of a request that superseded it, is applied.
func (s *Source[T]) Refresh(ctx context.Context) error {
	r, err := s.issue(ctx, true, false)
	if err != nil {
		return err
	}
	s.run(r)
	return s.await(ctx, r)
}

// Trigger issues a superseding request and returns immediately.
func (s *Source[T]) Trigger(ctx context.Context) {
	r, err := s.issue(ctx, true, true)
	if err != nil {
		return
	}
	go func() {
		defer s.wg.Done()
		s.run(r)
	}()
}

// Wait blocks until the most recently issued request has completed.
func (s *Source[T]) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.latest
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return s.await(ctx, r)
}

// Clear drops the snapshot and every in-flight request.
func (s *Source[T]) Clear() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.has = false
	s.updatedAt = time.Time{}
	s.floor = s.seq
	s.latest = nil
	for _, r := range s.inflight {
		r.cancel()
	}
	watchers := s.copyWatchers()
	s.mu.Unlock()

	metrics.SourceClearsTotal.WithLabelValues(s.name).Inc()
	notify(watchers)
}

// Set adopts v as the snapshot without fetching and drops in-flight
// requests. Subscribers are notified as for a refresh.
func (s *Source[T]) Set(ctx context.Context, v T) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.value = v
	s.has = true
	s.updatedAt = time.Now()
	s.floor = s.seq
	s.applied = s.seq
	s.latest = nil
	for _, r := range s.inflight {
		r.cancel()
	}
	subs := s.copySubs()
	watchers := s.copyWatchers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, v)
	}
	notify(watchers)
}

func (s *Source[T]) issue(ctx context.Context, supersede, track bool) (*request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, apperrors.ErrSourceStopped
	}

	s.seq++
	if supersede {
		s.floor = s.seq - 1
		for _, r := range s.inflight {
			r.cancel()
		}
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &request{
		seq:    s.seq,
		ctx:    rctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.inflight[r.seq] = r
	s.latest = r
	if track {
		s.wg.Add(1)
	}
	return r, nil
}

func (s *Source[T]) run(r *request) {
	defer r.cancel()

	start := time.Now()
	v, err := s.fetch(r.ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	delete(s.inflight, r.seq)

	stale := s.stopped || r.seq <= s.floor || r.seq < s.applied || r.ctx.Err() != nil
	if stale {
		r.superseded = true
		s.status.Discarded++
		s.mu.Unlock()
		metrics.SourceRefreshesTotal.WithLabelValues(s.name, "discarded").Inc()
		close(r.done)
		return
	}

	if err != nil {
		r.err = err
		s.status.Failures++
		s.status.LastError = err.Error()
		s.status.LastErrorAt = time.Now()
		s.mu.Unlock()

		metrics.SourceRefreshesTotal.WithLabelValues(s.name, "failed").Inc()
		logging.LogRefresh(s.opts.Logger, s.name, elapsed, err)
		if s.opts.OnError != nil {
			s.opts.OnError(s.name, err)
		}
		close(r.done)
		return
	}

	s.value = v
	s.has = true
	s.updatedAt = time.Now()
	s.applied = r.seq
	s.status.Refreshes++
	subs := s.copySubs()
	watchers := s.copyWatchers()
	s.mu.Unlock()

	metrics.SourceRefreshesTotal.WithLabelValues(s.name, "applied").Inc()
	logging.LogRefresh(s.opts.Logger, s.name, elapsed, nil)

	for _, fn := range subs {
		fn(r.ctx, v)
	}
	notify(watchers)
	close(r.done)
}

func (s *Source[T]) await(ctx context.Context, r *request) error {
	for {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !r.superseded {
			return r.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		next := s.latest
		stopped := s.stopped
		s.mu.Unlock()

		if stopped {
			return apperrors.ErrSourceStopped
		}
		if next == nil || next == r {
			return nil
		}
		r = next
	}
}

func (s *Source[T]) copySubs() []Subscriber[T] {
	subs := make([]Subscriber[T], len(s.subs))
	copy(subs, s.subs)
	return subs
}

func (s *Source[T]) copyWatchers() []func() {
	watchers := make([]func(), len(s.watchers))
	copy(watchers, s.watchers)
	return watchers
}

func notify(watchers []func()) {
	for _, fn := range watchers {
		fn()
	}
}

// IsCancellation reports whether err only reflects a cancelled context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
