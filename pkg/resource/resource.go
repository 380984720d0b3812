package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of a resource.
type State int

const (
	Idle    State = iota // Nothing observed yet
	Loading              // Retrieval in flight
	Success              // Data retrieved for the current key
	Failure              // Retrieval failed for the current key
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition happens without a key change.
func (s State) Terminal() bool {
	return s == Success || s == Failure
}

// ErrTimeout is reported when a retrieval exceeds the configured timeout.
var ErrTimeout = errors.New("request timed out")

// ErrClosed is returned by Wait once the resource has been closed.
var ErrClosed = errors.New("resource closed")

// PanicError reports a panic recovered from a fetcher.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetch panicked: %v", e.Value)
}

// Fetcher retrieves the value identified by key.
type Fetcher[K comparable, T any] interface {
	Fetch(ctx context.Context, key K) (T, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[K comparable, T any] func(ctx context.Context, key K) (T, error)

// Fetch calls f(ctx, key).
func (f FetcherFunc[K, T]) Fetch(ctx context.Context, key K) (T, error) {
	return f(ctx, key)
}

// Snapshot is an immutable view of a resource.
// Data is only meaningful in Success and Err only in Failure.
type Snapshot[K comparable, T any] struct {
	Key   K
	State State
	Data  T
	Err   error

	// Generation identifies the fetch cycle this snapshot belongs to.
	Generation uint64

	seq uint64
}

// Message returns the human-readable failure message, or "" outside Failure.
func (s Snapshot[K, T]) Message() string {
	if s.State != Failure || s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Resource manages the asynchronous retrieval of a keyed value.
// A Resource is safe for concurrent use. Call Close when the consuming view
// goes away so in-flight work is cancelled and subscribers are released.
type Resource[K comparable, T any] struct {
	fetcher Fetcher[K, T]

	mu       sync.Mutex
	snap     Snapshot[K, T]
	gen      uint64 // For cancelling/ignoring outdated fetches
	seq      uint64
	cancel   context.CancelFunc
	settled  chan struct{}
	closed   bool
	done     chan struct{}
	baseCtx  context.Context
	stopBase context.CancelFunc

	// Options
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	onSuccess  func(T)
	onError    func(error)
	onDiscard  func(K)
	logger     *slog.Logger

	// Subscribers
	subs     map[uint64]*subscriber[K, T]
	nextSub  uint64
	queue    []delivery[K, T]
	wake     chan struct{}
	notifier bool
}

// New creates an Idle resource. Nothing is fetched until Observe is called.
func New[K comparable, T any](fetcher Fetcher[K, T]) *Resource[K, T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Resource[K, T]{
		fetcher:  fetcher,
		done:     make(chan struct{}),
		baseCtx:  ctx,
		stopBase: cancel,
		logger:   slog.Default(),
		subs:     make(map[uint64]*subscriber[K, T]),
		wake:     make(chan struct{}, 1),
	}
}

// NewFunc is New for a plain function.
func NewFunc[K comparable, T any](fn func(ctx context.Context, key K) (T, error)) *Resource[K, T] {
	return New[K, T](FetcherFunc[K, T](fn))
}

// Observe points the resource at key.
//
// On the first call, or when key differs from the current key, the resource
// moves to Loading and issues exactly one retrieval; the returned snapshot is
// that Loading state. Observing the current key again returns the current
// snapshot without fetching, whatever state it is in.
func (r *Resource[K, T]) Observe(key K) Snapshot[K, T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.snap
	}
	if r.snap.State != Idle && r.snap.Key == key {
		return r.snap
	}
	return r.startLocked(key)
}

// Reload starts a new fetch cycle for the current key.
// It is a no-op on an Idle or closed resource.
func (r *Resource[K, T]) Reload() Snapshot[K, T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.snap.State == Idle {
		return r.snap
	}
	return r.startLocked(r.snap.Key)
}

// Snapshot returns the current state.
func (r *Resource[K, T]) Snapshot() Snapshot[K, T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Key returns the currently observed key and whether one has been observed.
func (r *Resource[K, T]) Key() (K, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Key, r.snap.State != Idle
}

// State returns the current state.
func (r *Resource[K, T]) State() State {
	return r.Snapshot().State
}

// IsLoading reports whether a retrieval is in flight.
func (r *Resource[K, T]) IsLoading() bool {
	return r.State() == Loading
}

// Data returns the current data, or the zero value outside Success.
func (r *Resource[K, T]) Data() T {
	return r.Snapshot().Data
}

// DataOr returns the current data in Success, fallback otherwise.
func (r *Resource[K, T]) DataOr(fallback T) T {
	snap := r.Snapshot()
	if snap.State == Success {
		return snap.Data
	}
	return fallback
}

// Error returns the failure, or nil outside Failure.
func (r *Resource[K, T]) Error() error {
	return r.Snapshot().Err
}

// Wait blocks until the current key reaches Success or Failure and returns
// that snapshot. If the key changes while waiting, Wait follows the new key.
// An Idle resource returns immediately.
func (r *Resource[K, T]) Wait(ctx context.Context) (Snapshot[K, T], error) {
	for {
		r.mu.Lock()
		snap := r.snap
		settled := r.settled
		closed := r.closed
		r.mu.Unlock()

		if snap.State != Loading {
			return snap, nil
		}
		if closed || settled == nil {
			return snap, ErrClosed
		}

		select {
		case <-settled:
		case <-r.done:
			return r.Snapshot(), ErrClosed
		case <-ctx.Done():
			return r.Snapshot(), ctx.Err()
		}
	}
}

// Close abandons the resource. The in-flight retrieval is cancelled, its
// result is discarded, and subscribers and watchers are released.
// Close is idempotent.
func (r *Resource[K, T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.settled != nil {
		close(r.settled)
		r.settled = nil
	}
	r.stopBase()
	r.queue = nil
	close(r.done)
}

// Done is closed when the resource is closed.
func (r *Resource[K, T]) Done() <-chan struct{} {
	return r.done
}

// startLocked begins a new generation for key. r.mu must be held.
func (r *Resource[K, T]) startLocked(key K) Snapshot[K, T] {
	r.gen++
	gen := r.gen

	if r.cancel != nil {
		r.cancel()
	}
	if r.settled != nil {
		close(r.settled)
	}
	r.settled = make(chan struct{})

	var ctx context.Context
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(r.baseCtx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(r.baseCtx)
	}
	r.cancel = cancel

	snap := r.publishLocked(Snapshot[K, T]{Key: key, State: Loading, Generation: gen})

	opts := fetchOptions{retryCount: r.retryCount, retryDelay: r.retryDelay}
	go r.run(ctx, cancel, key, gen, opts)

	return snap
}

type fetchOptions struct {
	retryCount int
	retryDelay time.Duration
}

func (r *Resource[K, T]) run(ctx context.Context, cancel context.CancelFunc, key K, gen uint64, opts fetchOptions) {
	defer cancel()

	var result T
	var err error

	maxAttempts := 1 + opts.retryCount
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-time.After(opts.retryDelay):
			case <-ctx.Done():
			}
		}

		// Check if superseded
		if !r.isCurrent(gen) {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		result, err = r.fetchOnce(ctx, key)
		if err == nil {
			break
		}
	}

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	r.settle(key, gen, result, err)
}

type fetchResult[T any] struct {
	data T
	err  error
}

// fetchOnce runs one fetch attempt and gives up when ctx is done, even if
// the fetcher ignores ctx.
func (r *Resource[K, T]) fetchOnce(ctx context.Context, key K) (T, error) {
	ch := make(chan fetchResult[T], 1)
	go func() {
		data, err := r.safeFetch(ctx, key)
		ch <- fetchResult[T]{data: data, err: err}
	}()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Resource[K, T]) safeFetch(ctx context.Context, key K) (result T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return r.fetcher.Fetch(ctx, key)
}

func (r *Resource[K, T]) isCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.gen == gen
}

// settle applies the outcome of generation gen if it is still current.
func (r *Resource[K, T]) settle(key K, gen uint64, data T, err error) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		onDiscard := r.onDiscard
		logger := r.logger
		r.mu.Unlock()

		logger.Debug("resource: discarding stale result",
			"key", fmt.Sprint(key),
			"generation", gen,
		)
		if onDiscard != nil {
			onDiscard(key)
		}
		return
	}

	next := Snapshot[K, T]{Key: key, Generation: gen}
	if err != nil {
		next.State = Failure
		next.Err = err
	} else {
		next.State = Success
		next.Data = data
	}
	r.publishLocked(next)

	r.cancel = nil
	if r.settled != nil {
		close(r.settled)
		r.settled = nil
	}

	onSuccess, onError := r.onSuccess, r.onError
	logger := r.logger
	r.mu.Unlock()

	if err != nil {
		logger.Debug("resource: fetch failed", "key", fmt.Sprint(key), "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(data)
	}
}
