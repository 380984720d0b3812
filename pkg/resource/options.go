package resource

import (
	"log/slog"
	"time"
)

// Timeout bounds each fetch cycle. Expiry settles the resource in Failure
// with an error matching ErrTimeout. Zero disables the timeout.
func (r *Resource[K, T]) Timeout(d time.Duration) *Resource[K, T] {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
	return r
}

// RetryOnError sets the number of retries and delay between them.
// Retries happen inside one Loading phase.
func (r *Resource[K, T]) RetryOnError(count int, delay time.Duration) *Resource[K, T] {
	r.mu.Lock()
	r.retryCount = count
	r.retryDelay = delay
	r.mu.Unlock()
	return r
}

// OnSuccess registers a callback to be called when data is successfully loaded.
func (r *Resource[K, T]) OnSuccess(fn func(T)) *Resource[K, T] {
	r.mu.Lock()
	r.onSuccess = fn
	r.mu.Unlock()
	return r
}

// OnError registers a callback to be called when data loading fails.
func (r *Resource[K, T]) OnError(fn func(error)) *Resource[K, T] {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
	return r
}

// OnDiscard registers a callback for results dropped because their key was
// superseded or the resource was closed.
func (r *Resource[K, T]) OnDiscard(fn func(K)) *Resource[K, T] {
	r.mu.Lock()
	r.onDiscard = fn
	r.mu.Unlock()
	return r
}

// WithLogger sets the logger. A nil logger restores slog.Default().
func (r *Resource[K, T]) WithLogger(logger *slog.Logger) *Resource[K, T] {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
	return r
}
