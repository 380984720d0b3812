package fetch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fundsavy/fundsavy/pkg/resource"
)

// Retriever returns the raw body stored at a locator.
// Implementations report failures as *Error.
type Retriever interface {
	Retrieve(ctx context.Context, locator string) ([]byte, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, locator string) ([]byte, error)

// Retrieve calls f(ctx, locator).
func (f RetrieverFunc) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// Middleware decorates a Retriever.
type Middleware func(Retriever) Retriever

// Chain wraps r with mw, the first middleware being the outermost.
func Chain(r Retriever, mw ...Middleware) Retriever {
	for i := len(mw) - 1; i >= 0; i-- {
		r = mw[i](r)
	}
	return r
}

// JSON returns a fetcher that retrieves the locator and decodes it as T.
func JSON[T any](r Retriever) resource.FetcherFunc[string, T] {
	return Keyed[string, T](r, func(locator string) string { return locator })
}

// Keyed returns a fetcher that maps each key to a locator with locate,
// retrieves it and decodes the body as JSON into T.
func Keyed[K comparable, T any](r Retriever, locate func(K) string) resource.FetcherFunc[K, T] {
	return func(ctx context.Context, key K) (T, error) {
		var out T
		locator := locate(key)

		body, err := r.Retrieve(ctx, locator)
		if err != nil {
			return out, classify(ctx, locator, err)
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return out, ParseError(locator, err)
		}
		return out, nil
	}
}

// classify makes sure every failure leaving a fetcher is an *Error.
func classify(ctx context.Context, locator string, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutError(locator, err)
	}
	return NetworkError(locator, err)
}
