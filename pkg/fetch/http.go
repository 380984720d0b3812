package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxBodySize caps response bodies read by HTTP.
const DefaultMaxBodySize = 4 << 20

// HTTPClient is the subset of *http.Client used by HTTP.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP retrieves locators relative to a base URL with GET requests.
type HTTP struct {
	BaseURL *url.URL
	Client  HTTPClient
	Header  http.Header
	MaxSize int64         // max body size in bytes (0 = DefaultMaxBodySize)
	Timeout time.Duration // per-request timeout (0 = no extra timeout beyond context)
}

// NewHTTP parses base and returns an HTTP retriever using http.DefaultClient.
func NewHTTP(base string) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &HTTP{BaseURL: u, Client: http.DefaultClient}, nil
}

// Retrieve implements Retriever.
func (h *HTTP) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	target, err := h.resolve(locator)
	if err != nil {
		return nil, NetworkError(locator, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NetworkError(locator, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, TimeoutError(locator, err)
		}
		return nil, NetworkError(locator, fmt.Errorf("fetching %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, ResponseError(locator, resp.StatusCode)
	}

	maxSize := h.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, TimeoutError(locator, err)
		}
		return nil, NetworkError(locator, fmt.Errorf("reading body: %w", err))
	}
	if int64(len(body)) > maxSize {
		return nil, ParseError(locator, fmt.Errorf("body exceeds %d bytes", maxSize))
	}
	return body, nil
}

func (h *HTTP) resolve(locator string) (string, error) {
	if h.BaseURL == nil {
		u, err := url.Parse(locator)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}
	ref, err := url.Parse(strings.TrimPrefix(locator, "/"))
	if err != nil {
		return "", err
	}
	return h.BaseURL.ResolveReference(ref).String(), nil
}
