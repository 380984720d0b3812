package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// OpenOptions configures Open.
type OpenOptions struct {
	Timeout time.Duration
	S3      S3Options

	// S3Client overrides the client built from S3. Used by tests.
	S3Client S3API
}

// Open returns a retriever for a source URI:
//
//	http://localhost:8000      GET <base>/<locator>
//	s3://bucket/prefix         GetObject <prefix>/<locator>.json
func Open(source string, opts OpenOptions) (Retriever, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parsing source %q: %w", source, err)
	}

	switch u.Scheme {
	case "http", "https":
		h, err := NewHTTP(source)
		if err != nil {
			return nil, err
		}
		h.Timeout = opts.Timeout
		return h, nil

	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("source %q: missing bucket", source)
		}
		client := opts.S3Client
		if client == nil {
			client = NewS3Client(opts.S3)
		}
		return NewS3(client, u.Host, strings.TrimPrefix(u.Path, "/")), nil

	default:
		return nil, fmt.Errorf("source %q: unsupported scheme %q", source, u.Scheme)
	}
}
