package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 retrieves locators as JSON objects in a bucket.
// The locator "groups/itemA" maps to the key "<prefix>groups/itemA.json".
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	suffix  string
	maxSize int64
}

// NewS3 creates an S3 retriever.
//
// Parameters:
//   - client: S3 client from aws-sdk-go-v2
//   - bucket: bucket name
//   - prefix: key prefix (e.g., "fixtures/")
func NewS3(client S3API, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		suffix:  ".json",
		maxSize: DefaultMaxBodySize,
	}
}

// WithSuffix sets the object key suffix (default ".json").
func (s *S3) WithSuffix(suffix string) *S3 {
	s.suffix = suffix
	return s
}

// Key returns the object key for a locator.
func (s *S3) Key(locator string) string {
	clean := strings.TrimPrefix(path.Clean("/"+locator), "/")
	return s.prefix + clean + s.suffix
}

// Retrieve implements Retriever.
func (s *S3) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(locator)),
	})
	if err != nil {
		return nil, s.classify(ctx, locator, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, s.maxSize+1))
	if err != nil {
		return nil, s.classify(ctx, locator, err)
	}
	if int64(len(body)) > s.maxSize {
		return nil, ParseError(locator, fmt.Errorf("object exceeds %d bytes", s.maxSize))
	}
	return body, nil
}

func (s *S3) classify(ctx context.Context, locator string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return ResponseError(locator, http.StatusNotFound)
	}
	var nb *types.NoSuchBucket
	if errors.As(err, &nb) {
		return ResponseError(locator, http.StatusNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutError(locator, err)
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		fe := ResponseError(locator, re.HTTPStatusCode())
		fe.Err = err
		return fe
	}
	return NetworkError(locator, err)
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region       string
	Endpoint     string // custom endpoint, e.g. a MinIO or LocalStack URL
	UsePathStyle bool
}

// NewS3Client builds an S3 client from static options. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN; without
// them requests are sent anonymously.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
		Credentials:  envCredentials(),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

func envCredentials() aws.CredentialsProvider {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "Environment",
		}, nil
	}))
}
