package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3GetAPI is the subset of S3 operations needed by the transport.
type s3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 fetches payloads addressed as s3://<bucket>/<key>.
//
// Headers have no S3 equivalent and are ignored, except If-None-Match which
// is forwarded as a conditional GET.
type S3 struct {
	client s3GetAPI

	mu           sync.Mutex
	lastETag     string
	lastModified time.Time
}

// S3Config holds options for creating an S3 transport.
type S3Config struct {
	// Region is the AWS region. If empty, it's resolved from the environment.
	Region string
	// EndpointURL overrides the S3 endpoint (useful for LocalStack/MinIO testing).
	EndpointURL string
}

// NewS3 creates an S3 transport. AWS credentials are resolved from the
// standard chain (env vars, instance profile, shared config, etc.).
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	client, err := NewS3Client(ctx, cfg.Region, cfg.EndpointURL)
	if err != nil {
		return nil, err
	}
	return newS3WithAPI(client), nil
}

// NewS3Client builds an S3 client from the default credential chain with
// an optional region and endpoint override.
func NewS3Client(ctx context.Context, region, endpointURL string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func newS3WithAPI(api s3GetAPI) *S3 {
	return &S3{client: api}
}

// Request downloads the object named by rawURL.
func (s *S3) Request(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if etag := headerValue(headers, "If-None-Match"); etag != "" {
		in.IfNoneMatch = aws.String(etag)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s body: %w", bucket, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if out.ETag != nil {
		s.lastETag = *out.ETag
	}
	if out.LastModified != nil {
		s.lastModified = out.LastModified.UTC()
	}

	return data, nil
}

// Describe reports the ETag and LastModified of the most recently
// downloaded object.
func (s *S3) Describe() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := map[string]any{}
	if s.lastETag != "" {
		info["etag"] = s.lastETag
	}
	if !s.lastModified.IsZero() {
		info["last_modified"] = s.lastModified.Format(time.RFC3339)
	}
	return info
}

// Close is a no-op for the S3 transport (no persistent resources to release).
func (s *S3) Close() error {
	return nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported scheme %q in %q (expected s3)", u.Scheme, rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%q must be of the form s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
