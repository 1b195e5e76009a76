package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// s3API is the subset of S3 operations needed by S3Storage.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Storage stores blobs as objects under s3://<bucket>/<prefix><name>.
// The object's LastModified stands in for the file modification time, so
// several hosts can share one cached copy.
type S3Storage struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Storage creates an S3Storage with a pre-configured client.
func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}
}

func newS3StorageWithAPI(api s3API, bucket, prefix string) *S3Storage {
	return &S3Storage{client: api, bucket: bucket, prefix: prefix}
}

func (s *S3Storage) key(name string) string {
	return s.prefix + name
}

// ReadFile downloads a blob.
func (s *S3Storage) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap("GetObject", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s body: %w", s.bucket, key, err)
	}
	return data, nil
}

// WriteFile uploads a blob, replacing any previous object.
func (s *S3Storage) WriteFile(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return s.wrap("PutObject", key, err)
	}
	return nil
}

// Remove deletes a blob. S3 reports success for missing keys, so a HEAD
// first keeps the fs.ErrNotExist contract.
func (s *S3Storage) Remove(ctx context.Context, name string) error {
	if _, err := s.ModTime(ctx, name); err != nil {
		return err
	}
	key := s.key(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap("DeleteObject", key, err)
	}
	return nil
}

// ModTime returns the object's LastModified.
func (s *S3Storage) ModTime(ctx context.Context, name string) (time.Time, error) {
	key := s.key(name)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return time.Time{}, s.wrap("HeadObject", key, err)
	}
	if out.LastModified == nil {
		return time.Time{}, fmt.Errorf("s3://%s/%s has no LastModified", s.bucket, key)
	}
	return out.LastModified.UTC(), nil
}

// wrap annotates an S3 error and maps "not found" onto fs.ErrNotExist.
func (s *S3Storage) wrap(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s s3://%s/%s: %w", op, s.bucket, key, fs.ErrNotExist)
	}
	return fmt.Errorf("%s s3://%s/%s: %w", op, s.bucket, key, err)
}

// isNotFound returns true if the error indicates the S3 object does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	// Fallback for test fakes and non-AWS errors.
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound")
}
