package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// --- Fake S3 API for unit tests ---

type fakeObject struct {
	body     string
	etag     string
	modified time.Time
}

type fakeS3API struct {
	objects map[string]fakeObject
	lastIn  *s3.GetObjectInput
}

func (f *fakeS3API) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastIn = in
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	obj, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey: " + key)
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(strings.NewReader(obj.body)),
		ETag:         aws.String(obj.etag),
		LastModified: aws.Time(obj.modified),
	}, nil
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"simple", "s3://configs/app.json", "configs", "app.json", false},
		{"nested key", "s3://configs/env/prod/app.json", "configs", "env/prod/app.json", false},
		{"wrong scheme", "https://configs/app.json", "", "", true},
		{"no key", "s3://configs/", "", "", true},
		{"no bucket", "s3:///app.json", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseS3URL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseS3URL(%q) = (%q, %q), want (%q, %q)", tt.url, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestS3_Request(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeS3API{
		objects: map[string]fakeObject{
			"configs/app.json": {body: `{"ver": 4}`, etag: `"deadbeef"`, modified: modified},
		},
	}
	tr := newS3WithAPI(fake)

	data, err := tr.Request(context.Background(), "s3://configs/app.json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ver": 4}` {
		t.Errorf("unexpected body: %s", data)
	}

	info := tr.Describe()
	if info["etag"] != `"deadbeef"` {
		t.Errorf("expected etag %q, got %v", `"deadbeef"`, info["etag"])
	}
	if info["last_modified"] != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected last_modified: %v", info["last_modified"])
	}
}

func TestS3_DescribeBeforeRequest(t *testing.T) {
	tr := newS3WithAPI(&fakeS3API{objects: map[string]fakeObject{}})
	if info := tr.Describe(); len(info) != 0 {
		t.Errorf("expected empty description before a request, got %v", info)
	}

	// A failed request does not record anything either.
	_, _ = tr.Request(context.Background(), "s3://configs/missing.json", nil)
	if info := tr.Describe(); len(info) != 0 {
		t.Errorf("expected empty description after a failed request, got %v", info)
	}
}

func TestS3_RequestForwardsIfNoneMatch(t *testing.T) {
	fake := &fakeS3API{
		objects: map[string]fakeObject{
			"configs/app.json": {body: `{}`, etag: `"e1"`},
		},
	}
	tr := newS3WithAPI(fake)

	_, err := tr.Request(context.Background(), "s3://configs/app.json", map[string]string{
		"if-none-match": `"e0"`,
		"X-Ignored":     "yes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(fake.lastIn.IfNoneMatch); got != `"e0"` {
		t.Errorf("IfNoneMatch = %q, want %q", got, `"e0"`)
	}
}

func TestS3_RequestNotFound(t *testing.T) {
	tr := newS3WithAPI(&fakeS3API{objects: map[string]fakeObject{}})

	if _, err := tr.Request(context.Background(), "s3://configs/missing.json", nil); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestS3_RequestBadURL(t *testing.T) {
	fake := &fakeS3API{objects: map[string]fakeObject{}}
	tr := newS3WithAPI(fake)

	if _, err := tr.Request(context.Background(), "http://example.com/x", nil); err == nil {
		t.Fatal("expected error for non-s3 URL")
	}
	if fake.lastIn != nil {
		t.Error("GetObject should not be called for an invalid URL")
	}
}

func TestS3_CloseIsNoop(t *testing.T) {
	tr := &S3{}
	if err := tr.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestNewS3_WithEndpoint(t *testing.T) {
	// It won't actually connect since there's nothing listening.
	tr, err := NewS3(context.Background(), S3Config{
		Region:      "us-east-1",
		EndpointURL: "http://localhost:4566",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.client == nil {
		t.Error("expected client to be set")
	}
}
