package cache

import (
	"context"
	"sync"
	"time"

	"github.com/artemnikitin/remoteconf/internal/document"
)

// Fixed answers every call with canned responses and records how often
// each method ran. It is meant for tests of code that consumes a Gateway.
type Fixed struct {
	mu sync.Mutex

	// Valid is returned by IsValid.
	Valid bool
	// Config is returned by Read. Nil means "nothing cached".
	Config *document.Configuration
	// ReadErr, WriteErr and DeleteErr are returned by the matching calls.
	ReadErr   error
	WriteErr  error
	DeleteErr error

	// Written holds every configuration passed to Write.
	Written []document.Configuration

	ValidCalls  int
	ReadCalls   int
	WriteCalls  int
	DeleteCalls int
}

// NewFixed returns a Fixed gateway holding cfg. When valid is true IsValid
// reports the record as fresh.
func NewFixed(cfg *document.Configuration, valid bool) *Fixed {
	return &Fixed{Config: cfg, Valid: valid}
}

func (f *Fixed) IsValid(_ context.Context, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidCalls++
	return f.Valid
}

func (f *Fixed) Read(_ context.Context) (*document.Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadCalls++
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	if f.Config == nil {
		return nil, nil
	}
	cfg := *f.Config
	return &cfg, nil
}

// Write records cfg. On success the record becomes the new Config, but
// Valid is left alone.
func (f *Fixed) Write(_ context.Context, cfg document.Configuration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Written = append(f.Written, cfg)
	f.Config = &cfg
	return nil
}

// Delete drops the record and marks the cache invalid.
func (f *Fixed) Delete(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Config = nil
	f.Valid = false
	return nil
}
