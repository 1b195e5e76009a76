package cache

import (
	"context"
	"time"

	"github.com/artemnikitin/remoteconf/internal/document"
)

// Noop never holds a record: it is always invalid, reads as empty and
// discards writes.
type Noop struct{}

func (Noop) IsValid(context.Context, time.Duration) bool { return false }

func (Noop) Read(context.Context) (*document.Configuration, error) { return nil, nil }

func (Noop) Write(context.Context, document.Configuration) error { return nil }

func (Noop) Delete(context.Context) error { return nil }
