package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store is the minimal read-only surface the dataset layer needs.
// Implementations must be safe for concurrent use.
type Store interface {
	// List returns up to limit object keys under prefix. Keys are
	// returned in full (prefix included), in storage order. A prefix
	// with no objects beneath it yields an empty slice, not an error.
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	// Get retrieves the object at key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewStore builds the store implementation matching the locator's
// protocol.
func NewStore(ctx context.Context, loc Locator) (Store, error) {
	switch loc.Protocol {
	case ProtocolFile:
		return NewFileStore(), nil
	case ProtocolS3:
		return NewS3Store(ctx, loc.Root)
	default:
		return nil, fmt.Errorf("protocol %q: %w", loc.Protocol, ErrUnsupportedProtocol)
	}
}
