// Package storage provides protocol-neutral access to the object stores
// and local directories that hold multi-dimensional array datasets. All
// format detection upstream relies only on the bounded listing primitive
// defined here, which behaves identically for local and remote backends.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnsupportedProtocol is returned for URL schemes other than
// local-file or object-storage. Callers must fail fast on it and never
// attempt to open the location.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// Protocol identifies a storage backend family
type Protocol string

const (
	ProtocolFile Protocol = "file"
	ProtocolS3   Protocol = "s3"
)

// Locator is a parsed dataset URL. It is derived purely from the input
// string and carries no mutable state.
type Locator struct {
	Protocol Protocol
	// Root is the bucket name for s3, empty for local paths
	Root string
	// Prefix is the object key prefix for s3, or the local path
	Prefix string
}

// String reassembles the locator into URL form
func (l Locator) String() string {
	switch l.Protocol {
	case ProtocolS3:
		return fmt.Sprintf("s3://%s/%s", l.Root, l.Prefix)
	default:
		return l.Prefix
	}
}

// ParseLocator decomposes a dataset URL into protocol, bucket-or-root
// and path prefix. Bare paths are treated as local files. Any scheme
// other than file:// or s3:// fails with ErrUnsupportedProtocol.
func ParseLocator(src string) (Locator, error) {
	switch {
	case strings.HasPrefix(src, "s3://"):
		rest := strings.TrimPrefix(src, "s3://")
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Locator{}, fmt.Errorf("missing bucket in %q: %w", src, ErrUnsupportedProtocol)
		}
		return Locator{
			Protocol: ProtocolS3,
			Root:     bucket,
			Prefix:   strings.TrimSuffix(prefix, "/"),
		}, nil

	case strings.HasPrefix(src, "file://"):
		return Locator{
			Protocol: ProtocolFile,
			Prefix:   path.Clean(strings.TrimPrefix(src, "file://")),
		}, nil

	case strings.Contains(src, "://"):
		scheme, _, _ := strings.Cut(src, "://")
		return Locator{}, fmt.Errorf("scheme %q: %w", scheme, ErrUnsupportedProtocol)

	default:
		// Bare paths are local files
		return Locator{
			Protocol: ProtocolFile,
			Prefix:   path.Clean(src),
		}, nil
	}
}
