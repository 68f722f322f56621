package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/storage"
)

// StorageDescriptor tells the versioned store where a repository lives.
// Credentials for the repository's own storage come from the process
// environment or IAM role, never from the URL.
type StorageDescriptor struct {
	Protocol storage.Protocol
	// Path is set for local repositories
	Path string
	// Bucket and Prefix are set for object-storage repositories
	Bucket string
	Prefix string
}

// VirtualChunkCredential scopes one credential policy to a URL prefix.
// It governs access to chunks referenced by the repository but stored
// outside its own root.
type VirtualChunkCredential struct {
	Prefix    string
	Anonymous bool
	FromEnv   bool
	AccessKey string
	SecretKey string
}

// Session is a read-only view of a versioned repository at one
// snapshot. The zarr hierarchy it exposes is read through Store, so
// everything downstream of the opener is format-agnostic.
type Session interface {
	// Store reads objects of the snapshot's zarr hierarchy
	Store() storage.Store
	// Root is the key prefix of the hierarchy inside Store
	Root() string
	// VirtualChunkContainers lists the external URL prefixes the
	// snapshot references
	VirtualChunkContainers(ctx context.Context) ([]string, error)
	Close() error
}

// VersionedStore is the consumed contract of the icechunk library. The
// capability is resolved at startup: a deployment without the library
// simply injects nil and icechunk opens fail eagerly.
type VersionedStore interface {
	Open(ctx context.Context, desc StorageDescriptor, branch string, creds []VirtualChunkCredential) (Session, error)
}

// openIcechunk resolves the "main" branch of a transactional store to a
// read-only session and exposes it as a plain dataset handle.
func openIcechunk(ctx context.Context, _ storage.Store, loc storage.Locator, opts OpenOptions) (*Dataset, error) {
	if opts.VersionedStore == nil {
		return nil, fmt.Errorf("%s: %w", loc, ErrVersionedStoreUnavailable)
	}

	desc, err := icechunkDescriptor(loc)
	if err != nil {
		return nil, err
	}

	sess, err := opts.VersionedStore.Open(ctx, desc, "main", chunkCredentials(opts.AuthorizedChunkAccess))
	if err != nil {
		return nil, fmt.Errorf("opening icechunk session for %s: %w", loc, err)
	}

	containers, err := sess.VirtualChunkContainers(ctx)
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("listing virtual chunk containers of %s: %w", loc, err)
	}
	for _, container := range containers {
		if !prefixAuthorized(container, opts.AuthorizedChunkAccess) {
			sess.Close()
			return nil, fmt.Errorf("prefix %q referenced by %s: %w", container, loc, ErrUnauthorizedChunkAccess)
		}
	}

	ds, err := openZarr(ctx, sess.Store(), sess.Root(), opts)
	if err != nil {
		sess.Close()
		return nil, err
	}
	ds.Format = FormatIcechunk
	ds.closer = sess.Close
	return ds, nil
}

// icechunkDescriptor builds the storage descriptor for the repository
// root. Only file and s3 repositories are defined.
func icechunkDescriptor(loc storage.Locator) (StorageDescriptor, error) {
	switch loc.Protocol {
	case storage.ProtocolFile:
		return StorageDescriptor{
			Protocol: storage.ProtocolFile,
			Path:     loc.Prefix,
		}, nil
	case storage.ProtocolS3:
		return StorageDescriptor{
			Protocol: storage.ProtocolS3,
			Bucket:   loc.Root,
			Prefix:   loc.Prefix,
		}, nil
	default:
		return StorageDescriptor{}, fmt.Errorf("icechunk over %q: %w", loc.Protocol, storage.ErrUnsupportedProtocol)
	}
}

// chunkCredentials turns the configured prefix policies into scoped
// credential descriptors, in deterministic order
func chunkCredentials(access map[string]config.ChunkAccessPolicy) []VirtualChunkCredential {
	prefixes := make([]string, 0, len(access))
	for prefix := range access {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	creds := make([]VirtualChunkCredential, 0, len(prefixes))
	for _, prefix := range prefixes {
		policy := access[prefix]
		creds = append(creds, VirtualChunkCredential{
			Prefix:    prefix,
			Anonymous: policy.Anonymous,
			FromEnv:   policy.FromEnv,
			AccessKey: policy.AccessKey,
			SecretKey: policy.SecretKey,
		})
	}
	return creds
}

// prefixAuthorized reports whether a referenced container falls under
// a configured policy prefix. A container broader than every policy is
// not authorized: parts of it would have no credentials, and that must
// fail the open, not some later chunk read.
func prefixAuthorized(container string, access map[string]config.ChunkAccessPolicy) bool {
	for prefix := range access {
		if strings.HasPrefix(container, prefix) {
			return true
		}
	}
	return false
}
