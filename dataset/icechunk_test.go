package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoslab/multidim/common/config"
	"github.com/stratoslab/multidim/storage"
)

// fakeSession exposes a local zarr tree as an icechunk snapshot
type fakeSession struct {
	root       string
	containers []string
	closed     bool
}

func (s *fakeSession) Store() storage.Store { return storage.NewFileStore() }
func (s *fakeSession) Root() string         { return s.root }
func (s *fakeSession) VirtualChunkContainers(ctx context.Context) ([]string, error) {
	return s.containers, nil
}
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeVersionedStore struct {
	session  *fakeSession
	lastDesc StorageDescriptor
	lastRef  string
	creds    []VirtualChunkCredential
}

func (f *fakeVersionedStore) Open(ctx context.Context, desc StorageDescriptor, branch string, creds []VirtualChunkCredential) (Session, error) {
	f.lastDesc = desc
	f.lastRef = branch
	f.creds = creds
	return f.session, nil
}

// writeIcechunkRepo lays out a repo directory whose snapshot is served
// from a zarr fixture
func writeIcechunkRepo(t *testing.T, dir string) (repo, snapshot string) {
	t.Helper()
	repo = filepath.Join(dir, "icechunk_native")
	writeFixtureFile(t, filepath.Join(repo, "manifests", "abc"), []byte("manifest"))
	writeFixtureFile(t, filepath.Join(repo, "refs", "branch.main", "ref.json"), []byte("{}"))

	snapshot = filepath.Join(dir, "snapshot.zarr")
	writeZarrV2(t, snapshot, true)
	return repo, snapshot
}

func TestIcechunkWithoutVersionedStore(t *testing.T) {
	repo, _ := writeIcechunkRepo(t, t.TempDir())

	_, err := GuessOpener(context.Background(), repo, OpenOptions{})
	assert.ErrorIs(t, err, ErrVersionedStoreUnavailable)
}

func TestIcechunkOpensMainBranch(t *testing.T) {
	repo, snapshot := writeIcechunkRepo(t, t.TempDir())
	vs := &fakeVersionedStore{session: &fakeSession{root: snapshot}}

	ds, err := GuessOpener(context.Background(), repo, OpenOptions{VersionedStore: vs})
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, FormatIcechunk, ds.Format)
	assert.Equal(t, testDataVars, ds.DataVars())
	assert.Equal(t, "main", vs.lastRef)
	assert.Equal(t, storage.ProtocolFile, vs.lastDesc.Protocol)
	assert.Equal(t, repo, vs.lastDesc.Path)
}

func TestIcechunkUnauthorizedVirtualChunks(t *testing.T) {
	repo, snapshot := writeIcechunkRepo(t, t.TempDir())
	session := &fakeSession{
		root:       snapshot,
		containers: []string{"s3://external-archive/era5/"},
	}
	vs := &fakeVersionedStore{session: session}

	_, err := GuessOpener(context.Background(), repo, OpenOptions{VersionedStore: vs})
	assert.ErrorIs(t, err, ErrUnauthorizedChunkAccess)
	assert.True(t, session.closed, "session must be released on authorization failure")
}

func TestIcechunkAuthorizedVirtualChunks(t *testing.T) {
	repo, snapshot := writeIcechunkRepo(t, t.TempDir())
	session := &fakeSession{
		root:       snapshot,
		containers: []string{"s3://external-archive/era5/"},
	}
	vs := &fakeVersionedStore{session: session}

	access := map[string]config.ChunkAccessPolicy{
		"s3://external-archive/": {Anonymous: true},
	}

	ds, err := GuessOpener(context.Background(), repo, OpenOptions{
		VersionedStore:        vs,
		AuthorizedChunkAccess: access,
	})
	require.NoError(t, err)
	defer ds.Close()

	require.Len(t, vs.creds, 1)
	assert.Equal(t, "s3://external-archive/", vs.creds[0].Prefix)
	assert.True(t, vs.creds[0].Anonymous)
}

func TestIcechunkContainerBroaderThanPolicy(t *testing.T) {
	repo, snapshot := writeIcechunkRepo(t, t.TempDir())
	session := &fakeSession{
		root:       snapshot,
		containers: []string{"s3://external-archive/"},
	}
	vs := &fakeVersionedStore{session: session}

	// Only a sub-prefix of the referenced container carries a policy,
	// so the rest of the container has no credentials at all
	access := map[string]config.ChunkAccessPolicy{
		"s3://external-archive/era5/subset/": {Anonymous: true},
	}

	_, err := GuessOpener(context.Background(), repo, OpenOptions{
		VersionedStore:        vs,
		AuthorizedChunkAccess: access,
	})
	assert.ErrorIs(t, err, ErrUnauthorizedChunkAccess)
	assert.True(t, session.closed)
}

func TestIcechunkCloseReleasesSession(t *testing.T) {
	repo, snapshot := writeIcechunkRepo(t, t.TempDir())
	session := &fakeSession{root: snapshot}
	vs := &fakeVersionedStore{session: session}

	ds, err := GuessOpener(context.Background(), repo, OpenOptions{VersionedStore: vs})
	require.NoError(t, err)

	require.NoError(t, ds.Close())
	assert.True(t, session.closed)
}

func TestIcechunkDescriptorS3(t *testing.T) {
	loc := storage.Locator{Protocol: storage.ProtocolS3, Root: "bucket", Prefix: "repos/climate"}
	desc, err := icechunkDescriptor(loc)
	require.NoError(t, err)
	assert.Equal(t, "bucket", desc.Bucket)
	assert.Equal(t, "repos/climate", desc.Prefix)
}

func TestChunkCredentialsDeterministicOrder(t *testing.T) {
	access := map[string]config.ChunkAccessPolicy{
		"s3://b/": {FromEnv: true},
		"s3://a/": {Anonymous: true},
		"s3://c/": {AccessKey: "k", SecretKey: "s"},
	}

	creds := chunkCredentials(access)
	require.Len(t, creds, 3)
	assert.Equal(t, "s3://a/", creds[0].Prefix)
	assert.Equal(t, "s3://b/", creds[1].Prefix)
	assert.Equal(t, "s3://c/", creds[2].Prefix)
	assert.True(t, creds[2].AccessKey == "k" && creds[2].SecretKey == "s")
}
