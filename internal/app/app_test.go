package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixturelab/matchday-crawler/internal/config"
	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/storage"
	"github.com/fixturelab/matchday-crawler/internal/storage/memory"
)

func TestNewBlobStoreLocal(t *testing.T) {
	t.Parallel()

	blobs, closeFn, err := NewBlobStore(context.Background(), config.StorageConfig{
		Backend: "local",
		BaseDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)
	require.Nil(t, closeFn)

	uri, err := blobs.PutObject(context.Background(), "probe.json", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.NotEmpty(t, uri)

	rc, err := blobs.GetObject(context.Background(), "probe.json")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestNewBlobStoreMemory(t *testing.T) {
	t.Parallel()

	blobs, closeFn, err := NewBlobStore(context.Background(), config.StorageConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	require.Nil(t, closeFn)
	require.NotNil(t, blobs)
}

func TestNewBlobStoreUnknownBackend(t *testing.T) {
	t.Parallel()

	_, _, err := NewBlobStore(context.Background(), config.StorageConfig{Backend: "s3"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown storage backend")
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := newScratchCache(time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Set("matches:england:premier-league:g_1_abc", testMatch("g_1_abc")))
	require.NoError(t, store.Set("matches:spain:laliga:g_1_def", testMatch("g_1_def")))

	blobs := memory.NewBlobStore()
	uri, err := SaveSnapshot(context.Background(), blobs, "cache/snapshot.json", store.Export())
	require.NoError(t, err)
	require.NotEmpty(t, uri)

	blob, err := LoadSnapshot(context.Background(), blobs, "cache/snapshot.json")
	require.NoError(t, err)
	require.Equal(t, 1, blob.Version)
	require.Len(t, blob.Entries, 2)
	require.Equal(t, "matches:england:premier-league:g_1_abc", blob.Entries[0].Key)
	require.Equal(t, "g_1_abc", blob.Entries[0].Data.ID)
	require.NotEmpty(t, blob.Entries[0].Metadata.Checksum)
}

func TestLoadSnapshotMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshot(context.Background(), memory.NewBlobStore(), "cache/snapshot.json")
	require.Error(t, err)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(context.Background(), "cache/snapshot.json", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)

	_, err = LoadSnapshot(context.Background(), blobs, "cache/snapshot.json")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode snapshot")
}

func TestValidateSnapshotDropsTamperedEntries(t *testing.T) {
	t.Parallel()

	store, err := newScratchCache(time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Set("matches:england:premier-league:g_1_abc", testMatch("g_1_abc")))
	require.NoError(t, store.Set("matches:spain:laliga:g_1_def", testMatch("g_1_def")))

	blob := store.Export()
	blob.Entries[1].Metadata.Checksum = "deadbeef"

	canonical, n, err := ValidateSnapshot(blob, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, canonical.Entries, 1)
	require.Equal(t, blob.Entries[0].Key, canonical.Entries[0].Key)
}

func TestValidateSnapshotRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	_, _, err := ValidateSnapshot(Snapshot{Version: 99}, time.Hour)
	require.Error(t, err)
	require.Contains(t, err.Error(), "import snapshot")
}

func testMatch(id string) crawl.MatchRecord {
	return crawl.MatchRecord{
		ID:     id,
		Status: "finished",
		Home:   crawl.Team{Name: "Arsenal"},
		Away:   crawl.Team{Name: "Chelsea"},
		Score:  "2-1",
	}
}
