package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fixturelab/matchday-crawler/internal/cache"
	"github.com/fixturelab/matchday-crawler/internal/clock/system"
	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/hash/sha256"
	"github.com/fixturelab/matchday-crawler/internal/storage"
)

// Snapshot is the persisted form of the match cache.
type Snapshot = cache.Export[crawl.MatchRecord]

// LoadSnapshot reads and decodes the cache snapshot stored at key. A missing
// object surfaces as storage.ErrNotFound.
func LoadSnapshot(ctx context.Context, blobs storage.BlobStore, key string) (Snapshot, error) {
	var blob Snapshot
	rc, err := blobs.GetObject(ctx, key)
	if err != nil {
		return blob, fmt.Errorf("open snapshot %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return blob, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return blob, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return blob, nil
}

// SaveSnapshot encodes blob and writes it at key, returning the backend URI.
func SaveSnapshot(ctx context.Context, blobs storage.BlobStore, key string, blob Snapshot) (string, error) {
	payload, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	uri, err := blobs.PutObject(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return uri, nil
}

// ValidateSnapshot round-trips blob through a scratch cache, returning the
// canonical export and the number of entries that imported cleanly. Entries
// with bad checksums or expired timestamps are dropped, mirroring what a
// restore at startup would keep.
func ValidateSnapshot(blob Snapshot, ttl time.Duration) (Snapshot, int, error) {
	store, err := newScratchCache(ttl)
	if err != nil {
		return Snapshot{}, 0, err
	}
	n, err := store.Import(blob)
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("import snapshot: %w", err)
	}
	return store.Export(), n, nil
}

func newScratchCache(ttl time.Duration) (*cache.Store[crawl.MatchRecord], error) {
	clk := system.New()
	validator, err := cache.NewValidator[crawl.MatchRecord](cache.ValidatorConfig[crawl.MatchRecord]{
		Hasher: sha256.New(),
		Clock:  clk,
	})
	if err != nil {
		return nil, fmt.Errorf("init snapshot validator: %w", err)
	}
	store, err := cache.New[crawl.MatchRecord](cache.Config{DefaultTTL: ttl}, validator, clk, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}
	return store, nil
}
