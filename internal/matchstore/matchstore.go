// Package matchstore persists one JSON document per league, keyed by match
// id, through the shared blob store contract.
package matchstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/crawl"
	"github.com/fixturelab/matchday-crawler/internal/storage"
)

// DefaultPrefix roots league files when no prefix is configured.
const DefaultPrefix = "leagues"

// Store reads and writes per-league match files. Records are merged by the
// caller; Save always writes the full document it is handed.
type Store struct {
	blobs  storage.BlobStore
	prefix string
	logger *zap.Logger
}

var _ crawl.MatchStore = (*Store)(nil)

// New builds a Store over blobs. prefix roots every league path; empty means
// DefaultPrefix.
func New(blobs storage.BlobStore, prefix string, logger *zap.Logger) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		blobs:  blobs,
		prefix: prefix,
		logger: logger.Named("matchstore"),
	}, nil
}

// Load returns the persisted records for one league. A league that has never
// been saved yields an empty map, not an error.
func (s *Store) Load(ctx context.Context, country, league string) (map[string]crawl.MatchRecord, error) {
	path, err := s.path(country, league)
	if err != nil {
		return nil, err
	}
	rc, err := s.blobs.GetObject(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return make(map[string]crawl.MatchRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open league file %s: %w", path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read league file %s: %w", path, err)
	}
	records := make(map[string]crawl.MatchRecord)
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode league file %s: %w", path, err)
	}
	return records, nil
}

// Save writes the full record set for one league and returns the backend URI.
func (s *Store) Save(ctx context.Context, country, league string, records map[string]crawl.MatchRecord) (string, error) {
	path, err := s.path(country, league)
	if err != nil {
		return "", err
	}
	if records == nil {
		records = map[string]crawl.MatchRecord{}
	}
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode league file %s: %w", path, err)
	}
	uri, err := s.blobs.PutObject(ctx, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("write league file %s: %w", path, err)
	}
	s.logger.Debug("league file saved",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return uri, nil
}

func (s *Store) path(country, league string) (string, error) {
	countrySlug := crawl.Slugify(country)
	leagueSlug := crawl.Slugify(league)
	if countrySlug == "" || leagueSlug == "" {
		return "", fmt.Errorf("league path for %q/%q has an empty segment", country, league)
	}
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, countrySlug, leagueSlug), nil
}
