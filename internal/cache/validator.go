package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Hasher produces hex digests over serialized payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts wall time for expiry checks.
type Clock interface {
	Now() time.Time
}

// ValidateFunc reports whether a payload's shape is acceptable. A nil error
// means the payload passes.
type ValidateFunc[T any] func(T) error

// defaultRefreshThreshold marks entries refresh-due at 80% of their TTL.
const defaultRefreshThreshold = 0.8

// Verdict is the combined outcome of entry validation.
type Verdict struct {
	Valid         bool
	Reason        string
	ShouldRefresh bool
}

// ValidatorConfig assembles a Validator's collaborators.
type ValidatorConfig[T any] struct {
	// Hasher computes entry checksums.
	Hasher Hasher
	// Clock drives expiry decisions.
	Clock Clock
	// Validate optionally checks payload shape beyond serializability.
	Validate ValidateFunc[T]
	// RefreshThreshold is the TTL fraction after which ValidateEntry flags a
	// refresh; zero means 0.8.
	RefreshThreshold float64
}

// Validator checks cache entries for structural sanity, checksum integrity,
// and expiry. Checksums are computed over a canonicalized serialization, so
// key order inside the payload never changes the digest.
type Validator[T any] struct {
	hasher           Hasher
	clock            Clock
	validate         ValidateFunc[T]
	refreshThreshold float64
}

// NewValidator builds a Validator from cfg.
func NewValidator[T any](cfg ValidatorConfig[T]) (*Validator[T], error) {
	if cfg.Hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	threshold := cfg.RefreshThreshold
	if threshold == 0 {
		threshold = defaultRefreshThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("refresh threshold %v outside [0,1]", threshold)
	}
	return &Validator[T]{
		hasher:           cfg.Hasher,
		clock:            cfg.Clock,
		validate:         cfg.Validate,
		refreshThreshold: threshold,
	}, nil
}

// Validate checks payload shape: it must serialize, and it must pass the
// configured schema check when one is present.
func (v *Validator[T]) Validate(data T) error {
	if _, err := json.Marshal(data); err != nil {
		return fmt.Errorf("payload not serializable: %w", err)
	}
	if v.validate != nil {
		if err := v.validate(data); err != nil {
			return fmt.Errorf("payload rejected: %w", err)
		}
	}
	return nil
}

// Checksum returns the digest of the canonicalized serialization of data.
func (v *Validator[T]) Checksum(data T) (string, error) {
	canonical, err := canonicalJSON(data)
	if err != nil {
		return "", err
	}
	digest, err := v.hasher.Hash(canonical)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return digest, nil
}

// IsExpired reports whether the entry's TTL has elapsed. An entry is expired
// from the instant now >= timestamp+ttl.
func (v *Validator[T]) IsExpired(entry Entry[T]) bool {
	return !v.clock.Now().Before(entry.Timestamp.Add(entry.TTL))
}

// ShouldRefresh reports whether the entry has consumed at least the given
// fraction of its TTL.
func (v *Validator[T]) ShouldRefresh(entry Entry[T], thresholdFraction float64) bool {
	if entry.TTL <= 0 {
		return true
	}
	age := v.clock.Now().Sub(entry.Timestamp)
	return float64(age) >= thresholdFraction*float64(entry.TTL)
}

// ValidateEntry combines expiry, structural, and checksum checks into a
// single verdict. Invalid entries always report refresh-due.
func (v *Validator[T]) ValidateEntry(entry Entry[T]) Verdict {
	if v.IsExpired(entry) {
		return Verdict{Reason: "expired", ShouldRefresh: true}
	}
	if err := v.Validate(entry.Data); err != nil {
		return Verdict{Reason: err.Error(), ShouldRefresh: true}
	}
	sum, err := v.Checksum(entry.Data)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("checksum recompute: %v", err), ShouldRefresh: true}
	}
	if sum != entry.Checksum {
		return Verdict{Reason: "checksum mismatch", ShouldRefresh: true}
	}
	return Verdict{Valid: true, ShouldRefresh: v.ShouldRefresh(entry, v.refreshThreshold)}
}

// canonicalJSON serializes data with all object keys sorted. The round trip
// through an untyped value turns struct fields into map form, which
// encoding/json writes in sorted key order.
func canonicalJSON(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("serialize canonical payload: %w", err)
	}
	return canonical, nil
}
