package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidKeyFormat signals a key that does not follow the structured
// prefix:part:... grammar.
var ErrInvalidKeyFormat = errors.New("invalid cache key format")

// Structured key prefixes.
const (
	PrefixMatch   = "match"
	PrefixLeague  = "league"
	PrefixSeason  = "season"
	PrefixCountry = "country"
	PrefixURL     = "url"
	PrefixSearch  = "search"
)

// digestLen is the number of hex characters kept from opaque-input digests.
const digestLen = 8

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	keySegment = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// segment counts accepted per known prefix; unknown prefixes are unchecked.
var keyArity = map[string][]int{
	PrefixMatch:   {1},
	PrefixCountry: {1},
	PrefixLeague:  {2},
	PrefixSeason:  {3},
	PrefixURL:     {1},
	PrefixSearch:  {1, 2},
}

// Key is the decomposed form of a structured cache key.
type Key struct {
	Prefix string
	Parts  []string
}

// String reassembles the structured form.
func (k Key) String() string {
	return k.Prefix + ":" + strings.Join(k.Parts, ":")
}

// KeyGenerator builds deterministic cache keys from semantic identifiers and,
// via short digests, from opaque inputs such as URLs and search queries.
type KeyGenerator struct {
	hasher Hasher
}

// NewKeyGenerator creates a KeyGenerator using the provided hasher for
// opaque-input digests.
func NewKeyGenerator(hasher Hasher) (*KeyGenerator, error) {
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	return &KeyGenerator{hasher: hasher}, nil
}

// Match builds a match:<id> key.
func (g *KeyGenerator) Match(matchID string) string {
	return PrefixMatch + ":" + sanitizeKeyPart(matchID)
}

// League builds a league:<country>:<league> key.
func (g *KeyGenerator) League(country, league string) string {
	return PrefixLeague + ":" + sanitizeKeyPart(country) + ":" + sanitizeKeyPart(league)
}

// Season builds a season:<country>:<league>:<season> key.
func (g *KeyGenerator) Season(country, league, season string) string {
	return PrefixSeason + ":" + sanitizeKeyPart(country) + ":" + sanitizeKeyPart(league) + ":" + sanitizeKeyPart(season)
}

// Country builds a country:<country> key.
func (g *KeyGenerator) Country(country string) string {
	return PrefixCountry + ":" + sanitizeKeyPart(country)
}

// URL builds a url:<digest> key from an arbitrary URL.
func (g *KeyGenerator) URL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("url is required")
	}
	digest, err := g.shortDigest([]byte(rawURL))
	if err != nil {
		return "", fmt.Errorf("digest url: %w", err)
	}
	return PrefixURL + ":" + digest, nil
}

// Search builds a search key from a free-text query and an optional filter
// set. Filter maps with identical contents produce identical keys regardless
// of insertion order.
func (g *KeyGenerator) Search(query string, filters map[string]string) (string, error) {
	queryDigest, err := g.shortDigest([]byte(query))
	if err != nil {
		return "", fmt.Errorf("digest query: %w", err)
	}
	if len(filters) == 0 {
		return PrefixSearch + ":" + queryDigest, nil
	}
	// json.Marshal writes map keys in sorted order, which canonicalizes the
	// filter set.
	encoded, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("encode filters: %w", err)
	}
	filterDigest, err := g.shortDigest(encoded)
	if err != nil {
		return "", fmt.Errorf("digest filters: %w", err)
	}
	return PrefixSearch + ":" + queryDigest + ":" + filterDigest, nil
}

// ParseKey splits a structured key into its prefix and parts. Malformed input
// fails with ErrInvalidKeyFormat.
func ParseKey(key string) (Key, error) {
	segments := strings.Split(key, ":")
	if len(segments) < 2 {
		return Key{}, fmt.Errorf("%w: %q has no parts", ErrInvalidKeyFormat, key)
	}
	for _, seg := range segments {
		if !keySegment.MatchString(seg) {
			return Key{}, fmt.Errorf("%w: segment %q in %q", ErrInvalidKeyFormat, seg, key)
		}
	}
	prefix, parts := segments[0], segments[1:]
	if arities, known := keyArity[prefix]; known {
		ok := false
		for _, n := range arities {
			if len(parts) == n {
				ok = true
				break
			}
		}
		if !ok {
			return Key{}, fmt.Errorf("%w: %q has %d parts", ErrInvalidKeyFormat, key, len(parts))
		}
	}
	return Key{Prefix: prefix, Parts: parts}, nil
}

func (g *KeyGenerator) shortDigest(data []byte) (string, error) {
	digest, err := g.hasher.Hash(data)
	if err != nil {
		return "", err
	}
	if len(digest) < digestLen {
		return "", fmt.Errorf("digest too short: %d chars", len(digest))
	}
	return digest[:digestLen], nil
}

func sanitizeKeyPart(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "_")
}
