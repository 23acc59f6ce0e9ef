package cache

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fixturelab/matchday-crawler/internal/hash/sha256"
)

// TestStructuredKeysSanitize checks typed constructors lower-case input and
// collapse non-alphanumeric runs to underscores.
func TestStructuredKeysSanitize(t *testing.T) {
	t.Parallel()

	gen, err := NewKeyGenerator(sha256.New())
	require.NoError(t, err)

	require.Equal(t, "match:g_abc123", gen.Match("g_AbC123"))
	require.Equal(t, "league:england:premier_league", gen.League("England", "Premier League"))
	require.Equal(t, "season:spain:la_liga:2023_2024", gen.Season("Spain", "La Liga", "2023/2024"))
	require.Equal(t, "country:c_te_d_ivoire", gen.Country("Côte d'Ivoire"))
}

// TestURLKeyStableDigest verifies url keys embed an eight-hex-char digest and
// stay stable per input.
func TestURLKeyStableDigest(t *testing.T) {
	t.Parallel()

	gen, err := NewKeyGenerator(sha256.New())
	require.NoError(t, err)

	first, err := gen.URL("https://example.com/football/england/premier-league/results/")
	require.NoError(t, err)
	again, err := gen.URL("https://example.com/football/england/premier-league/results/")
	require.NoError(t, err)
	other, err := gen.URL("https://example.com/football/spain/la-liga/results/")
	require.NoError(t, err)

	require.Equal(t, first, again)
	require.NotEqual(t, first, other)
	require.Regexp(t, regexp.MustCompile(`^url:[0-9a-f]{8}$`), first)

	_, err = gen.URL("")
	require.Error(t, err)
}

// TestSearchKeyDeterministic ensures filter-map insertion order never changes
// the generated key.
func TestSearchKeyDeterministic(t *testing.T) {
	t.Parallel()

	gen, err := NewKeyGenerator(sha256.New())
	require.NoError(t, err)

	left := map[string]string{}
	left["country"] = "england"
	left["season"] = "2023"
	right := map[string]string{}
	right["season"] = "2023"
	right["country"] = "england"

	keyLeft, err := gen.Search("arsenal", left)
	require.NoError(t, err)
	keyRight, err := gen.Search("arsenal", right)
	require.NoError(t, err)
	require.Equal(t, keyLeft, keyRight)
	require.Regexp(t, regexp.MustCompile(`^search:[0-9a-f]{8}:[0-9a-f]{8}$`), keyLeft)

	bare, err := gen.Search("arsenal", nil)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^search:[0-9a-f]{8}$`), bare)
	require.NotEqual(t, bare, keyLeft)
}

// TestParseKeyRoundTrip checks structured keys decompose and reassemble.
func TestParseKeyRoundTrip(t *testing.T) {
	t.Parallel()

	gen, err := NewKeyGenerator(sha256.New())
	require.NoError(t, err)

	raw := gen.Season("England", "Premier League", "2023/2024")
	parsed, err := ParseKey(raw)
	require.NoError(t, err)
	require.Equal(t, "season", parsed.Prefix)
	require.Equal(t, []string{"england", "premier_league", "2023_2024"}, parsed.Parts)
	require.Equal(t, raw, parsed.String())
}

// TestParseKeyRejectsMalformed covers the InvalidKeyFormat failure modes.
func TestParseKeyRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, key := range []string{
		"",
		"match",
		"match:",
		"Match:abc",
		"season:england:premier_league",
		"league:eng:prem:extra",
		"::",
	} {
		_, err := ParseKey(key)
		require.ErrorIs(t, err, ErrInvalidKeyFormat, "key %q", key)
	}
}

// TestParseKeyAllowsUnknownPrefix keeps the parser forward-compatible with
// prefixes the generator does not emit.
func TestParseKeyAllowsUnknownPrefix(t *testing.T) {
	t.Parallel()

	parsed, err := ParseKey("user:123:profile")
	require.NoError(t, err)
	require.Equal(t, "user", parsed.Prefix)
	require.Equal(t, []string{"123", "profile"}, parsed.Parts)
}
