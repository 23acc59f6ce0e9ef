package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// URLBuilder derives the site locations the orchestrator visits from a single
// configured base URL.
type URLBuilder struct {
	base *url.URL
}

// NewURLBuilder parses and validates the site base URL.
func NewURLBuilder(base string) (*URLBuilder, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = ""
	return &URLBuilder{base: u}, nil
}

// LeagueResults returns the finished-matches listing for the current season.
func (b *URLBuilder) LeagueResults(t Target) string {
	return b.join("football", Slugify(t.Country), Slugify(t.League), "results")
}

// SeasonArchive returns the page listing every selectable season.
func (b *URLBuilder) SeasonArchive(t Target) string {
	return b.join("football", Slugify(t.Country), Slugify(t.League), "archive")
}

// MatchSummary returns the summary panel for one match id. The fragment
// drives the site's client-side router.
func (b *URLBuilder) MatchSummary(id string) string {
	return b.join("match", id) + "#/match-summary/match-summary"
}

// MatchStatistics returns the statistics panel for one match id.
func (b *URLBuilder) MatchStatistics(id string) string {
	return b.join("match", id) + "#/match-summary/match-statistics/0"
}

// Resolve turns a possibly-relative href from a parsed document into an
// absolute URL. Unparseable hrefs resolve to the empty string.
func (b *URLBuilder) Resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return b.base.ResolveReference(ref).String()
}

func (b *URLBuilder) join(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(b.base.String())
	for _, p := range parts {
		sb.WriteString("/")
		sb.WriteString(p)
	}
	sb.WriteString("/")
	return sb.String()
}

// Slugify lower-cases s and collapses every non-alphanumeric run into a
// single hyphen, matching the path segments the site uses.
func Slugify(s string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingSep = false
			sb.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return sb.String()
}
