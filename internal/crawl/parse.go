package crawl

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors carries the CSS selectors the parser and paginator use. All
// fields are overridable from configuration so site markup drift is a config
// change, not a code change.
type Selectors struct {
	MatchRow      string `mapstructure:"match_row"`
	MatchIDAttr   string `mapstructure:"match_id_attr"`
	MatchIDPrefix string `mapstructure:"match_id_prefix"`
	LoadMore      string `mapstructure:"load_more"`
	SeasonLink    string `mapstructure:"season_link"`

	Stage     string `mapstructure:"stage"`
	Date      string `mapstructure:"date"`
	Status    string `mapstructure:"status"`
	HomeName  string `mapstructure:"home_name"`
	HomeImage string `mapstructure:"home_image"`
	AwayName  string `mapstructure:"away_name"`
	AwayImage string `mapstructure:"away_image"`
	Score     string `mapstructure:"score"`
	InfoRow   string `mapstructure:"info_row"`
	InfoLabel string `mapstructure:"info_label"`
	InfoValue string `mapstructure:"info_value"`
	StatRow   string `mapstructure:"stat_row"`
	StatName  string `mapstructure:"stat_name"`
	StatHome  string `mapstructure:"stat_home"`
	StatAway  string `mapstructure:"stat_away"`
}

// DefaultSelectors targets the reference site's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		MatchRow:      "div.event__match",
		MatchIDAttr:   "id",
		MatchIDPrefix: "g_1_",
		LoadMore:      "a.event__more",
		SeasonLink:    "div.archive__season > a",

		Stage:     "span.tournamentHeader__country > a",
		Date:      "div.duelParticipant__startTime",
		Status:    "div.detailScore__status",
		HomeName:  "div.duelParticipant__home .participant__participantName",
		HomeImage: "div.duelParticipant__home img.participant__image",
		AwayName:  "div.duelParticipant__away .participant__participantName",
		AwayImage: "div.duelParticipant__away img.participant__image",
		Score:     "div.detailScore__wrapper",
		InfoRow:   "div.matchInfoRow",
		InfoLabel: "div.matchInfoRow__label",
		InfoValue: "div.matchInfoRow__value",
		StatRow:   "div.stat__row",
		StatName:  "div.stat__categoryName",
		StatHome:  "div.stat__homeValue",
		StatAway:  "div.stat__awayValue",
	}
}

// Parser extracts structured data from listing, archive, and detail documents.
type Parser struct {
	sel Selectors
}

// NewParser builds a Parser over the provided selectors.
func NewParser(sel Selectors) *Parser {
	return &Parser{sel: sel}
}

// MatchIDs extracts match identifiers from a listing document, preserving
// document order and dropping duplicate rows.
func (p *Parser) MatchIDs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	seen := make(map[string]struct{})
	var ids []string
	doc.Find(p.sel.MatchRow).Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr(p.sel.MatchIDAttr)
		if !ok {
			return
		}
		id := strings.TrimPrefix(strings.TrimSpace(raw), p.sel.MatchIDPrefix)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}

// Seasons extracts the selectable seasons from an archive document. resolve
// maps the anchor href to an absolute URL.
func (p *Parser) Seasons(html string, resolve func(string) string) ([]Season, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	var seasons []Season
	doc.Find(p.sel.SeasonLink).Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		href, ok := s.Attr("href")
		if name == "" || !ok {
			return
		}
		u := resolve(href)
		if u == "" {
			return
		}
		seasons = append(seasons, Season{Name: name, URL: u})
	})
	return seasons, nil
}

// MatchDetail extracts the summary fields and information pairs for one
// match. A document without both participant names is rejected.
func (p *Parser) MatchDetail(id, html string) (MatchRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return MatchRecord{}, fmt.Errorf("parse match %s: %w", id, err)
	}
	rec := MatchRecord{
		ID:     id,
		Stage:  textOf(doc, p.sel.Stage),
		Date:   textOf(doc, p.sel.Date),
		Status: textOf(doc, p.sel.Status),
		Home: Team{
			Name:  textOf(doc, p.sel.HomeName),
			Image: attrOf(doc, p.sel.HomeImage, "src"),
		},
		Away: Team{
			Name:  textOf(doc, p.sel.AwayName),
			Image: attrOf(doc, p.sel.AwayImage, "src"),
		},
		Score: collapseSpace(textOf(doc, p.sel.Score)),
	}
	if rec.Home.Name == "" || rec.Away.Name == "" {
		return MatchRecord{}, fmt.Errorf("match %s: participants not found", id)
	}
	doc.Find(p.sel.InfoRow).Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Find(p.sel.InfoLabel).First().Text())
		value := strings.TrimSpace(s.Find(p.sel.InfoValue).First().Text())
		if label == "" && value == "" {
			return
		}
		rec.Information = append(rec.Information, InfoPair{Label: label, Value: value})
	})
	return rec, nil
}

// Statistics extracts the tabular statistic rows from a statistics document.
func (p *Parser) Statistics(html string) ([]StatRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse statistics: %w", err)
	}
	var rows []StatRow
	doc.Find(p.sel.StatRow).Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(p.sel.StatName).First().Text())
		if name == "" {
			return
		}
		rows = append(rows, StatRow{
			Name: name,
			Home: strings.TrimSpace(s.Find(p.sel.StatHome).First().Text()),
			Away: strings.TrimSpace(s.Find(p.sel.StatAway).First().Text()),
		})
	})
	return rows, nil
}

func textOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func attrOf(doc *goquery.Document, selector, attr string) string {
	if selector == "" {
		return ""
	}
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// collapseSpace rewrites interior whitespace runs to single spaces so scores
// rendered across nested nodes read "2 - 1".
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
