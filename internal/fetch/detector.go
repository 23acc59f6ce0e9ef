package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetectorConfig holds the thresholds for the render heuristic.
type DetectorConfig struct {
	// MinHTMLBytes marks bodies below this size as shells; 0 disables.
	MinHTMLBytes int `mapstructure:"min_html_bytes"`
	// RequiredSelectors must all be present in the static document.
	RequiredSelectors []string `mapstructure:"required_selectors"`
	// Markers are substrings typical of client-rendered app shells.
	Markers []string `mapstructure:"markers"`
}

// Detector decides whether a statically fetched document is a JavaScript app
// shell that needs a real browser to render.
type Detector struct {
	minHTMLBytes int
	selectors    []string
	markers      [][]byte
}

// NewDetector constructs a Detector with the configured thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	markers := make([][]byte, 0, len(cfg.Markers))
	for _, m := range cfg.Markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		markers = append(markers, bytes.ToLower([]byte(m)))
	}
	return &Detector{
		minHTMLBytes: cfg.MinHTMLBytes,
		selectors:    cfg.RequiredSelectors,
		markers:      markers,
	}
}

// NeedsBrowser inspects the body for signals that JS rendering is required.
func (d *Detector) NeedsBrowser(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.bodyBelowThreshold(body):
		return true
	case d.containsMarkers(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *Detector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *Detector) containsMarkers(body []byte) bool {
	if len(body) == 0 || len(d.markers) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

func (d *Detector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
