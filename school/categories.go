package school

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Uncategorized is the category of a domain no baseline entry names.
const Uncategorized = "Uncategorized"

type Category struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SampleHosts []string `json:"sampleHosts"`
}

// Categories returns the baseline site categories.
func Categories() []Category {
	return []Category{
		{
			ID: "1", Code: "video_music", Name: "Video & Music",
			Description: "Streaming video and music services.",
			SampleHosts: Sites[0:5],
		},
		{
			ID: "2", Code: "social", Name: "Social",
			Description: "Social networks and discussion forums.",
			SampleHosts: Sites[5:10],
		},
		{
			ID: "3", Code: "gaming", Name: "Gaming",
			Description: "Online games and game stores.",
			SampleHosts: Sites[10:15],
		},
		{
			ID: "4", Code: "learning", Name: "Learning",
			Description: "Online courses, encyclopedias and school systems.",
			SampleHosts: Sites[15:20],
		},
	}
}

// Categorizer maps domains to category labels.
type Categorizer struct {
	byDomain map[string]string
}

// NewCategorizer labels each category's sample hosts with its code.
func NewCategorizer(categories []Category) *Categorizer {
	c := &Categorizer{byDomain: make(map[string]string)}
	for _, cat := range categories {
		label := cmp.Or(cat.Code, cat.Name)
		for _, host := range cat.SampleHosts {
			c.add(host, label)
		}
	}
	return c
}

func (c *Categorizer) add(domain, category string) {
	if domain == "" || category == "" {
		return
	}
	c.byDomain[strings.ToLower(domain)] = category
}

// Category returns the label for domain, or Uncategorized.
func (c *Categorizer) Category(domain string) string {
	if cat, ok := c.byDomain[strings.ToLower(domain)]; ok {
		return cat
	}
	return Uncategorized
}

// Len returns the number of known domains.
func (c *Categorizer) Len() int {
	return len(c.byDomain)
}

type baselinePair struct {
	Domain      string   `json:"domain"`
	Category    string   `json:"category"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	SampleHosts []string `json:"sampleHosts"`
}

// ParseBaseline builds a Categorizer from a baseline file in one of three
// shapes:
//
//	{"video": ["youtube.com", "vimeo.com"], ...}
//	[{"domain": "youtube.com", "category": "video"}, ...]
//	[{"code": "video_music", "name": "...", "sampleHosts": ["youtube.com"]}, ...]
//
// The last is what the categories export writes; entries are labelled by
// code, falling back to name.
func ParseBaseline(data []byte) (*Categorizer, error) {
	c := &Categorizer{byDomain: make(map[string]string)}

	var pairs []baselinePair
	if err := json.Unmarshal(data, &pairs); err == nil {
		for _, p := range pairs {
			if p.Domain != "" {
				c.add(p.Domain, p.Category)
				continue
			}
			label := cmp.Or(p.Code, p.Name)
			for _, host := range p.SampleHosts {
				c.add(host, label)
			}
		}
		return c, nil
	}

	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(data, &byCategory); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	for cat, raw := range byCategory {
		var domains []string
		if err := json.Unmarshal(raw, &domains); err != nil {
			// non-list values are ignored
			continue
		}
		for _, d := range domains {
			c.add(d, cat)
		}
	}
	return c, nil
}

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ToDomain returns the lower-cased host of rawURL without a leading "www.".
// Strings that do not parse as absolute URLs are treated as a bare host with
// an optional path.
func ToDomain(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	s := schemePrefix.ReplaceAllString(strings.TrimSpace(rawURL), "")
	s = strings.TrimPrefix(strings.ToLower(s), "www.")
	host, _, _ := strings.Cut(s, "/")
	return host
}

type CategorizedView struct {
	StudentEmail string `dynamodbav:"studentEmail" json:"studentEmail"`
	WatchedAt    string `dynamodbav:"watchedAt" json:"watchedAt"`
	ViewID       string `dynamodbav:"viewId,omitempty" json:"viewId,omitempty"`
	URL          string `dynamodbav:"url,omitempty" json:"url,omitempty"`
	DurationSec  int    `dynamodbav:"durationSec,omitempty" json:"durationSec,omitempty"`
	StudentName  string `dynamodbav:"studentName,omitempty" json:"studentName,omitempty"`
	Domain       string `dynamodbav:"domain,omitempty" json:"domain"`
	Category     string `dynamodbav:"category" json:"category"`
}

// Categorize tags every view with its domain and category. Views without a
// student email or watchedAt cannot be keyed and are dropped; the count of
// dropped views is returned.
func (c *Categorizer) Categorize(views []SiteView) ([]CategorizedView, int) {
	out := make([]CategorizedView, 0, len(views))
	dropped := 0
	for _, v := range views {
		if v.StudentEmail == "" || v.WatchedAt == "" {
			dropped++
			continue
		}
		domain := ToDomain(cmp.Or(v.URL, v.Domain))
		out = append(out, CategorizedView{
			StudentEmail: v.StudentEmail,
			WatchedAt:    v.WatchedAt,
			ViewID:       v.ViewID,
			URL:          v.URL,
			DurationSec:  v.DurationSec,
			StudentName:  v.StudentName,
			Domain:       domain,
			Category:     c.Category(domain),
		})
	}
	return out, dropped
}
