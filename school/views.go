package school

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Sites students browse, grouped five per category in Categories order.
var Sites = []string{
	"youtube.com", "spotify.com", "twitch.tv", "vimeo.com", "music.apple.com",
	"facebook.com", "instagram.com", "x.com", "reddit.com", "tiktok.com",
	"roblox.com", "minecraft.net", "epicgames.com", "leagueoflegends.com", "store.steampowered.com",
	"khanacademy.org", "coursera.org", "edx.org", "classroom.google.com", "wikipedia.org",
}

const (
	DefaultViewsPerStudent = 5
	viewWindow             = 14 * 24 * time.Hour
)

type SiteView struct {
	StudentEmail string `dynamodbav:"studentEmail" json:"studentEmail"`
	ViewID       string `dynamodbav:"viewId" json:"viewId"`
	URL          string `dynamodbav:"url" json:"url"`
	WatchedAt    string `dynamodbav:"watchedAt" json:"watchedAt"`
	StudentName  string `dynamodbav:"studentName,omitempty" json:"studentName,omitempty"`
	Domain       string `dynamodbav:"domain,omitempty" json:"domain,omitempty"`
	DurationSec  int    `dynamodbav:"durationSec,omitempty" json:"durationSec,omitempty"`
}

// SiteViews returns perStudent views for every student, each at a random
// time within the last 14 days.
func (g *Generator) SiteViews(students []Student, perStudent int) ([]SiteView, error) {
	if perStudent <= 0 {
		perStudent = DefaultViewsPerStudent
	}
	now := g.now().UTC()
	views := make([]SiteView, 0, len(students)*perStudent)
	for _, st := range students {
		for range perStudent {
			id, err := uuid.NewRandomFromReader(fakerReader{g.faker})
			if err != nil {
				return nil, fmt.Errorf("view id: %w", err)
			}
			back := time.Duration(g.faker.IntRange(0, int(viewWindow)-1))
			views = append(views, SiteView{
				StudentEmail: st.Email,
				ViewID:       id.String(),
				URL:          "https://" + g.faker.RandomString(Sites),
				WatchedAt:    now.Add(-back).Format(time.RFC3339Nano),
				StudentName:  st.Name,
			})
		}
	}
	return views, nil
}

// fakerReader feeds uuid generation from the seeded faker.
type fakerReader struct{ f *gofakeit.Faker }

func (r fakerReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.f.Uint8()
	}
	return len(p), nil
}

// LoadViews decodes a views file: either a JSON array of views or an object
// holding them under "items" or "Items".
func LoadViews(data []byte) ([]SiteView, error) {
	var views []SiteView
	if err := json.Unmarshal(data, &views); err == nil {
		return views, nil
	}
	var wrapped struct {
		Items      []SiteView `json:"items"`
		ItemsUpper []SiteView `json:"Items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode views: %w", err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.ItemsUpper, nil
}
