package selector

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

const (
	penaltyHeavy    = 0.3
	penaltyModerate = 0.7
	boostUnseen     = 1.3
	boostRare       = 1.1
)

// Weights are the coefficients of the four scoring terms.
type Weights struct {
	Quality     float64
	Priority    float64
	Diversity   float64
	TypeBalance float64
}

// Config is everything scoring depends on.
type Config struct {
	PlatformPriority []domain.Platform
	TypeWeights      map[domain.ContentType]float64
	Weights          Weights
	RecentWindow     int
}

// ConfigFrom converts the loaded selector section.
func ConfigFrom(c config.SelectorConfig) Config {
	out := Config{
		TypeWeights:  make(map[domain.ContentType]float64, len(c.TypeWeights)),
		RecentWindow: c.RecentWindow,
		Weights: Weights{
			Quality:     c.Weights.Quality,
			Priority:    c.Weights.Priority,
			Diversity:   c.Weights.Diversity,
			TypeBalance: c.Weights.TypeBalance,
		},
	}
	for _, p := range c.PlatformPriority {
		out.PlatformPriority = append(out.PlatformPriority, domain.Platform(p))
	}
	for t, w := range c.TypeWeights {
		out.TypeWeights[domain.ContentType(t)] = w
	}
	return out
}

// Breakdown is a candidate's score and its terms.
type Breakdown struct {
	Quality         float64 `json:"quality"`
	Priority        float64 `json:"priority"`
	RecentDiversity float64 `json:"recent_diversity"`
	TypeBalance     float64 `json:"type_balance"`
	Total           float64 `json:"total"`
}

func (b Breakdown) String() string {
	return fmt.Sprintf("score %.3f (quality %.2f, priority %.2f, diversity %.2f, type %.2f)",
		b.Total, b.Quality, b.Priority, b.RecentDiversity, b.TypeBalance)
}

// Score rates a candidate against recent history, newest first. Only the
// first RecentWindow entries of recent are considered.
func (c Config) Score(item *domain.ContentItem, recent []domain.RecentPost) Breakdown {
	if c.RecentWindow > 0 && len(recent) > c.RecentWindow {
		recent = recent[:c.RecentWindow]
	}

	b := Breakdown{
		Quality:         min(max(item.Confidence, 0), 1),
		Priority:        c.priority(item.Platform),
		RecentDiversity: 1.0,
		TypeBalance:     1.0,
	}

	platformSeen, typeSeen := 0, 0
	for _, r := range recent {
		if r.Platform == item.Platform {
			platformSeen++
		}
		if r.ContentType == item.ContentType {
			typeSeen++
		}
	}
	switch {
	case platformSeen >= 2:
		b.RecentDiversity = penaltyHeavy
	case platformSeen == 1:
		b.RecentDiversity = penaltyModerate
	}
	switch typeSeen {
	case 0:
		b.TypeBalance = boostUnseen
	case 1:
		b.TypeBalance = boostRare
	}
	if w, ok := c.TypeWeights[item.ContentType]; ok {
		b.TypeBalance *= w
	}

	b.Total = c.Weights.Quality*b.Quality +
		c.Weights.Priority*b.Priority +
		c.Weights.Diversity*b.RecentDiversity +
		c.Weights.TypeBalance*b.TypeBalance
	return b
}

// priority is the platform's rank normalized so the first entry scores 1 and
// unlisted platforms score 0.
func (c Config) priority(p domain.Platform) float64 {
	n := len(c.PlatformPriority)
	for i, known := range c.PlatformPriority {
		if known == p {
			return float64(n-i) / float64(n)
		}
	}
	return 0
}
