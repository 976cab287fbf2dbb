package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trendwire/trendwire/internal/models"
)

// Platform identifies one hotlist source to crawl.
type Platform struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DisplayName returns the configured name, falling back to the ID.
func (p Platform) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// RSSFeed identifies one subscribed feed.
type RSSFeed struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	MaxAgeDays int    `yaml:"max_age_days"`
	// Standalone feeds are shown verbatim in the standalone display region
	// instead of going through keyword matching.
	Standalone bool `yaml:"standalone"`
}

// Watch is the YAML watch file: what to crawl, what to match, what to hold.
type Watch struct {
	Platforms   []Platform                `yaml:"platforms"`
	Groups      []models.KeywordGroup     `yaml:"groups"`
	FilterWords []string                  `yaml:"filter_words"`
	RSSFeeds    []RSSFeed                 `yaml:"rss_feeds"`
	AIFallbacks []string                  `yaml:"ai_fallback_models"`
	Portfolio   []models.PortfolioHolding `yaml:"portfolio"`
	// StandalonePlatforms lists platform IDs whose raw rankings are shown
	// verbatim in the standalone display region.
	StandalonePlatforms []string `yaml:"standalone_platforms"`
}

// LoadWatch reads and parses the watch file.
func LoadWatch(path string) (Watch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Watch{}, fmt.Errorf("config: read watch file: %w", err)
	}
	var w Watch
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Watch{}, fmt.Errorf("config: parse watch file: %w", err)
	}
	return w, nil
}

// PlatformNames returns an ID-to-display-name map for the configured
// platforms.
func (w Watch) PlatformNames() map[string]string {
	names := make(map[string]string, len(w.Platforms))
	for _, p := range w.Platforms {
		names[p.ID] = p.DisplayName()
	}
	return names
}
