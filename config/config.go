package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"feedhound/models"
)

// StaticSource is one entry in a sources file. File-source mode fetches
// these directly without touching the database.
type StaticSource struct {
	URL      string `toml:"url"`
	Category string `toml:"category,omitempty"`
	Label    string `toml:"label,omitempty"`
}

// SourcesFile is the top-level sources configuration.
type SourcesFile struct {
	Source []StaticSource `toml:"source"`
}

// DefaultSourcesPath is probed when no --sources flag is given.
const DefaultSourcesPath = "sources.toml"

// LoadSourcesFile reads a TOML sources file.
func LoadSourcesFile(path string) ([]StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading sources file: %w", err)
	}

	var cfg SourcesFile
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing sources file: %w", err)
	}

	if len(cfg.Source) == 0 {
		return nil, fmt.Errorf("sources file %s declares no [[source]] tables", path)
	}

	return cfg.Source, nil
}

// builtinSources ships a small starter set so a fresh database is usable
// without any configuration. Seeded once, then owned by the store.
var builtinSources = []StaticSource{
	{URL: "https://feeds.bbci.co.uk/news/world/rss.xml", Category: "news", Label: "BBC World"},
	{URL: "https://www.theguardian.com/world/rss", Category: "news", Label: "The Guardian World"},
	{URL: "https://hnrss.org/frontpage", Category: "tech", Label: "Hacker News"},
	{URL: "https://lobste.rs/rss", Category: "tech", Label: "Lobsters"},
	{URL: "https://feeds.arstechnica.com/arstechnica/index", Category: "tech", Label: "Ars Technica"},
	{URL: "https://go.dev/blog/feed.atom", Category: "dev", Label: "The Go Blog"},
	{URL: "https://lwn.net/headlines/rss", Category: "dev", Label: "LWN"},
}

// BuiltinStaticSources returns the seed set for file-source mode.
func BuiltinStaticSources() []StaticSource {
	return builtinSources
}

// BuiltinSources returns the seed set as store-shaped sources.
func BuiltinSources() []models.Source {
	sources := make([]models.Source, 0, len(builtinSources))
	for _, s := range builtinSources {
		sources = append(sources, models.Source{
			URL:      s.URL,
			Label:    s.Label,
			Category: s.Category,
			Builtin:  true,
			Enabled:  true,
		})
	}
	return sources
}
