package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/rss-sync/app/database"
)

// Cache holds the validated contents of the sources file.
type Cache struct {
	path   string
	config Config
	mu     sync.RWMutex
}

func NewCache(path string) *Cache {
	return &Cache{
		path:   path,
		config: Config{},
	}
}

// Run loads the sources file. A missing file leaves the cache empty.
func (c *Cache) Run() error {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		slog.Debug("Sources file not found, nothing to seed", "path", c.path)
		return nil
	}

	config, err := c.parseConfig(c.path)
	if err != nil {
		return err
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid sources file %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.config = config
	c.mu.Unlock()

	slog.Debug("Sources loaded", "path", c.path, "categories", len(config), "sources", c.GetSourceCount())
	return nil
}

func (c *Cache) parseConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if config == nil {
		config = Config{}
	}

	for name, list := range config {
		for i := range list {
			list[i].URL = strings.TrimSpace(list[i].URL)
			list[i].Name = strings.TrimSpace(list[i].Name)
		}
		config[name] = list
	}
	return config, nil
}

func validateConfig(config Config) error {
	for name, list := range config {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("category name is required")
		}
		for i, s := range list {
			if s.URL == "" {
				return fmt.Errorf("category %s: source at index %d has no url", name, i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("category %s: source at index %d is not an http(s) url: %s", name, i, s.URL)
			}
		}
	}
	return nil
}

// GetCategoryNames returns the configured category names in lexical order.
func (c *Cache) GetCategoryNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.config))
	for name := range c.config {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Cache) GetSources(category string) []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.config[category])
}

func (c *Cache) GetSourceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, list := range c.config {
		count += len(list)
	}
	return count
}

// Registry is where seeded categories and sources are written.
type Registry interface {
	AddCategory(ctx context.Context, name string) (*database.Category, error)
	AddSource(ctx context.Context, categoryID int64, name, url string) (*database.Source, error)
}

// Seed registers every configured category and source. Both operations are
// idempotent, so seeding on every start is safe.
func (c *Cache) Seed(ctx context.Context, registry Registry) (int, error) {
	added := 0
	for _, name := range c.GetCategoryNames() {
		category, err := registry.AddCategory(ctx, name)
		if err != nil {
			return added, fmt.Errorf("failed to seed category %s: %w", name, err)
		}

		for _, s := range c.GetSources(name) {
			if _, err := registry.AddSource(ctx, category.ID, s.Name, s.URL); err != nil {
				return added, fmt.Errorf("failed to seed source %s: %w", s.URL, err)
			}
			added++
		}

		slog.Debug("Category seeded", "category", name, "id", category.ID)
	}
	return added, nil
}
