package route

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 30 * time.Second
)

// LoaderConfig configures where route files live and how long parsed routes
// stay cached.
type LoaderConfig struct {
	Dir       string
	CacheSize int
	CacheTTL  time.Duration
}

// Loader resolves route paths against a routes directory and parses files
// into TaskRoutes, caching results so repeated runs of the same route do not
// re-read and re-validate the file on every start.
type Loader struct {
	dir    string
	cache  *expirable.LRU[string, *TaskRoute]
	logger *slog.Logger
}

// NewLoader creates a route loader rooted at cfg.Dir.
func NewLoader(cfg LoaderConfig, logger *slog.Logger) *Loader {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Loader{
		dir:    cfg.Dir,
		cache:  expirable.NewLRU[string, *TaskRoute](size, nil, ttl),
		logger: logger.With("component", "route_loader"),
	}
}

// Resolve maps a requested route path to the file that will be read.
// Absolute paths are used as-is, anything else is resolved against the
// routes directory, and a missing extension defaults to .json.
func (l *Loader) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("route path is empty")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(l.dir, candidate)
	}
	if filepath.Ext(candidate) == "" {
		candidate += ".json"
	}
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("route %q not found (resolved to %s): %w", path, candidate, err)
	}
	return candidate, nil
}

// Load resolves, reads, and parses a route file. Parsed routes are cached by
// resolved path; edits to a file become visible once the cache entry expires.
func (l *Loader) Load(path string) (*TaskRoute, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return nil, err
	}

	if cached, ok := l.cache.Get(resolved); ok {
		return cached, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read route file %s: %w", resolved, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse route file %s: %w", resolved, err)
	}
	if r.name == "" {
		r.name = strings.TrimSuffix(filepath.Base(resolved), filepath.Ext(resolved))
	}

	l.cache.Add(resolved, r)
	l.logger.Debug("Loaded route",
		"path", resolved,
		"name", r.Name(),
		"tasks", r.TaskCount(),
		"is_test", r.IsTest())
	return r, nil
}

// Summary describes one loadable route for listings.
type Summary struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Description string `json:"description,omitempty"`
	TaskCount   int    `json:"task_count"`
	Loop        bool   `json:"loop"`
	IsTest      bool   `json:"is_test"`
	BotCount    int    `json:"bot_count,omitempty"`
}

// List enumerates the route files in the routes directory. Files that fail
// to parse are logged and skipped rather than failing the whole listing.
func (l *Loader) List() ([]Summary, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes directory %s: %w", l.dir, err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		r, err := l.Load(entry.Name())
		if err != nil {
			l.logger.Warn("Skipping unparseable route file", "file", entry.Name(), "error", err)
			continue
		}
		s := Summary{
			Name:        r.Name(),
			File:        entry.Name(),
			Description: r.Description(),
			TaskCount:   r.TaskCount(),
			Loop:        r.Loop(),
			IsTest:      r.IsTest(),
		}
		if h := r.Harness(); h != nil {
			s.BotCount = h.BotCount
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}
