package ops

import (
	"database/sql"
	"log/slog"
	"sort"
	"time"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/log"
	"github.com/hpungsan/venvkeep/internal/pip"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// Listing limits
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 200
	DefaultRunsLimit   = 20
	MaxRunsLimit       = 100
)

// Engine carries everything an operation needs: the package manager client,
// the installed-set cache, configuration and optional persistence.
// Operations never keep state outside of it.
type Engine struct {
	client *pip.Client
	cache  *Cache
	cfg    *config.Config
	db     *sql.DB // nil disables scan-cache and run persistence
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds an engine. cfg nil means defaults, database and logger may be nil.
func NewEngine(client *pip.Client, cfg *config.Config, database *sql.DB, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{
		client: client,
		cache:  NewCache(client, cfg.CacheTTL()),
		cfg:    cfg,
		db:     database,
		logger: logger,
		now:    time.Now,
	}
}

// Cache exposes the engine's installed-set cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// sortByNormalized sorts names by their normalized form, then verbatim for ties.
func sortByNormalized(names []string) {
	sort.Slice(names, func(i, j int) bool {
		ni, nj := requirement.Normalize(names[i]), requirement.Normalize(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}
