package ops

import (
	"context"

	"github.com/hpungsan/venvkeep/internal/requirement"
)

// IsInstalled asks the package manager about one package, trying the
// normalized (hyphenated) name first and then the name as written.
// It spawns one or two processes; prefer the cache for bulk checks.
func (e *Engine) IsInstalled(ctx context.Context, interpreter, name string) bool {
	if name == "" {
		return false
	}
	hyphenated := requirement.Normalize(name)
	if e.client.Show(ctx, interpreter, hyphenated) {
		return true
	}
	if name != hyphenated {
		return e.client.Show(ctx, interpreter, name)
	}
	return false
}

// resolver answers "is this requirement installed" for one operation,
// consulting the batch listing first and memoizing fallback checks.
type resolver struct {
	e           *Engine
	interpreter string
	installed   map[string]string
	fallback    map[string]bool
}

func (e *Engine) newResolver(ctx context.Context, interpreter string) *resolver {
	installed := e.cache.InstalledMap(ctx, interpreter)
	if len(installed) == 0 {
		e.logger.Warn("installed listing empty, using per-package checks", "interpreter", interpreter)
	}
	return &resolver{
		e:           e,
		interpreter: interpreter,
		installed:   installed,
		fallback:    make(map[string]bool),
	}
}

// resolve reports whether name is installed and, when the batch listing knows it, its version.
func (r *resolver) resolve(ctx context.Context, name string) (bool, string) {
	n := requirement.Normalize(name)
	if v, ok := r.installed[n]; ok {
		return true, v
	}
	found, ok := r.fallback[n]
	if !ok {
		found = r.e.IsInstalled(ctx, r.interpreter, name)
		r.fallback[n] = found
	}
	return found, ""
}
