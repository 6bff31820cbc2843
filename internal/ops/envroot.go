package ops

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/venvkeep/internal/errors"
)

// ValidateInterpreter checks that path names an existing regular file.
func ValidateInterpreter(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("interpreter is required")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return errors.NewInterpreterNotFound(path)
	}
	return nil
}

// SameEnvRoot reports whether interpreter and dir share a volume and first path segment.
// This approximates "same environment": an embedded interpreter and its plugin
// directories usually live under one top-level install folder.
func SameEnvRoot(interpreter, dir string) bool {
	v1, s1 := envRoot(interpreter)
	v2, s2 := envRoot(dir)
	return strings.EqualFold(v1, v2) && strings.EqualFold(s1, s2)
}

func envRoot(p string) (volume, segment string) {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	p = filepath.Clean(p)
	volume = filepath.VolumeName(p)
	rest := strings.TrimLeft(filepath.ToSlash(p[len(volume):]), "/")
	segment, _, _ = strings.Cut(rest, "/")
	return volume, segment
}

// Preflight validates the interpreter and, when configured, that every dir
// lives under the same environment root. It runs before any work starts.
func (e *Engine) Preflight(interpreter string, requireSameRoot bool, dirs ...string) error {
	if err := ValidateInterpreter(interpreter); err != nil {
		return err
	}
	if !requireSameRoot && !e.cfg.RequireSameEnvRoot {
		return nil
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if !SameEnvRoot(interpreter, dir) {
			return errors.NewEnvRootMismatch(interpreter, dir)
		}
	}
	return nil
}
