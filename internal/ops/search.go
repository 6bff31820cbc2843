package ops

import (
	"context"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hpungsan/venvkeep/internal/errors"
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Interpreter string // required
	Query       string // required
	Limit       int    // default: 20, max: 200
}

// SearchResultItem is one installed package matching the query.
type SearchResultItem struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Score          int    `json:"score"`
	MatchedIndexes []int  `json:"matched_indexes"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items []SearchResultItem `json:"items"`
	Total int                `json:"total"`
	Sort  string             `json:"sort"` // "relevance"
}

type installedSource struct {
	names    []string
	versions []string
}

func (s installedSource) String(i int) string { return s.names[i] }
func (s installedSource) Len() int            { return len(s.names) }

// Search fuzzy-matches the query against installed package names.
// Results are ranked best first; ties keep name order.
func (e *Engine) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	limit := clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit)

	installed := e.cache.InstalledMap(ctx, input.Interpreter)
	src := installedSource{names: make([]string, 0, len(installed))}
	for name := range installed {
		src.names = append(src.names, name)
	}
	sort.Strings(src.names)
	src.versions = make([]string, len(src.names))
	for i, name := range src.names {
		src.versions[i] = installed[name]
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), src)
	out := &SearchOutput{Items: []SearchResultItem{}, Total: len(matches), Sort: "relevance"}
	for i, m := range matches {
		if i >= limit {
			break
		}
		out.Items = append(out.Items, SearchResultItem{
			Name:           m.Str,
			Version:        src.versions[m.Index],
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
	}
	return out, nil
}
