package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/errors"
)

// Export formats.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatHTML = "html"
)

// ExportInput contains parameters for the ExportFailures operation.
// Either RunID (read from history) or Failures must be given.
type ExportInput struct {
	RunID    string
	Failures []Failure
	Format   string // default: txt
	Path     string // optional, default: failed_<run>.<format> in Dir
	Dir      string
}

// ExportOutput contains the result of the ExportFailures operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// FailureReport is the exported document: failed items plus provenance.
type FailureReport struct {
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ExportedAt string    `json:"exported_at" yaml:"exported_at"`
	Count      int       `json:"count" yaml:"count"`
	Failures   []Failure `json:"failures" yaml:"failures"`
}

// ExportFailures writes failed items to a file. The txt format groups specs
// under "# reason:" comments and can be fed back as a manifest.
func (e *Engine) ExportFailures(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatText
	}
	if !validFormat(format) {
		return nil, errors.NewInvalidRequest("format must be one of: txt, json, yaml, html")
	}

	failures := input.Failures
	if input.RunID != "" {
		if e.db == nil {
			return nil, errors.NewInvalidRequest("run history is not available")
		}
		if _, err := db.GetRun(ctx, e.db, input.RunID); err != nil {
			return nil, err
		}
		stored, err := db.GetRunFailures(ctx, e.db, input.RunID)
		if err != nil {
			return nil, err
		}
		failures = make([]Failure, len(stored))
		for i, f := range stored {
			failures[i] = Failure{Spec: f.Spec, Reason: f.Reason}
		}
	}
	if len(failures) == 0 {
		return nil, errors.NewInvalidRequest("no failed items to export")
	}

	now := e.now()
	path := input.Path
	if path == "" {
		tag := input.RunID
		if tag == "" {
			tag = now.Format("2006-01-02T150405")
		}
		path = filepath.Join(input.Dir, fmt.Sprintf("failed_%s.%s", SanitizeForFilename(tag), format))
	}
	if err := ValidateOutputPath(path, "."+format); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := RenderFailures(&buf, FailureReport{
		RunID:      input.RunID,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Count:      len(failures),
		Failures:   failures,
	}, format); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return nil, err
	}

	return &ExportOutput{Path: path, Format: format, Count: len(failures), ExportedAt: now.Unix()}, nil
}

// RenderFailures writes doc in the given format.
func RenderFailures(w io.Writer, doc FailureReport, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatHTML:
		var body bytes.Buffer
		if err := goldmark.Convert([]byte(failuresMarkdown(doc)), &body); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Failed packages</title></head>\n<body>\n%s</body>\n</html>\n", body.String())
		return err
	default:
		_, err := io.WriteString(w, failuresText(doc))
		return err
	}
}

func failuresText(doc FailureReport) string {
	var b strings.Builder
	b.WriteString("# failed packages\n")
	if doc.RunID != "" {
		fmt.Fprintf(&b, "# run: %s\n", doc.RunID)
	}
	fmt.Fprintf(&b, "# exported: %s\n# count: %d\n", doc.ExportedAt, doc.Count)
	for _, g := range groupByReason(doc.Failures) {
		fmt.Fprintf(&b, "\n# reason: %s\n", oneLine(g.reason))
		for _, spec := range g.specs {
			b.WriteString(spec)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func failuresMarkdown(doc FailureReport) string {
	var b strings.Builder
	b.WriteString("# Failed packages\n\n")
	if doc.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`, ", doc.RunID)
	}
	fmt.Fprintf(&b, "exported %s, %d items.\n", doc.ExportedAt, doc.Count)
	for _, g := range groupByReason(doc.Failures) {
		fmt.Fprintf(&b, "\n## %s\n\n", markdownEscape(oneLine(g.reason)))
		for _, spec := range g.specs {
			fmt.Fprintf(&b, "- %s\n", markdownEscape(spec))
		}
	}
	return b.String()
}

type reasonGroup struct {
	reason string
	specs  []string
}

// groupByReason groups specs by reason, groups in first-seen order.
func groupByReason(failures []Failure) []reasonGroup {
	var groups []reasonGroup
	index := make(map[string]int)
	for _, f := range failures {
		i, ok := index[f.Reason]
		if !ok {
			i = len(groups)
			index[f.Reason] = i
			groups = append(groups, reasonGroup{reason: f.Reason})
		}
		groups[i].specs = append(groups[i].specs, f.Spec)
	}
	return groups
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`,
)

func markdownEscape(s string) string {
	return markdownEscaper.Replace(s)
}

func validFormat(f string) bool {
	switch f {
	case FormatText, FormatJSON, FormatYAML, FormatHTML:
		return true
	}
	return false
}
