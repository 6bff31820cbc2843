package ops

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// Manifest statuses reported per file.
const (
	StatusSatisfied = "satisfied"
	StatusMissing   = "missing"
	StatusCached    = "cached" // skipped: previously verified satisfied
	StatusError     = "error"  // unreadable or undecodable; counted as missing
)

// ScanInput contains parameters for the Scan operation.
type ScanInput struct {
	Root         string   // required
	Interpreter  string   // required
	ManifestName string   // default: config manifest_name
	SkipCache    []string // manifest paths already known to be satisfied
	UseStored    bool     // also skip paths persisted by earlier scans
	Reporter     Reporter
}

// ManifestResult is the classification of one manifest file.
type ManifestResult struct {
	Path      string   `json:"path"`
	Status    string   `json:"status"`
	Missing   []string `json:"missing,omitempty"`
	Unchecked []string `json:"unchecked,omitempty"` // VCS requirements
	Error     string   `json:"error,omitempty"`
}

// ManifestReport is the result of one directory scan.
type ManifestReport struct {
	Root                string           `json:"root"`
	Interpreter         string           `json:"interpreter"`
	FullySatisfiedFiles []string         `json:"fully_satisfied_files"`
	MissingFiles        []string         `json:"missing_files"`
	MissingPackages     []string         `json:"missing_packages"`
	Files               []ManifestResult `json:"files"`
	Message             string           `json:"message"`
}

// Scan classifies every manifest in root and its immediate subdirectories.
// It never fails: unreadable manifests are reported as missing with an error,
// and an unreadable root yields an empty report with a message.
func (e *Engine) Scan(ctx context.Context, input ScanInput) *ManifestReport {
	progress := input.Reporter.tracker()
	defer progress.done()

	report := &ManifestReport{
		Root:                input.Root,
		Interpreter:         input.Interpreter,
		FullySatisfiedFiles: []string{},
		MissingFiles:        []string{},
		MissingPackages:     []string{},
		Files:               []ManifestResult{},
	}

	name := input.ManifestName
	if name == "" {
		name = e.cfg.ManifestName
	}

	manifests, err := DiscoverManifests(input.Root, name)
	if err != nil {
		report.Message = fmt.Sprintf("cannot read %s: %v", input.Root, err)
		e.logger.Warn("scan root unreadable", "root", input.Root, "error", err)
		return report
	}
	if len(manifests) == 0 {
		report.Message = fmt.Sprintf("no %s found", name)
		return report
	}

	skip := make(map[string]struct{}, len(input.SkipCache))
	for _, p := range input.SkipCache {
		skip[filepath.Clean(p)] = struct{}{}
	}
	if input.UseStored && e.db != nil {
		stored, err := db.LoadScanCache(ctx, e.db, input.Root, input.Interpreter)
		if err != nil {
			e.logger.Warn("loading scan cache failed", "error", err)
		}
		for _, p := range stored {
			skip[filepath.Clean(p)] = struct{}{}
		}
	}

	var res *resolver
	missingByNorm := make(map[string]string)

	for i, path := range manifests {
		result := ManifestResult{Path: path}

		if _, ok := skip[filepath.Clean(path)]; ok {
			result.Status = StatusCached
		} else {
			if res == nil {
				res = e.newResolver(ctx, input.Interpreter)
			}
			e.classify(ctx, res, &result)
		}

		switch result.Status {
		case StatusSatisfied, StatusCached:
			report.FullySatisfiedFiles = append(report.FullySatisfiedFiles, path)
		default:
			report.MissingFiles = append(report.MissingFiles, path)
			for _, m := range result.Missing {
				n := requirement.Normalize(m)
				if _, seen := missingByNorm[n]; !seen {
					missingByNorm[n] = m
				}
			}
		}
		report.Files = append(report.Files, result)

		input.Reporter.logf("%s: %s", path, result.Status)
		progress.set(float64(i+1) / float64(len(manifests)))
	}

	for _, display := range missingByNorm {
		report.MissingPackages = append(report.MissingPackages, display)
	}
	sortByNormalized(report.MissingPackages)

	report.Message = fmt.Sprintf("%d manifests: %d satisfied, %d missing packages in %d",
		len(manifests), len(report.FullySatisfiedFiles), len(report.MissingPackages), len(report.MissingFiles))

	if e.db != nil {
		if err := db.SaveScanCache(ctx, e.db, input.Root, input.Interpreter, report.FullySatisfiedFiles, e.now().Unix()); err != nil {
			e.logger.Warn("saving scan cache failed", "error", err)
		}
	}
	return report
}

func (e *Engine) classify(ctx context.Context, res *resolver, result *ManifestResult) {
	specs, err := requirement.ParseFile(result.Path)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		e.logger.Warn("manifest unreadable", "path", result.Path, "error", err)
		return
	}

	for _, spec := range specs {
		if spec.VCS {
			result.Unchecked = append(result.Unchecked, spec.Raw)
			continue
		}
		if ok, _ := res.resolve(ctx, spec.Name); !ok {
			result.Missing = append(result.Missing, spec.Name)
		}
	}

	if len(result.Missing) > 0 {
		result.Status = StatusMissing
		sort.Strings(result.Missing)
		return
	}
	result.Status = StatusSatisfied
}
