package ops

import (
	"context"

	"github.com/hpungsan/venvkeep/internal/requirement"
)

// MissingSpecs returns the requirement strings of a manifest's unresolved
// entries, constraints included, in manifest order. VCS entries are never listed.
func (e *Engine) MissingSpecs(ctx context.Context, interpreter, manifest string) ([]string, error) {
	specs, err := loadManifest(manifest)
	if err != nil {
		return nil, err
	}

	res := e.newResolver(ctx, interpreter)
	seen := make(map[string]struct{})
	missing := []string{}
	for _, spec := range specs {
		if spec.VCS {
			continue
		}
		n := requirement.Normalize(spec.Name)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if ok, _ := res.resolve(ctx, spec.Name); !ok {
			missing = append(missing, spec.Requirement())
		}
	}
	return missing, nil
}

// InstallMissingInput contains parameters for the InstallMissing operation.
type InstallMissingInput struct {
	Interpreter string // required
	Manifest    string // required
	Mirror      string // index URL
	Reporter    Reporter
}

// InstallMissing installs a manifest's unresolved entries without dependencies.
func (e *Engine) InstallMissing(ctx context.Context, input InstallMissingInput) (*RunSummary, error) {
	if err := ValidateInterpreter(input.Interpreter); err != nil {
		return nil, err
	}
	missing, err := e.MissingSpecs(ctx, input.Interpreter, input.Manifest)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, ReconciliationPlan{ToUninstall: []string{}, ToInstall: missing}, ExecuteInput{
		Interpreter: input.Interpreter,
		Mirror:      input.Mirror,
		NoDeps:      true,
		Kind:        KindInstallMissing,
		Reporter:    input.Reporter,
	}), nil
}
