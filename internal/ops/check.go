package ops

import (
	"context"

	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// CheckInput contains parameters for the Check operation.
type CheckInput struct {
	Interpreter string // required
	Manifest    string // required: path to a manifest file
}

// RequirementStatus is the state of one manifest requirement in the environment.
type RequirementStatus struct {
	requirement.Spec
	Installed        bool   `json:"installed"`
	InstalledVersion string `json:"installed_version,omitempty"`
	Satisfied        bool   `json:"satisfied"`
	Unchecked        bool   `json:"unchecked,omitempty"` // VCS, or version unknown
}

// CheckOutput contains the result of the Check operation.
type CheckOutput struct {
	Manifest       string              `json:"manifest"`
	Items          []RequirementStatus `json:"items"`
	SatisfiedCount int                 `json:"satisfied_count"`
	MissingCount   int                 `json:"missing_count"`
	MismatchCount  int                 `json:"mismatch_count"`
	UncheckedCount int                 `json:"unchecked_count"`
}

// Check reports, for each requirement of one manifest, whether it is installed
// and whether the installed version meets its constraint.
func (e *Engine) Check(ctx context.Context, input CheckInput) (*CheckOutput, error) {
	specs, err := loadManifest(input.Manifest)
	if err != nil {
		return nil, err
	}

	out := &CheckOutput{Manifest: input.Manifest, Items: []RequirementStatus{}}
	res := e.newResolver(ctx, input.Interpreter)

	for _, spec := range specs {
		st := RequirementStatus{Spec: spec}
		if spec.VCS {
			st.Unchecked = true
			out.UncheckedCount++
			out.Items = append(out.Items, st)
			continue
		}

		st.Installed, st.InstalledVersion = res.resolve(ctx, spec.Name)
		switch {
		case !st.Installed:
			out.MissingCount++
		case spec.Unconstrained():
			st.Satisfied = true
			out.SatisfiedCount++
		case st.InstalledVersion == "":
			// Found by the per-package check, which reports no version.
			st.Unchecked = true
			out.UncheckedCount++
		case requirement.Satisfies(st.InstalledVersion, spec.Operator, spec.Version):
			st.Satisfied = true
			out.SatisfiedCount++
		default:
			out.MismatchCount++
		}
		out.Items = append(out.Items, st)
	}
	return out, nil
}

func loadManifest(path string) ([]requirement.Spec, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("manifest is required")
	}
	if !isRegularFile(path) {
		return nil, errors.NewFileNotFound(path)
	}
	specs, err := requirement.ParseFile(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return specs, nil
}
