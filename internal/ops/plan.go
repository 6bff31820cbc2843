package ops

import (
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// ReconciliationPlan is the set of changes that moves an environment to a desired state.
type ReconciliationPlan struct {
	ToUninstall []string `json:"to_uninstall"`
	ToInstall   []string `json:"to_install"`
}

// Empty reports whether the plan has nothing to do.
func (p ReconciliationPlan) Empty() bool {
	return len(p.ToUninstall) == 0 && len(p.ToInstall) == 0
}

// Plan compares desired (name -> version, empty meaning any) with installed
// (name -> version). Names match after normalization; emitted names are verbatim.
//
// Installed packages absent from desired are uninstalled unless protected.
// A desired pinned version that differs from the installed one (or is absent)
// installs name==version; an unpinned desired name installs only when absent.
func Plan(desired, installed map[string]string, protected []string) ReconciliationPlan {
	plan := ReconciliationPlan{ToUninstall: []string{}, ToInstall: []string{}}

	desiredNorm := make(map[string]struct{}, len(desired))
	for name := range desired {
		desiredNorm[requirement.Normalize(name)] = struct{}{}
	}
	protectedNorm := make(map[string]struct{}, len(protected))
	for _, name := range protected {
		protectedNorm[requirement.Normalize(name)] = struct{}{}
	}
	installedNorm := requirement.NormalizeKeys(installed)

	for name := range installed {
		n := requirement.Normalize(name)
		if _, ok := desiredNorm[n]; ok {
			continue
		}
		if _, ok := protectedNorm[n]; ok {
			continue
		}
		plan.ToUninstall = append(plan.ToUninstall, name)
	}

	for name, version := range desired {
		have, ok := installedNorm[requirement.Normalize(name)]
		switch {
		case version != "" && (!ok || have != version):
			plan.ToInstall = append(plan.ToInstall, name+"=="+version)
		case version == "" && !ok:
			plan.ToInstall = append(plan.ToInstall, name)
		}
	}

	sortByNormalized(plan.ToUninstall)
	sortByNormalized(plan.ToInstall)
	return plan
}
