package ops

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name          string
		desired       map[string]string
		installed     map[string]string
		protected     []string
		wantUninstall []string
		wantInstall   []string
	}{
		{
			name:          "protected and satisfied",
			desired:       map[string]string{"a": "1.0", "b": ""},
			installed:     map[string]string{"a": "1.0", "c": "2.0"},
			protected:     []string{"c"},
			wantUninstall: []string{},
			wantInstall:   []string{"b"},
		},
		{
			name:          "version mismatch",
			desired:       map[string]string{"a": "2.0"},
			installed:     map[string]string{"a": "1.0"},
			wantUninstall: []string{},
			wantInstall:   []string{"a==2.0"},
		},
		{
			name:          "uninstall detection",
			desired:       map[string]string{"a": ""},
			installed:     map[string]string{"a": "1.0", "b": "3.0"},
			protected:     []string{},
			wantUninstall: []string{"b"},
			wantInstall:   []string{},
		},
		{
			name:          "pinned and absent",
			desired:       map[string]string{"torch": "2.1.0"},
			installed:     map[string]string{},
			wantUninstall: []string{},
			wantInstall:   []string{"torch==2.1.0"},
		},
		{
			name:          "unpinned present with any version",
			desired:       map[string]string{"numpy": ""},
			installed:     map[string]string{"numpy": "1.26.4"},
			wantUninstall: []string{},
			wantInstall:   []string{},
		},
		{
			name:          "names match after normalization",
			desired:       map[string]string{"Typing_Extensions": "4.9.0"},
			installed:     map[string]string{"typing-extensions": "4.9.0"},
			wantUninstall: []string{},
			wantInstall:   []string{},
		},
		{
			name:          "protected matched after normalization",
			desired:       map[string]string{"a": ""},
			installed:     map[string]string{"a": "1", "Setup_Tools": "69.0"},
			protected:     []string{"setup-tools"},
			wantUninstall: []string{},
			wantInstall:   []string{},
		},
		{
			name:          "emitted names are verbatim and sorted",
			desired:       map[string]string{"Zope_Interface": "6.0", "Aiohttp": "3.9.1"},
			installed:     map[string]string{"Requests": "2.31.0", "attrs": "23.1.0"},
			wantUninstall: []string{"attrs", "Requests"},
			wantInstall:   []string{"Aiohttp==3.9.1", "Zope_Interface==6.0"},
		},
		{
			name:          "nil inputs",
			wantUninstall: []string{},
			wantInstall:   []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := Plan(tc.desired, tc.installed, tc.protected)
			require.Equal(t, tc.wantUninstall, plan.ToUninstall)
			require.Equal(t, tc.wantInstall, plan.ToInstall)
		})
	}
}

func TestPlan_DefaultProtectedNeverUninstalled(t *testing.T) {
	installed := map[string]string{"pip": "24.0", "setuptools": "69.0", "wheel": "0.42", "junk": "1"}
	plan := Plan(map[string]string{"numpy": "1.26.4"}, installed, []string{"pip", "setuptools", "wheel"})
	require.Equal(t, []string{"junk"}, plan.ToUninstall)
	require.Equal(t, []string{"numpy==1.26.4"}, plan.ToInstall)
}

func TestPlan_DoesNotModifyInputs(t *testing.T) {
	desired := map[string]string{"A_b": "1"}
	installed := map[string]string{"C_d": "2"}
	Plan(desired, installed, nil)
	require.Equal(t, map[string]string{"A_b": "1"}, desired)
	require.Equal(t, map[string]string{"C_d": "2"}, installed)
}

func TestReconciliationPlan_Empty(t *testing.T) {
	require.True(t, ReconciliationPlan{}.Empty())
	require.False(t, ReconciliationPlan{ToInstall: []string{"a"}}.Empty())
	require.False(t, ReconciliationPlan{ToUninstall: []string{"a"}}.Empty())
}
