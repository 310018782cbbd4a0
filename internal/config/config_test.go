package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/resources"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.TickDuration())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
		"sim": {"seed": 7, "tick_interval": "250ms"},
		"resources": {"allocation": "cleanest_first"},
		"economy": {"tax_rate": 0.2, "categories": {"tech": {"revenue_per_employee": 300, "salary": 150, "overhead": 100}}},
		"disaster": {"base_rates": {"fire": 0}}
	}`)

	got, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Sim.Seed = 7
	want.Sim.TickInterval = "250ms"
	want.Resources.Allocation = resources.CleanestFirst
	want.Economy.TaxRate = 0.2
	want.Economy.Categories["tech"] = got.Economy.Categories["tech"]
	want.Disaster.BaseRates["fire"] = 0

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded tuning mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 300.0, got.Economy.Categories["tech"].RevenuePerEmployee)
	assert.Equal(t, 120.0, got.Economy.Categories["retail"].RevenuePerEmployee, "untouched map keys survive")
	assert.Equal(t, 250*time.Millisecond, got.TickDuration())
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name, file, body, want string
	}{
		{"extension", "tuning.yaml", `{}`, ".json extension"},
		{"syntax", "tuning.json", `{"sim": `, "parse config JSON"},
		{"time step", "tuning.json", `{"sim": {"time_step": 0}}`, "time_step"},
		{"interval", "tuning.json", `{"sim": {"tick_interval": "soon"}}`, "tick_interval"},
		{"starter plant", "tuning.json", `{"sim": {"starter_power": ["fusion"]}}`, "fusion"},
		{"allocation", "tuning.json", `{"resources": {"allocation": "random"}}`, "allocation"},
		{"tax", "tuning.json", `{"economy": {"tax_rate": 0.9}}`, "tax_rate"},
		{"disaster", "tuning.json", `{"disaster": {"base_rates": {"meteor": 1}}}`, "meteor"},
		{"signals", "tuning.json", `{"traffic": {"signals": {"min_green": 90}}}`, "min_green"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.file, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	body := `{"sim": {"tick_interval": "` + strings.Repeat("1", maxFileSize) + `ms"}}`
	_, err := Load(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
