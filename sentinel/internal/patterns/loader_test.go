package patterns

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

func TestDefaults_Valid(t *testing.T) {
	ids := make(map[string]bool)
	for _, p := range Defaults() {
		require.NoError(t, p.Validate(), p.ID)
		assert.False(t, ids[p.ID], "duplicate %s", p.ID)
		ids[p.ID] = true
	}
	assert.True(t, ids["brute_force"])
	assert.True(t, ids["credential_stuffing"])
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	ps, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), ps)
}

func TestParse_File(t *testing.T) {
	data := []byte(`
patterns:
  - id: vpn_spray
    name: VPN password spray
    event_types: [auth.login.failed]
    window: 20m
    min_occurrences: 30
    grouping:
      same_service: true
    outcome: failure
    category: credential_stuffing
    level: critical
    thresholds:
      alert: 0.6
    auto_block: true
`)
	ps, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, ps, 1)

	p := ps[0]
	assert.Equal(t, "vpn_spray", p.ID)
	assert.Equal(t, 20*time.Minute, p.Window)
	assert.Equal(t, 30, p.MinOccurrences)
	assert.True(t, p.Grouping.SameService)
	assert.Equal(t, models.OutcomeFailure, p.Outcome)
	assert.Equal(t, models.LevelCritical, p.Level)
	assert.Equal(t, 0.6, p.Thresholds.Alert)
	assert.True(t, p.AutoBlock)
}

func TestParse_IncludeDefaultsOverridesByID(t *testing.T) {
	data := []byte(`
include_defaults: true
patterns:
  - id: brute_force
    event_types: [auth.login.failed]
    window: 5m
    min_occurrences: 3
    grouping: {same_actor: true}
    category: brute_force
    level: critical
`)
	ps, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, ps, len(Defaults()))

	var found bool
	for _, p := range ps {
		if p.ID == "brute_force" {
			found = true
			assert.Equal(t, 3, p.MinOccurrences)
			assert.Equal(t, models.LevelCritical, p.Level)
		}
	}
	assert.True(t, found)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed yaml", "patterns: [\n"},
		{"empty", "patterns: []\n"},
		{"bad level", `
patterns:
  - id: x
    event_types: [auth.login.failed]
    window: 1m
    min_occurrences: 1
    grouping: {same_actor: true}
    category: brute_force
    level: apocalyptic
`},
		{"duplicate", `
patterns:
  - {id: x, event_types: [auth.login.failed], window: 1m, min_occurrences: 1, grouping: {same_actor: true}, category: brute_force, level: low}
  - {id: x, event_types: [auth.login.failed], window: 1m, min_occurrences: 1, grouping: {same_actor: true}, category: brute_force, level: low}
`},
		{"invalid pattern", `
patterns:
  - {id: x, event_types: [auth.login.failed], window: 1m, min_occurrences: 0, grouping: {same_actor: true}, category: brute_force, level: low}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_RoundTripThroughFile(t *testing.T) {
	data, err := Marshal(Defaults())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	ps, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), ps)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAutoBlockTypes(t *testing.T) {
	types := AutoBlockTypes(Defaults())
	assert.True(t, types[models.EventLoginFailed])
	assert.True(t, types[models.EventAPIKeyInvalid])
	assert.False(t, types[models.EventDataExport])
}
