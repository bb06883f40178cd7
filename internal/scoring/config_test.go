package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultScoreConfig_IsValid(t *testing.T) {
	config := DefaultScoreConfig()
	require.NoError(t, config.Validate())

	engine := NewDualScoreEngine(config)
	assert.InDelta(t, 105.0, engine.MaxTotal(), 1e-9)
}

func TestLoadScoreConfig_PartialFileOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
max_liquidity: 18
sessions:
  ny_am: 2.0
days:
  friday: 0.9
`)

	config, err := LoadScoreConfig(path)
	require.NoError(t, err)

	assert.InDelta(t, 18.0, config.MaxLiquidity, 1e-9)
	assert.InDelta(t, 2.0, config.Sessions.NYAM, 1e-9)
	assert.InDelta(t, 0.9, config.Days.Friday, 1e-9)

	// Keys the file does not mention keep their defaults.
	assert.InDelta(t, 30.0, config.MaxHTFBias, 1e-9)
	assert.InDelta(t, 2.5, config.Sessions.London, 1e-9)
	assert.InDelta(t, 1.0, config.Days.Monday, 1e-9)
	assert.InDelta(t, 3.0, config.Levels.WeeklyOpen, 1e-9)
	assert.Equal(t, 240, config.Liquidity.LookbackMinutes)
}

func TestLoadScoreConfig_RejectsInvalidTables(t *testing.T) {
	path := writeConfigFile(t, "max_htf_bias: -1\n")
	_, err := LoadScoreConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	path = writeConfigFile(t, "structure:\n  strong_factor: 1.5\n")
	_, err = LoadScoreConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "within [0, 1]")
}

func TestLoadScoreConfig_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "max_htf_bias: [broken\n")
	_, err := LoadScoreConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScoreConfig_MissingFile(t *testing.T) {
	_, err := LoadScoreConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
