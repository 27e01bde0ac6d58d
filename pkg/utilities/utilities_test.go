package utilities_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"zk-tax-system/pkg/utilities"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type portConfigJson struct {
	Port uint16 `json:"port"`
}

type portConfig struct {
	Port uint16
}

func (p portConfigJson) ConvertToDomain() portConfig {
	return portConfig{Port: p.Port}
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9100}`), 0o600))

	cfg, err := utilities.ReadConfig[portConfigJson, portConfig](path)
	require.NoError(t, err)
	assert.Equal(t, uint16(9100), cfg.Port)
}

func TestReadConfigErrors(t *testing.T) {
	_, err := utilities.ReadConfig[portConfigJson, portConfig](filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":`), 0o600))
	_, err = utilities.ReadConfig[portConfigJson, portConfig](path)
	assert.Error(t, err)
}

func TestConvertJsonArrayToDomain(t *testing.T) {
	out := utilities.ConvertJsonArrayToDomain[portConfigJson, portConfig]([]portConfigJson{{Port: 1}, {Port: 2}})
	assert.Equal(t, []portConfig{{Port: 1}, {Port: 2}}, out)

	assert.Empty(t, utilities.ConvertJsonArrayToDomain[portConfigJson, portConfig](nil))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ZK_TAX_TEST_KEY", "  value ")
	assert.Equal(t, "value", utilities.GetenvDefault("ZK_TAX_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", utilities.GetenvDefault("ZK_TAX_TEST_UNSET", "fallback"))

	v, err := utilities.MustEnv("ZK_TAX_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = utilities.MustEnv("ZK_TAX_TEST_UNSET")
	assert.Error(t, err)
}

func TestMapAndTernary(t *testing.T) {
	assert.Equal(t, []int{2, 4}, utilities.Map([]int{1, 2}, func(x int) int { return x * 2 }))
	assert.Equal(t, "a", utilities.Ternary(true, "a", "b"))
	assert.Equal(t, "b", utilities.Ternary(false, "a", "b"))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, advance := timeutil.FixedClock(start)
	assert.Equal(t, start, clock())

	advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clock())
	assert.True(t, timeutil.FromTime(clock()).After(timeutil.FromTime(start)))
}
