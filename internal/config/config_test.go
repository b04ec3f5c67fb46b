package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openefi/ecud/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "ecud.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
interval_ms = 50
log_level = "debug"
monitor = false
telemetry = true
database = "/path/to/telemetry.db"
can_interface = "vcan0"
watchdog_timeout_ms = 2000
max_rpm = 9000
fuel_cut_rpm = 8500
overheat_temp_c = 115
`)
	t.Setenv("ECUD_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.IntervalMS, "Expected IntervalMS 50")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.False(t, cfg.Monitor, "Expected Monitor false")
	assert.True(t, cfg.Telemetry, "Expected Telemetry true")
	assert.Equal(t, "/path/to/telemetry.db", cfg.TelemetryDB, "Expected TelemetryDB /path/to/telemetry.db")
	assert.Equal(t, "vcan0", cfg.CANInterface, "Expected CANInterface vcan0")
	assert.Equal(t, 2000, cfg.WatchdogTimeoutMS, "Expected WatchdogTimeoutMS 2000")
	assert.Equal(t, 9000, cfg.MaxRPM, "Expected MaxRPM 9000")
	assert.Equal(t, 8500, cfg.FuelCutRPM, "Expected FuelCutRPM 8500")
	assert.Equal(t, 115, cfg.OverheatTempC, "Expected OverheatTempC 115")
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("ECUD_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, 100, cfg.IntervalMS, "Expected default IntervalMS 100")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.False(t, cfg.Monitor, "Expected default Monitor false")
	assert.False(t, cfg.Telemetry, "Expected default Telemetry false")
	assert.Equal(t, "can0", cfg.CANInterface, "Expected default CANInterface can0")
	assert.Equal(t, 1000, cfg.WatchdogTimeoutMS, "Expected default WatchdogTimeoutMS 1000")
	assert.Equal(t, 8000, cfg.MaxRPM, "Expected default MaxRPM 8000")
	assert.Equal(t, 7500, cfg.FuelCutRPM, "Expected default FuelCutRPM 7500")
	assert.Equal(t, 120, cfg.OverheatTempC, "Expected default OverheatTempC 120")
	assert.Equal(t, 70, cfg.VBatMinDV, "Expected default VBatMinDV 70")
	assert.Equal(t, 170, cfg.VBatMaxDV, "Expected default VBatMaxDV 170")
	assert.Equal(t, 200, cfg.MAPMinKPa10, "Expected default MAPMinKPa10 200")
	assert.Equal(t, 2500, cfg.MAPMaxKPa10, "Expected default MAPMaxKPa10 2500")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "invalid"
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestInvalidInterval(t *testing.T) {
	configPath := writeConfigFile(t, `
interval_ms = 0
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid interval")
}

func TestFuelCutAboveMaxRPMRejected(t *testing.T) {
	configPath := writeConfigFile(t, `
max_rpm = 7000
fuel_cut_rpm = 7500
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuel_cut_rpm above max_rpm")
}

func TestInvertedSensorEnvelopeRejected(t *testing.T) {
	configPath := writeConfigFile(t, `
vbat_min_dv = 180
vbat_max_dv = 170
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor envelope bounds inverted")
}

func TestLogLevelFlag(t *testing.T) {
	// Save original args and restore after test
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestLimpDurationsOverridable(t *testing.T) {
	configPath := writeConfigFile(t, `
limp_dwell_ms = 8000
limp_hysteresis_ms = 3000
`)
	t.Setenv("ECUD_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.LimpDwellMS, "Expected LimpDwellMS 8000")
	assert.Equal(t, 3000, cfg.LimpHysteresisMS, "Expected LimpHysteresisMS 3000")
}

func TestNonPositiveLimpDurationsRejected(t *testing.T) {
	configPath := writeConfigFile(t, `
limp_dwell_ms = 0
`)
	t.Setenv("ECUD_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limp recovery durations")
}
