package config

import (
	"os"
	"strings"

	"github.com/openefi/ecud/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultIntervalMS        = 100
	defaultWatchdogTimeoutMS = 1000
	defaultWatchdogDevice    = "/dev/watchdog"
	defaultCANInterface      = "can0"
	defaultCalibrationPath   = "/var/lib/ecud/calibration.bin"
	defaultTelemetryDB       = "/var/lib/ecud/telemetry.db"

	// Engine safety envelope defaults. Voltages are decivolts, manifold
	// pressure is kPa x10.
	defaultMaxRPM        = 8000
	defaultFuelCutRPM    = 7500
	defaultOverheatTempC = 120
	defaultVBatMinDV     = 70
	defaultVBatMaxDV     = 170
	defaultMAPMinKPa10   = 200
	defaultMAPMaxKPa10   = 2500

	// Limp recovery gates
	defaultLimpDwellMS      = 5000
	defaultLimpHysteresisMS = 2000
)

type Config struct {
	IntervalMS        int    `mapstructure:"interval_ms"`
	LogLevel          string `mapstructure:"log_level"`
	Debug             bool   `mapstructure:"debug"`
	Verbose           bool   `mapstructure:"verbose"`
	Monitor           bool   `mapstructure:"monitor"`
	Telemetry         bool   `mapstructure:"telemetry"`
	TelemetryDB       string `mapstructure:"database"`
	CANInterface      string `mapstructure:"can_interface"`
	CalibrationPath   string `mapstructure:"calibration"`
	WatchdogDevice    string `mapstructure:"watchdog_device"`
	WatchdogTimeoutMS int    `mapstructure:"watchdog_timeout_ms"`

	MaxRPM        int `mapstructure:"max_rpm"`
	FuelCutRPM    int `mapstructure:"fuel_cut_rpm"`
	OverheatTempC int `mapstructure:"overheat_temp_c"`
	VBatMinDV     int `mapstructure:"vbat_min_dv"`
	VBatMaxDV     int `mapstructure:"vbat_max_dv"`
	MAPMinKPa10   int `mapstructure:"map_min_kpa10"`
	MAPMaxKPa10   int `mapstructure:"map_max_kpa10"`

	LimpDwellMS      int `mapstructure:"limp_dwell_ms"`
	LimpHysteresisMS int `mapstructure:"limp_hysteresis_ms"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("ecud", pflag.ContinueOnError)
	flags.Int("interval", defaultIntervalMS, "Control loop interval in milliseconds")
	flags.String("log-level", "", "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.Bool("monitor", false, "Only observe and log safety state")
	flags.Bool("telemetry", false, "Enable telemetry collection")
	flags.String("database", "", "Path to the telemetry database")
	flags.String("can-interface", "", "CAN interface for wideband lambda ingest")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := v.BindPFlag("interval_ms", flags.Lookup("interval")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	bindings := map[string]string{
		"log_level":     "log-level",
		"debug":         "debug",
		"verbose":       "verbose",
		"monitor":       "monitor",
		"telemetry":     "telemetry",
		"database":      "database",
		"can_interface": "can-interface",
	}
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag.Changed {
			v.Set(key, flag.Value.String())
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	if path := os.Getenv("ECUD_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ecud")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval_ms", defaultIntervalMS)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("database", defaultTelemetryDB)
	v.SetDefault("can_interface", defaultCANInterface)
	v.SetDefault("calibration", defaultCalibrationPath)
	v.SetDefault("watchdog_device", defaultWatchdogDevice)
	v.SetDefault("watchdog_timeout_ms", defaultWatchdogTimeoutMS)
	v.SetDefault("max_rpm", defaultMaxRPM)
	v.SetDefault("fuel_cut_rpm", defaultFuelCutRPM)
	v.SetDefault("overheat_temp_c", defaultOverheatTempC)
	v.SetDefault("vbat_min_dv", defaultVBatMinDV)
	v.SetDefault("vbat_max_dv", defaultVBatMaxDV)
	v.SetDefault("map_min_kpa10", defaultMAPMinKPa10)
	v.SetDefault("map_max_kpa10", defaultMAPMaxKPa10)
	v.SetDefault("limp_dwell_ms", defaultLimpDwellMS)
	v.SetDefault("limp_hysteresis_ms", defaultLimpHysteresisMS)
}

// Validate checks the loaded configuration for values the daemon cannot
// safely run with
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.IntervalMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.IntervalMS)
	}
	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.WatchdogTimeoutMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, c.WatchdogTimeoutMS)
	}
	if c.FuelCutRPM > c.MaxRPM {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "fuel_cut_rpm above max_rpm")
	}
	if c.VBatMinDV >= c.VBatMaxDV || c.MAPMinKPa10 >= c.MAPMaxKPa10 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sensor envelope bounds inverted")
	}
	if c.LimpDwellMS <= 0 || c.LimpHysteresisMS <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "limp recovery durations must be positive")
	}

	return nil
}
