package telemetry

import "github.com/openefi/ecud/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/ecud/telemetry.db"

	defaultBatchSize      = 32
	defaultBatchTimeoutMS = 5000
)

type Config struct {
	DBPath         string
	BatchSize      int
	BatchTimeoutMS int
	Enabled        bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:         defaultDBPath,
		BatchSize:      defaultBatchSize,
		BatchTimeoutMS: defaultBatchTimeoutMS,
		Enabled:        false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeoutMS <= 0 {
		return errFactory.New(ErrInvalidConfig)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
