package telemetry

import (
	"database/sql"

	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       timestamp_ms     INTEGER PRIMARY KEY,
	       rpm              INTEGER NOT NULL CHECK (typeof(rpm) = 'integer'),
	       coolant_temp_c   INTEGER NOT NULL CHECK (typeof(coolant_temp_c) = 'integer'),
	       battery_dv       INTEGER NOT NULL CHECK (typeof(battery_dv) = 'integer'),
	       map_kpa10        INTEGER NOT NULL CHECK (typeof(map_kpa10) = 'integer'),
	       lambda           REAL NOT NULL,
	       trim_stft        REAL NOT NULL,
	       enrich_pct       INTEGER NOT NULL CHECK (typeof(enrich_pct) = 'integer'),
	       limp_active      INTEGER NOT NULL CHECK (limp_active IN (0, 1)),
	       timing_retard    INTEGER NOT NULL CHECK (typeof(timing_retard) = 'integer'),
	       knock_count      INTEGER NOT NULL CHECK (typeof(knock_count) = 'integer'),
	       watchdog_healthy INTEGER NOT NULL CHECK (watchdog_healthy IN (0, 1))
	   );`

	insertSnapshotSQL = `
    INSERT INTO snapshots (
        timestamp_ms,
        rpm, coolant_temp_c, battery_dv, map_kpa10,
        lambda, trim_stft, enrich_pct,
        limp_active, timing_retard, knock_count, watchdog_healthy
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// GetInsertSnapshotSQL returns the SQL to insert a snapshot
func GetInsertSnapshotSQL() string {
	return insertSnapshotSQL
}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	logger.Debug().Msg("Creating telemetry database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	// Record schema version
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Info().
		Int("version", SchemaVersion).
		Msg("Telemetry schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// ValidateAndUpdateSchema checks the schema version and recreates it if
// the database is new or the version does not match.
func ValidateAndUpdateSchema(db *sql.DB) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to get schema version")
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	logger.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	if version == 0 || version != SchemaVersion {
		if version != 0 {
			logger.Warn().
				Int("found", version).
				Int("want", SchemaVersion).
				Msg("Telemetry schema version mismatch, recreating tables")
		}
		if err := dropTables(db); err != nil {
			return err
		}
		return InitSchema(db)
	}

	logger.Debug().
		Int("version", version).
		Msg("Schema version is current")
	return nil
}

func dropTables(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					logger.Debug().Err(err).Msg("Failed to rollback drop tables")
				}
			}
		}
	}()

	tables := []string{"snapshots", "schema_versions"}
	for _, table := range tables {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "commit_changes",
			Error: err.Error(),
		})
	}
	committed = true

	return nil
}
