package db

import (
	"database/sql"
	"fmt"

	"heliotrack-server/internal/control"
)

// The configuration is a process-wide singleton, so the table holds a
// single row.
const snapshotSchema = `
CREATE TABLE IF NOT EXISTS control_config (
  id           INTEGER PRIMARY KEY CHECK (id = 1),
  control_mode TEXT    NOT NULL,
  azimuth      REAL    NOT NULL,
  inclination  REAL    NOT NULL,
  updated_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

// SnapshotRepository persists the last merged control configuration so it
// survives restarts. State snapshots are never stored here.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) (*SnapshotRepository, error) {
	if _, err := db.Exec(snapshotSchema); err != nil {
		return nil, fmt.Errorf("create control_config schema: %w", err)
	}
	return &SnapshotRepository{db: db}, nil
}

// Load returns the stored configuration, or found=false when no snapshot
// has been saved yet.
func (r *SnapshotRepository) Load() (cfg control.Config, found bool, err error) {
	row := r.db.QueryRow(`SELECT control_mode, azimuth, inclination FROM control_config WHERE id = 1`)
	var mode string
	err = row.Scan(&mode, &cfg.ManualOrientation.Azimuth, &cfg.ManualOrientation.Inclination)
	if err == sql.ErrNoRows {
		return control.Config{}, false, nil
	}
	if err != nil {
		return control.Config{}, false, fmt.Errorf("load config snapshot: %w", err)
	}
	cfg.ControlMode = control.Mode(mode)
	return cfg, true, nil
}

// Save upserts the singleton row with the given configuration.
func (r *SnapshotRepository) Save(cfg control.Config) error {
	_, err := r.db.Exec(`
INSERT INTO control_config (id, control_mode, azimuth, inclination, updated_at)
VALUES (1, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
ON CONFLICT(id) DO UPDATE SET
  control_mode = excluded.control_mode,
  azimuth      = excluded.azimuth,
  inclination  = excluded.inclination,
  updated_at   = excluded.updated_at`,
		string(cfg.ControlMode),
		cfg.ManualOrientation.Azimuth,
		cfg.ManualOrientation.Inclination,
	)
	if err != nil {
		return fmt.Errorf("save config snapshot: %w", err)
	}
	return nil
}
