package icongrid

import (
	"database/sql"
	"fmt"
)

// Manifest statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ManifestEntry records one processed (run, field, forecast hour, level)
// file.
type ManifestEntry struct {
	Run          string // model run, YYYYMMDDHH
	Field        string
	ForecastHour int
	Level        int
	URL          string
	Points       int // decoded samples, 0 when the fetch failed
	Status       string
}

// Manifest is a local SQLite record of which files a batch run has
// processed, so partial runs can be audited and retried. The caller is
// responsible for registering a database/sql driver named "sqlite"
// (modernc.org/sqlite).
type Manifest struct {
	db *sql.DB
}

const manifestSchema = `
	CREATE TABLE IF NOT EXISTS grib_files (
		run           TEXT NOT NULL,
		field         TEXT NOT NULL,
		forecast_hour INTEGER NOT NULL,
		level         INTEGER NOT NULL,
		url           TEXT NOT NULL,
		points        INTEGER NOT NULL,
		status        TEXT NOT NULL,
		created       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run, field, forecast_hour, level)
	);`

// OpenManifest opens (creating if necessary) the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Record upserts one entry; re-processing a file overwrites its previous
// record.
func (m *Manifest) Record(e ManifestEntry) error {
	_, err := m.db.Exec(`
		INSERT OR REPLACE INTO grib_files (run, field, forecast_hour, level, url, points, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Run, e.Field, e.ForecastHour, e.Level, e.URL, e.Points, e.Status)
	return err
}

// List returns all entries of one model run, ordered by field, forecast
// hour and level.
func (m *Manifest) List(run string) ([]ManifestEntry, error) {
	rows, err := m.db.Query(`
		SELECT run, field, forecast_hour, level, url, points, status
		FROM grib_files WHERE run = ?
		ORDER BY field, forecast_hour, level`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManifestEntry
	for rows.Next() {
		var e ManifestEntry
		if err := rows.Scan(&e.Run, &e.Field, &e.ForecastHour, &e.Level, &e.URL, &e.Points, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (m *Manifest) Close() error { return m.db.Close() }
