// Package settings persists per-radar installation-category control values
// across restarts, so a session can re-apply them once a radar is
// re-identified after a restart or power cycle. Storage is
// database/sql + modernc.org/sqlite (no cgo); schema migrations run
// through golang-migrate's iofs source driver over an embedded migrations
// directory, applied via WithInstance so the migration runner shares the
// same *sql.DB the rest of the package uses.
//
// Values are stored as CBOR (github.com/fxamacker/cbor/v2) rather than as
// plain TEXT/REAL columns: installation controls are typed floats today
// but the column is free to grow into richer values (e.g. encoded zone
// geometry) without a schema change.
package settings

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/mayara-project/mayara/internal/monitoring"
)

//go:embed migrations
var migrationsFS embed.FS

var logf = monitoring.Tagged("settings")

// DB wraps the installation-settings sqlite handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and brings
// its schema up to the latest migration.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	// The pure-Go sqlite driver serializes writes internally; a single
	// connection avoids SQLITE_BUSY under concurrent sessions writing
	// distinct radar_key rows.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("settings: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("settings: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("settings: migrate.NewWithInstance: %w", err)
	}
	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("settings: migrate up: %w", err)
	}
	// Deliberately no m.Close(): the sqlite driver's Close() would close the
	// shared *sql.DB underneath us, which the rest of the package still
	// owns.
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { logf(format, v...) }
func (migrateLogger) Verbose() bool                          { return false }

// Sink implements internal/session.SettingsSink, persisting installation
// control values keyed by radar identity.
type Sink struct {
	db *DB
}

// NewSink wraps an opened DB as a session.SettingsSink.
func NewSink(db *DB) *Sink {
	return &Sink{db: db}
}

// Get returns the persisted installation control values for radarKey,
// keyed by control id. Absence of a row is not an error: a newly
// discovered radar simply has no persisted settings yet.
func (s *Sink) Get(ctx context.Context, radarKey string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT control_id, value FROM installation_settings WHERE radar_key = ?`, radarKey)
	if err != nil {
		return nil, fmt.Errorf("settings: query %s: %w", radarKey, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var controlID string
		var blob []byte
		if err := rows.Scan(&controlID, &blob); err != nil {
			return nil, fmt.Errorf("settings: scan %s: %w", radarKey, err)
		}
		var value float64
		if err := cbor.Unmarshal(blob, &value); err != nil {
			logf("radar %s control %s: corrupt stored value, skipping: %v", radarKey, controlID, err)
			continue
		}
		out[controlID] = value
	}
	return out, rows.Err()
}

// Put persists value for (radarKey, controlID), replacing any previous
// value. Called from internal/session.Session.Set whenever an
// installation-category control is changed.
func (s *Sink) Put(ctx context.Context, radarKey, controlID string, value float64) error {
	blob, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s/%s: %w", radarKey, controlID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO installation_settings (radar_key, control_id, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (radar_key, control_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		radarKey, controlID, blob, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("settings: put %s/%s: %w", radarKey, controlID, err)
	}
	return nil
}
