// Package store persists versioned calibration snapshots in SQLite.
//
// Every node run that updates device state appends an immutable snapshot
// linked to its parent, together with a provenance row describing which node
// produced it and with what per-qubit outcomes. A single active pointer marks
// the snapshot the next run starts from.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/qhlab/qcal/internal/errors"
	"github.com/qhlab/qcal/internal/quam"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	version_id  TEXT PRIMARY KEY,
	parent_id   TEXT,
	state_json  BLOB NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS provenance (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	node          TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	outcomes_json TEXT,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES snapshots(version_id)
);
`

// Store manages versioned calibration state in SQLite.
type Store struct {
	db *sql.DB
}

// Snapshot is one immutable version of the device calibration state.
type Snapshot struct {
	VersionID string
	ParentID  string
	Machine   *quam.Machine
	CreatedAt time.Time
}

// Provenance describes the run that produced a snapshot.
type Provenance struct {
	// Node is the calibration node name (e.g. "power_rabi_ef").
	Node string
	// RunID identifies the run; generated when empty.
	RunID string
	// Outcomes maps qubit name to its run outcome.
	Outcomes map[string]string
	// Reason is a free-form note (e.g. why a value was clamped).
	Reason string
}

// HistoryEntry pairs a snapshot id with its provenance for listings.
type HistoryEntry struct {
	VersionID string
	ParentID  string
	Node      string
	RunID     string
	Outcomes  map[string]string
	Reason    string
	CreatedAt time.Time
}

// Open opens (creating if needed) a snapshot store at the given path and runs
// schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.WrapError(err, "opening snapshot store %q", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperrors.WrapError(err, "enabling WAL")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, apperrors.WrapError(err, "enabling foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.WrapError(err, "migrating snapshot store")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot appends a new snapshot as a child of the current active
// version, records its provenance, and repoints the active marker. The whole
// operation is transactional.
func (s *Store) SaveSnapshot(m *quam.Machine, prov Provenance) (Snapshot, error) {
	stateJSON, err := json.Marshal(m)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "encoding machine state")
	}
	if prov.RunID == "" {
		prov.RunID = uuid.New().String()
	}
	outcomesJSON, err := json.Marshal(prov.Outcomes)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "encoding outcomes")
	}

	snap := Snapshot{
		VersionID: uuid.New().String(),
		Machine:   m,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "beginning transaction")
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, apperrors.WrapError(err, "reading active snapshot")
	}
	snap.ParentID = parent.String

	createdAt := snap.CreatedAt.Format(time.RFC3339Nano)
	_, err = tx.Exec(
		`INSERT INTO snapshots (version_id, parent_id, state_json, created_at) VALUES (?, ?, ?, ?)`,
		snap.VersionID, nullable(snap.ParentID), stateJSON, createdAt,
	)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "inserting snapshot")
	}

	_, err = tx.Exec(
		`INSERT INTO provenance (version_id, node, run_id, outcomes_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.VersionID, prov.Node, prov.RunID, string(outcomesJSON), prov.Reason, createdAt,
	)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "inserting provenance")
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		snap.VersionID,
	)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "repointing active snapshot")
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, apperrors.WrapError(err, "committing snapshot")
	}
	return snap, nil
}

// ActiveSnapshot returns the snapshot the active pointer references.
func (s *Store) ActiveSnapshot() (Snapshot, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_snapshot WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, apperrors.StateNotFoundError{}
	}
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "reading active snapshot")
	}
	return s.SnapshotByID(versionID)
}

// SnapshotByID loads a snapshot by version id.
func (s *Store) SnapshotByID(versionID string) (Snapshot, error) {
	var (
		parent    sql.NullString
		stateJSON []byte
		createdAt string
	)
	err := s.db.QueryRow(
		`SELECT parent_id, state_json, created_at FROM snapshots WHERE version_id = ?`,
		versionID,
	).Scan(&parent, &stateJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, apperrors.StateNotFoundError{ID: versionID}
	}
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "reading snapshot %q", versionID)
	}

	var m quam.Machine
	if err := json.Unmarshal(stateJSON, &m); err != nil {
		return Snapshot{}, apperrors.WrapError(err, "decoding snapshot %q", versionID)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Snapshot{}, apperrors.WrapError(err, "parsing snapshot timestamp")
	}
	return Snapshot{
		VersionID: versionID,
		ParentID:  parent.String,
		Machine:   &m,
		CreatedAt: ts,
	}, nil
}

// History lists the most recent snapshots with their provenance, newest first.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT s.version_id, COALESCE(s.parent_id, ''), p.node, p.run_id,
		        COALESCE(p.outcomes_json, ''), COALESCE(p.reason, ''), s.created_at
		 FROM snapshots s
		 JOIN provenance p ON p.version_id = s.version_id
		 ORDER BY s.created_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, apperrors.WrapError(err, "querying history")
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e            HistoryEntry
			outcomesJSON string
			createdAt    string
		)
		if err := rows.Scan(&e.VersionID, &e.ParentID, &e.Node, &e.RunID,
			&outcomesJSON, &e.Reason, &createdAt); err != nil {
			return nil, apperrors.WrapError(err, "scanning history row")
		}
		if outcomesJSON != "" && outcomesJSON != "null" {
			if err := json.Unmarshal([]byte(outcomesJSON), &e.Outcomes); err != nil {
				return nil, apperrors.WrapError(err, "decoding outcomes for %q", e.VersionID)
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, apperrors.WrapError(err, "parsing history timestamp")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// nullable converts an empty string to a SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
