// Package state persists versioned chain-state vectors in SQLite.
package state

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/blockworlds/geohist/internal/history"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a version id does not exist.
var ErrNotFound = errors.New("version not found")

// TimeLayout is the fixed-width UTC layout of every created_at column, so
// string order is time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS chain_states (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	vector        BLOB NOT NULL,
	layout        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES chain_states(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	history_hash  TEXT,
	trigger_type  TEXT NOT NULL,
	scores_json   TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES chain_states(version_id)
);

CREATE TABLE IF NOT EXISTS active_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES chain_states(version_id)
);
`
// #endregion schema

// #region store-struct
// Store manages versioned chain states in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-migrated connection.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region create-initial
// CreateInitialState stores the first vector of a chain and makes it active.
func (s *Store) CreateInitialState(ctx context.Context, vector []float64, layout []history.LayoutEntry) (ChainState, error) {
	rec := ChainState{
		VersionID: uuid.New().String(),
		Vector:    append([]float64(nil), vector...),
		Layout:    append([]history.LayoutEntry(nil), layout...),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CommitState(ctx, rec); err != nil {
		return ChainState{}, err
	}
	return rec, nil
}
// #endregion create-initial

// #region get-current
// GetCurrent reads the active chain state.
func (s *Store) GetCurrent(ctx context.Context) (ChainState, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM active_state WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ChainState{}, fmt.Errorf("get active: %w", ErrNotFound)
	}
	if err != nil {
		return ChainState{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific chain state by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (ChainState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, vector, layout, created_at, metrics_json
		 FROM chain_states WHERE version_id = ?`, id,
	)
	rec, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ChainState{}, fmt.Errorf("get version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ChainState{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}
// #endregion get-version

// #region commit-state
// CommitState inserts a new version and updates the active pointer atomically.
// The layout must account for every value in the vector.
func (s *Store) CommitState(ctx context.Context, rec ChainState) error {
	want := 0
	for _, l := range rec.Layout {
		want += l.NumParams
	}
	if want != len(rec.Vector) {
		return fmt.Errorf("commit %s: %w", rec.VersionID, &history.LengthError{Want: want, Got: len(rec.Vector)})
	}
	layoutJSON, err := json.Marshal(rec.Layout)
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chain_states (version_id, parent_id, vector, layout, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), encodeVector(rec.Vector), string(layoutJSON),
		rec.CreatedAt.UTC().Format(TimeLayout), nullIfEmpty(rec.MetricsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_state (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Derive builds a child of parent holding vector, ready for CommitState.
func Derive(parent ChainState, vector []float64, metrics Metrics) (ChainState, error) {
	mj, err := metrics.JSON()
	if err != nil {
		return ChainState{}, err
	}
	return ChainState{
		VersionID:   uuid.New().String(),
		ParentID:    parent.VersionID,
		Vector:      append([]float64(nil), vector...),
		Layout:      parent.Layout,
		CreatedAt:   time.Now().UTC(),
		MetricsJSON: mj,
	}, nil
}
// #endregion commit-state

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(ctx context.Context, targetVersionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chain_states WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("rollback to %s: %w", targetVersionID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE active_state SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the most recent chain states, newest first. A negative
// limit returns all of them.
func (s *Store) ListVersions(ctx context.Context, limit int) ([]ChainState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, vector, layout, created_at, metrics_json
		 FROM chain_states ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ChainState
	for rows.Next() {
		rec, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListVersionsWithProvenance is ListVersions joined with each version's most
// recent provenance entry. Versions never logged have empty provenance fields.
func (s *Store) ListVersionsWithProvenance(ctx context.Context, limit int) ([]VersionWithProvenance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.version_id, c.parent_id, c.vector, c.layout, c.created_at, c.metrics_json,
		        p.trigger_type, p.decision, p.reason
		 FROM chain_states c
		 LEFT JOIN provenance_log p
		   ON p.id = (SELECT MAX(id) FROM provenance_log WHERE version_id = c.version_id)
		 ORDER BY c.created_at DESC, c.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionWithProvenance
	for rows.Next() {
		var trigger, decision, reason sql.NullString
		rec, err := scanState(rows, &trigger, &decision, &reason)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, VersionWithProvenance{
			ChainState:  rec,
			TriggerType: trigger.String,
			Decision:    decision.String,
			Reason:      reason.String,
		})
	}
	return out, rows.Err()
}

// Lineage follows parent links from id back to the root, oldest first.
func (s *Store) Lineage(ctx context.Context, id string) ([]ChainState, error) {
	var chain []ChainState
	seen := make(map[string]bool)
	for id != "" {
		if seen[id] {
			return nil, fmt.Errorf("lineage: cycle at %s", id)
		}
		seen[id] = true
		rec, err := s.GetVersion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lineage: %w", err)
		}
		chain = append(chain, rec)
		id = rec.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
// #endregion list-versions

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner, extra ...any) (ChainState, error) {
	var rec ChainState
	var parentID sql.NullString
	var vecBlob []byte
	var layoutJSON string
	var createdStr string
	var metricsJSON sql.NullString

	dest := append([]any{&rec.VersionID, &parentID, &vecBlob, &layoutJSON, &createdStr, &metricsJSON}, extra...)
	if err := row.Scan(dest...); err != nil {
		return ChainState{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	vec, err := decodeVector(vecBlob)
	if err != nil {
		return ChainState{}, err
	}
	rec.Vector = vec
	if err := json.Unmarshal([]byte(layoutJSON), &rec.Layout); err != nil {
		return ChainState{}, fmt.Errorf("unmarshal layout: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if metricsJSON.Valid {
		rec.MetricsJSON = metricsJSON.String
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion scan

// #region vector-encoding
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes is not a whole number of float64s", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}
// #endregion vector-encoding
