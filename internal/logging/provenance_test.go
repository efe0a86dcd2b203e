package logging

import (
	"context"
	"database/sql"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/blockworlds/geohist/internal/fixture"
	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/state"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE provenance_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id   TEXT NOT NULL,
		history_hash TEXT,
		trigger_type TEXT NOT NULL,
		scores_json  TEXT,
		decision     TEXT NOT NULL,
		reason       TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func grabenHistory(t *testing.T) *history.History {
	t.Helper()
	f, err := fixture.Graben()
	if err != nil {
		t.Fatalf("Graben: %v", err)
	}
	h, err := f.Build(rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return h
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	defer db.Close()

	entry, err := NewEntry("v1", "abc123", TriggerPriorDraw, DecisionAccept, "in support", ScoreRecord{
		LogPrior:      -12.25,
		LogLikelihood: state.Score(-3.5).Ptr(),
		MinDensity:    2.0,
		MaxDensity:    3.0,
		NumPoints:     27000,
	})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	entry.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := LogDecision(ctx, db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ListEntries(ctx, db, "v1")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].TriggerType != TriggerPriorDraw || got[0].Decision != DecisionAccept {
		t.Errorf("unexpected entry: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", entry.CreatedAt, got[0].CreatedAt)
	}
	rec, err := got[0].Scores()
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if rec.LogPrior != -12.25 || rec.LogLikelihood == nil || *rec.LogLikelihood != -3.5 {
		t.Errorf("scores did not round-trip: %+v", rec)
	}
	if rec.NumPoints != 27000 {
		t.Errorf("expected 27000 points, got %d", rec.NumPoints)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogDecision(ctx, db, ProvenanceEntry{
		VersionID:   "v2",
		TriggerType: TriggerImport,
		Decision:    DecisionAccept,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_InfiniteLogPrior(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	defer db.Close()

	entry, err := NewEntry("v3", "", TriggerDeserialize, DecisionReject, "outside prior support",
		ScoreRecord{LogPrior: state.Score(math.Inf(-1))})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := LogDecision(ctx, db, entry); err != nil {
		t.Fatalf("LogDecision: %v", err)
	}
	got, _ := ListEntries(ctx, db, "v3")
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	rec, err := got[0].Scores()
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if !math.IsInf(float64(rec.LogPrior), -1) {
		t.Errorf("expected -Inf, got %v", rec.LogPrior)
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	defer db.Close()

	err := LogDecision(ctx, db, ProvenanceEntry{
		VersionID:   "v4",
		TriggerType: TriggerReplay,
		Decision:    DecisionReject,
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hash, scores, reason sql.NullString
	db.QueryRow("SELECT history_hash, scores_json, reason FROM provenance_log").Scan(&hash, &scores, &reason)
	if hash.Valid {
		t.Error("expected NULL history_hash for empty string")
	}
	if scores.Valid {
		t.Error("expected NULL scores_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close()

	err := LogDecision(context.Background(), db, ProvenanceEntry{
		VersionID:   "v5",
		TriggerType: TriggerPriorDraw,
		Decision:    DecisionAccept,
	})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region fingerprint-tests
func TestFingerprint_StableAcrossValues(t *testing.T) {
	a := grabenHistory(t)
	b := grabenHistory(t)
	b.SetToPriorDraw(rand.New(rand.NewPCG(1, 1)))
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("expected fingerprint to ignore parameter values")
	}
}

func TestFingerprint_DiffersByStructure(t *testing.T) {
	full := grabenHistory(t)

	f, err := fixture.Graben()
	if err != nil {
		t.Fatalf("Graben: %v", err)
	}
	f.Events, f.Vector = f.Events[:3], nil
	short, err := f.Build(rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if Fingerprint(full) == Fingerprint(short) {
		t.Error("expected different fingerprints for different event chains")
	}

	f.Events[0].Priors[0].Mean = 2.9
	shifted, err := f.Build(rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if Fingerprint(short) == Fingerprint(shifted) {
		t.Error("expected different fingerprints for different priors")
	}
}

// #endregion fingerprint-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if result := nullIfEmpty(""); result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
	if result := nullIfEmpty("hello"); result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
