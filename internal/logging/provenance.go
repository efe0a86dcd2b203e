// Package logging records how each stored chain state was produced.
package logging

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blockworlds/geohist/internal/history"
	"github.com/blockworlds/geohist/internal/state"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO provenance_log (version_id, history_hash, trigger_type, scores_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		nullIfEmpty(entry.HistoryHash),
		entry.TriggerType,
		nullIfEmpty(entry.ScoresJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(state.TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// NewEntry fills ScoresJSON from rec.
func NewEntry(versionID, hash, trigger, decision, reason string, rec ScoreRecord) (ProvenanceEntry, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return ProvenanceEntry{}, fmt.Errorf("marshal scores: %w", err)
	}
	return ProvenanceEntry{
		VersionID:   versionID,
		HistoryHash: hash,
		TriggerType: trigger,
		ScoresJSON:  string(b),
		Decision:    decision,
		Reason:      reason,
	}, nil
}
// #endregion log-decision

// #region list-entries
// ListEntries returns the provenance of one version, oldest first.
func ListEntries(ctx context.Context, db *sql.DB, versionID string) ([]ProvenanceEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version_id, history_hash, trigger_type, scores_json, decision, reason, created_at
		 FROM provenance_log WHERE version_id = ? ORDER BY id`, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var hash, scores, reason sql.NullString
		var created string
		if err := rows.Scan(&e.VersionID, &hash, &e.TriggerType, &scores, &e.Decision, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.HistoryHash, e.ScoresJSON, e.Reason = hash.String, scores.String, reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Scores decodes the entry's ScoresJSON.
func (e ProvenanceEntry) Scores() (ScoreRecord, error) {
	var rec ScoreRecord
	if e.ScoresJSON == "" {
		return rec, nil
	}
	if err := json.Unmarshal([]byte(e.ScoresJSON), &rec); err != nil {
		return ScoreRecord{}, fmt.Errorf("unmarshal scores: %w", err)
	}
	return rec, nil
}
// #endregion list-entries

// #region fingerprint
// Fingerprint hashes a history's structure and priors, so entries logged
// against different model definitions can be told apart.
func Fingerprint(h *history.History) string {
	sum := sha256.New()
	for _, e := range h.Events() {
		fmt.Fprintf(sum, "%s|", e.Kind())
		for _, b := range e.Priors() {
			fmt.Fprintf(sum, "%v=%v;", b.Params, b.Prior)
		}
		sum.Write([]byte{'\n'})
	}
	return hex.EncodeToString(sum.Sum(nil))[:16]
}
// #endregion fingerprint

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
