package logging

import (
	"time"

	"github.com/blockworlds/geohist/internal/state"
)

// #region triggers
// Trigger names how a stored vector came to be.
const (
	TriggerPriorDraw   = "prior_draw"
	TriggerDeserialize = "deserialize"
	TriggerImport      = "import"
	TriggerReplay      = "replay"
)

// Decision values.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)
// #endregion triggers

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	VersionID   string
	HistoryHash string
	TriggerType string
	ScoresJSON  string
	Decision    string // "accept" | "reject"
	Reason      string
	CreatedAt   time.Time
}
// #endregion provenance-entry

// #region score-record
// ScoreRecord captures the scores a vector had when it was logged.
// Serialized as JSON into provenance_log.scores_json for replay checks.
type ScoreRecord struct {
	LogPrior      state.Score  `json:"log_prior"`
	LogLikelihood *state.Score `json:"log_likelihood,omitempty"`

	// Density field summary at evaluation time
	MinDensity float64 `json:"min_density"`
	MaxDensity float64 `json:"max_density"`
	NumPoints  int     `json:"num_points"`
}
// #endregion score-record
