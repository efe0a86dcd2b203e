package state

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/blockworlds/geohist/internal/history"
)

// #region chain-state
// ChainState is a versioned snapshot of a history's parameter vector.
type ChainState struct {
	VersionID   string
	ParentID    string
	Vector      []float64
	Layout      []history.LayoutEntry
	CreatedAt   time.Time
	MetricsJSON string
}

// Metrics decodes MetricsJSON. An empty column yields zero Metrics.
func (c ChainState) Metrics() (Metrics, error) {
	var m Metrics
	if c.MetricsJSON == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(c.MetricsJSON), &m); err != nil {
		return Metrics{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return m, nil
}
// #endregion chain-state

// #region version-with-provenance
// VersionWithProvenance pairs a chain state with its latest provenance row.
type VersionWithProvenance struct {
	ChainState
	TriggerType string
	Decision    string
	Reason      string
}
// #endregion version-with-provenance

// #region metrics
// Metrics are the scores recorded alongside a stored vector.
type Metrics struct {
	LogPrior      Score  `json:"log_prior"`
	LogLikelihood *Score `json:"log_likelihood,omitempty"`
	Misfit        *Score `json:"misfit,omitempty"`
}

// JSON encodes the metrics for the metrics_json column.
func (m Metrics) JSON() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(b), nil
}

// Score is a float64 that survives JSON even when infinite. A log-prior
// outside the support is -Inf, which encoding/json rejects as a number, so
// non-finite values are written as the strings "-Inf", "+Inf" and "NaN".
type Score float64

func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	switch {
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(f)
}

func (s *Score) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", str, err)
		}
		*s = Score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Score(f)
	return nil
}

// Ptr returns a pointer to a copy of s, for the optional metric fields.
func (s Score) Ptr() *Score { return &s }
// #endregion metrics
