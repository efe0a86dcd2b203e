package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/blockworlds/geohist/internal/fixture"
	"github.com/blockworlds/geohist/internal/logging"
	"github.com/blockworlds/geohist/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to geohist.db")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	lineage := flag.Bool("lineage", false, "with --version, list its ancestors oldest first")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	fixturePath := flag.String("fixture", "", "history definition used to label values (default: built-in graben)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/geohist.db [--last N] [--version id [--lineage]] [--fixture path] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *version != "" && *lineage:
		err = runLineageMode(ctx, store, *version, *jsonOut)
	case *version != "":
		err = runDetailMode(ctx, store, *version, *fixturePath, *jsonOut)
	default:
		err = runListMode(ctx, store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID string  `json:"version_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Events    int     `json:"events"`
	Params    int     `json:"params"`
	LogPrior  *string `json:"log_prior,omitempty"`
	Trigger   string  `json:"trigger,omitempty"`
	Decision  string  `json:"decision,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func toListRow(vp state.VersionWithProvenance) listRow {
	return listRow{
		VersionID: vp.VersionID,
		ParentID:  vp.ParentID,
		Events:    len(vp.Layout),
		Params:    len(vp.Vector),
		LogPrior:  logPrior(vp.ChainState),
		Trigger:   vp.TriggerType,
		Decision:  vp.Decision,
		Reason:    vp.Reason,
		CreatedAt: vp.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func runListMode(ctx context.Context, store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersionsWithProvenance(ctx, last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(versions))
	for i, vp := range versions {
		rows[len(versions)-1-i] = toListRow(vp)
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-10s  %-10s  %6s  %6s  %14s  %-12s  %-8s  %s\n",
		"Version", "Parent", "Events", "Params", "Log Prior", "Trigger", "Decision", "Time")
	fmt.Printf("%-10s+-%-10s+-%6s+-%6s+-%14s+-%-12s+-%-8s+-%s\n",
		"----------", "----------", "------", "------", "--------------", "------------", "--------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-10s  %-10s  %6d  %6d  %14s  %-12s  %-8s  %s\n",
			shortID(r.VersionID), shortID(r.ParentID), r.Events, r.Params,
			orDash(r.LogPrior), orDash(&r.Trigger), orDash(&r.Decision), r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type eventChunk struct {
	Kind   string    `json:"kind"`
	Values []float64 `json:"values"`
}

type labeledValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type detailOutput struct {
	VersionID  string                    `json:"version_id"`
	ParentID   string                    `json:"parent_id"`
	CreatedAt  string                    `json:"created_at"`
	LogPrior   *string                   `json:"log_prior,omitempty"`
	Events     []eventChunk              `json:"events"`
	Params     []labeledValue            `json:"params,omitempty"`
	Provenance []logging.ProvenanceEntry `json:"provenance,omitempty"`
}

func runDetailMode(ctx context.Context, store *state.Store, versionID, fixturePath string, jsonOut bool) error {
	rec, err := store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	entries, err := logging.ListEntries(ctx, store.DB(), versionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		VersionID:  rec.VersionID,
		ParentID:   rec.ParentID,
		CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		LogPrior:   logPrior(rec),
		Events:     splitVector(rec),
		Provenance: entries,
	}
	labels, err := paramLabels(fixturePath, rec)
	if err != nil {
		return err
	}
	for i, l := range labels {
		out.Params = append(out.Params, labeledValue{Label: l, Value: rec.Vector[i]})
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:    %s\n", out.VersionID)
	fmt.Printf("Parent:     %s\n", orDash(&out.ParentID))
	fmt.Printf("Created:    %s\n", out.CreatedAt)
	fmt.Printf("Log Prior:  %s\n", orDash(out.LogPrior))

	if len(out.Params) > 0 {
		fmt.Printf("\nParameters:\n")
		for _, p := range out.Params {
			fmt.Printf("  %-28s %12.4f\n", p.Label, p.Value)
		}
	} else {
		fmt.Printf("\nEvents:\n")
		for i, c := range out.Events {
			fmt.Printf("  %d %-12s %v\n", i, c.Kind, c.Values)
		}
	}

	if len(entries) > 0 {
		fmt.Printf("\nProvenance:\n")
		for _, e := range entries {
			fmt.Printf("  %s  %-12s %-8s %s [%s]\n",
				e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.TriggerType, e.Decision, e.Reason, e.HistoryHash)
		}
	}
	return nil
}

func runLineageMode(ctx context.Context, store *state.Store, versionID string, jsonOut bool) error {
	chain, err := store.Lineage(ctx, versionID)
	if err != nil {
		return err
	}
	rows := make([]listRow, len(chain))
	for i, rec := range chain {
		rows[i] = toListRow(state.VersionWithProvenance{ChainState: rec})
	}
	if jsonOut {
		return printJSON(rows)
	}
	for i, r := range rows {
		fmt.Printf("%s%s  log prior %s  (%s)\n", strings.Repeat("  ", i), shortID(r.VersionID), orDash(r.LogPrior), r.CreatedAt)
	}
	return nil
}

// splitVector cuts the flat vector into per-event chunks using the layout.
func splitVector(rec state.ChainState) []eventChunk {
	chunks := make([]eventChunk, 0, len(rec.Layout))
	v := rec.Vector
	for _, l := range rec.Layout {
		n := min(l.NumParams, len(v))
		chunks = append(chunks, eventChunk{Kind: string(l.Kind), Values: v[:n]})
		v = v[n:]
	}
	return chunks
}

// paramLabels names the vector slots when the fixture history has the same
// layout as the stored state, and returns nil otherwise.
func paramLabels(fixturePath string, rec state.ChainState) ([]string, error) {
	f, err := fixture.Load(fixturePath)
	if err != nil {
		return nil, err
	}
	h, err := f.Build(rand.New(rand.NewPCG(0, 0)))
	if err != nil {
		return nil, err
	}
	if !slices.Equal(h.Layout(), rec.Layout) || h.NumParams() != len(rec.Vector) {
		return nil, nil
	}
	return h.ParamLabels(), nil
}

// #endregion detail-mode

// #region output

func logPrior(rec state.ChainState) *string {
	if rec.MetricsJSON == "" {
		return nil
	}
	m, err := rec.Metrics()
	if err != nil {
		return nil
	}
	s := fmt.Sprintf("%.4f", float64(m.LogPrior))
	return &s
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// #endregion output
