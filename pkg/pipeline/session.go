// Package pipeline runs the four-layer analysis over a strategy document
// pair: structured extraction, alignment scoring, completeness analysis and
// benchmarking. Each layer reads the entity graph, calls the judgment
// oracle, and buffers its writes so a failed layer leaves the graph in the
// previous layer's state.
package pipeline

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/metrics"
	"github.com/strataline/alignd/pkg/oracle"
	"github.com/strataline/alignd/pkg/state"
)

type writeOp struct {
	kind     int // 0 upsert, 1 property, 2 relationship
	key      string
	typeName string
	props    map[string]any
	name     string
	value    any
	relation string
	object   string
}

// writeSet buffers graph mutations for one layer so they can be committed
// atomically after every oracle call in the layer has returned.
type writeSet struct {
	ops []writeOp
}

func (w *writeSet) upsertEntity(key, typeName string, props map[string]any) {
	w.ops = append(w.ops, writeOp{kind: 0, key: key, typeName: typeName, props: props})
}

func (w *writeSet) setProperty(key, name string, value any) {
	w.ops = append(w.ops, writeOp{kind: 1, key: key, name: name, value: value})
}

func (w *writeSet) addRelationship(subject, relation, object string) {
	w.ops = append(w.ops, writeOp{kind: 2, key: subject, relation: relation, object: object})
}

func (w *writeSet) apply(g *kg.Graph) {
	for _, op := range w.ops {
		switch op.kind {
		case 0:
			g.UpsertEntity(op.key, op.typeName, op.props)
		case 1:
			g.SetProperty(op.key, op.name, op.value)
		case 2:
			g.AddRelationship(op.key, op.relation, op.object)
		}
	}
}

// Results holds everything one analysis run produces besides the graph.
type Results struct {
	Writeback    WritebackReport     `json:"writeback"`
	Alignments   []AlignmentResult   `json:"alignments"`
	Completeness CompletenessResults `json:"completeness"`
	Benchmark    BenchmarkResults    `json:"benchmark"`
	Metrics      metrics.Report      `json:"metrics"`
}

// Session owns one analysis run: the graph, the per-layer snapshots, the
// oracle call log and the layer results.
type Session struct {
	ID      string
	Graph   *kg.Graph
	Tracker *state.Tracker
	Oracle  oracle.Client
	Log     *oracle.CallLog
	Model   string
	Results Results

	layersDone int
}

// Params configures a new session. ID is optional; callers that created
// the session record elsewhere pass the existing one.
type Params struct {
	ID     string
	Oracle oracle.Client
	Model  string
}

// NewSession creates a session with a freshly seeded graph.
func NewSession(params Params) (*Session, error) {
	id := params.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session ID: %w", err)
		}
	}
	return &Session{
		ID:      id,
		Graph:   kg.NewGraph(),
		Tracker: state.NewTracker(),
		Oracle:  params.Oracle,
		Log:     oracle.NewCallLog(),
		Model:   params.Model,
	}, nil
}

// temperatureFor picks the sampling temperature per layer. Judgments are
// deterministic; recommendation generation runs slightly warmer.
func (s *Session) temperatureFor(layer int) float64 {
	if layer == 4 {
		return 0.3
	}
	return 0.0
}

// LayersDone reports how many layers have committed.
func (s *Session) LayersDone() int {
	return s.layersDone
}

// Run executes all four layers in order. A layer that fails leaves the
// graph in the previous layer's state; the error names the failed layer so
// the session can be retried from there.
func (s *Session) Run(ctx context.Context, strategicText, actionText string) error {
	s.Tracker.Capture(s.Graph, 0, "After initialization")

	if err := s.runExtraction(ctx, strategicText, actionText); err != nil {
		return fmt.Errorf("layer 1 (extraction): %w", err)
	}
	if err := s.runAlignment(ctx); err != nil {
		return fmt.Errorf("layer 2 (alignment): %w", err)
	}
	if err := s.runCompleteness(ctx); err != nil {
		return fmt.Errorf("layer 3 (completeness): %w", err)
	}
	if err := s.runBenchmarking(ctx); err != nil {
		return fmt.Errorf("layer 4 (benchmarking): %w", err)
	}

	report, err := metrics.ComputeAll(s.Graph)
	if err != nil {
		return fmt.Errorf("metric derivation: %w", err)
	}
	s.Results.Metrics = report

	stats := s.Log.Stats()
	logger.Info("analysis session complete",
		"session", s.ID,
		"oracle_calls", stats.TotalCalls,
		"tokens", stats.TotalTokens,
	)
	return nil
}

func (s *Session) commitLayer(buf *writeSet, layer int, label string) {
	buf.apply(s.Graph)
	s.Tracker.Capture(s.Graph, layer, label)
	validation := s.Tracker.Validate(s.Graph, layer)
	if !validation.Conforms {
		logger.Warn("graph does not conform after layer",
			"layer", layer,
			"violations", validation.ViolationCount,
			"missing_perspectives", validation.BSCBalance.MissingPerspectives,
		)
	}
	s.layersDone = layer
}

func (s *Session) runExtraction(ctx context.Context, strategicText, actionText string) error {
	goals, err := s.ExtractGoals(ctx, strategicText)
	if err != nil {
		return err
	}
	taskGroups, err := s.ExtractTaskGroups(ctx, actionText)
	if err != nil {
		return err
	}

	var buf writeSet
	s.Results.Writeback = WriteRecords(&buf, goals, taskGroups)
	s.commitLayer(&buf, 1, "After Layer 1: Extraction")

	logger.Info("extraction complete",
		"goals", s.Results.Writeback.GoalsWritten,
		"task_groups", s.Results.Writeback.TaskGroupsWritten,
		"rejected", len(s.Results.Writeback.Rejected),
	)
	return nil
}

func (s *Session) runAlignment(ctx context.Context) error {
	var buf writeSet
	alignments, err := s.ScoreAlignments(ctx, s.Graph, &buf)
	if err != nil {
		return err
	}
	s.Results.Alignments = alignments
	s.commitLayer(&buf, 2, "After Layer 2: Alignment Scoring")
	return nil
}

func (s *Session) runCompleteness(ctx context.Context) error {
	var buf writeSet
	results, err := s.AnalyzeCompleteness(ctx, s.Graph, &buf)
	if err != nil {
		return err
	}
	s.Results.Completeness = results
	s.commitLayer(&buf, 3, "After Layer 3: Completeness Analysis")
	return nil
}

func (s *Session) runBenchmarking(ctx context.Context) error {
	results, err := s.RunBenchmarking(ctx, s.Graph, s.Results.Completeness)
	if err != nil {
		return err
	}
	s.Results.Benchmark = results

	var buf writeSet
	s.commitLayer(&buf, 4, "After Layer 4: Benchmarking")
	return nil
}
