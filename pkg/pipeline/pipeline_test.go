package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/metrics"
	"github.com/strataline/alignd/pkg/oracle"
)

// scriptedOracle routes prompts to canned responses by matching on prompt
// fragments, mirroring how each layer phrases its requests.
type scriptedOracle struct {
	respond func(prompt string) (string, error)
	calls   int
}

func (m *scriptedOracle) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...oracle.GenerateOption,
) (string, error) {
	m.calls++
	return m.respond(prompt)
}

func (m *scriptedOracle) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...oracle.GenerateOption,
) error {
	return errors.New("structured format calls are not scripted")
}

func newTestSession(t *testing.T, respond func(prompt string) (string, error)) *Session {
	t.Helper()
	s, err := NewSession(Params{
		Oracle: &scriptedOracle{respond: respond},
		Model:  "test-model",
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

const goalsJSON = `[{
	"goal_id": "G1",
	"goal_name": "Revenue Growth",
	"description": "Grow annual recurring revenue",
	"objectives": [{"name": "Expand Markets", "description": "Enter two new regions"}],
	"kpis": [{"name": "ARR", "type": "lagging", "baseline_exists": true, "measurable": true, "owner": "CFO"}],
	"bsc_perspective": "financial",
	"strategic_importance": "critical",
	"importance_reasoning": "Revenue funds everything else.",
	"timeline": "2026",
	"dependencies": []
}]`

const taskGroupsJSON = `[{
	"task_group_id": "A1_1",
	"task_group_name": "Sales Push",
	"phase": "Phase 1: Expansion",
	"resource_allocation": "minimal",
	"allocation_reasoning": "Pilot only.",
	"tasks": [{"name": "Cold outreach", "description": "Contact prospects", "status": "pending", "measurable_outcome": "50 meetings", "has_business_justification": true}],
	"intended_strategic_purpose": "Supports revenue growth"
}]`

const assessmentJSON = `{
	"strategic_coverage": {"verdict": "strong", "reasoning": "All objectives covered.", "examples": ["Expand Markets is backed by Sales Push"]},
	"alignment_quality": {"verdict": "strong", "reasoning": "Direct links.", "examples": []},
	"resource_adequacy": {"verdict": "critical", "reasoning": "Minimal allocation on a critical goal.", "examples": []},
	"goal_cascade_coherence": {"verdict": "adequate", "reasoning": "Cascade is clear.", "examples": []},
	"bsc_balance": {"verdict": "weak", "reasoning": "Only Financial covered.", "examples": []},
	"execution_readiness": {"verdict": "adequate", "reasoning": "KPIs measurable.", "examples": []}
}`

const recommendationsJSON = `[{
	"title": "Increase Resources for Sales Push",
	"category": "resource_gap",
	"priority": "critical",
	"priority_reasoning": "Large gap.",
	"gap_description": "Sales Push is minimally resourced against Revenue Growth.",
	"business_impact": "Revenue Growth is at risk.",
	"recommended_actions": ["Reallocate budget to Sales Push"],
	"affected_entities": ["G1_O1", "A1_1"]
}]`

// routeHappyPath answers every layer with well-formed output.
func routeHappyPath(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "strategic plan document"):
		return goalsJSON, nil
	case strings.Contains(prompt, "action plan document"):
		return taskGroupsJSON, nil
	case strings.Contains(prompt, "evaluating the alignment"):
		return `{"relevance": "direct", "contribution_strength": "primary", "reasoning": "Sales Push directly drives market expansion."}`, nil
	case strings.Contains(prompt, "causally enable"):
		return `{"strength": "moderate", "reasoning": "Plausible chain."}`, nil
	case strings.Contains(prompt, "goal cascade between"):
		return `{"goal_cascade": "strong", "reasoning": "Clear cascade."}`, nil
	case strings.Contains(prompt, "resource sufficiency"):
		return `{"resource_sufficiency": "insufficient", "reasoning": "Minimal for critical."}`, nil
	case strings.Contains(prompt, "Assess these 6 alignment dimensions"):
		return assessmentJSON, nil
	case strings.Contains(prompt, "generate 4-8 specific"):
		return recommendationsJSON, nil
	}
	return "", errors.New("unexpected prompt: " + prompt[:min(len(prompt), 80)])
}

func TestRunEndToEnd(t *testing.T) {
	s := newTestSession(t, routeHappyPath)

	if err := s.Run(context.Background(), "strategy text", "action text"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.Results.Writeback.GoalsWritten != 1 || s.Results.Writeback.TaskGroupsWritten != 1 {
		t.Fatalf("writeback = %+v", s.Results.Writeback)
	}
	if len(s.Results.Completeness.OrphanObjectives) != 0 {
		t.Fatalf("orphan objectives = %v, want none", s.Results.Completeness.OrphanObjectives)
	}
	if len(s.Results.Completeness.OrphanTaskGroups) != 0 {
		t.Fatalf("orphan task groups = %v, want none", s.Results.Completeness.OrphanTaskGroups)
	}

	gaps := s.Results.Completeness.GapAnalysis
	if gaps.TotalGaps != 1 {
		t.Fatalf("TotalGaps = %d, want 1", gaps.TotalGaps)
	}
	if gaps.Gaps[0].GapScore != 90 || gaps.Gaps[0].Severity != "critical" {
		t.Fatalf("gap = %+v, want score 90 critical", gaps.Gaps[0])
	}
	if gaps.OverallSeverity != "critical" {
		t.Fatalf("OverallSeverity = %q, want critical", gaps.OverallSeverity)
	}

	if s.Results.Metrics.SAI != 100.0 {
		t.Fatalf("SAI = %v, want 100", s.Results.Metrics.SAI)
	}
	if s.Results.Metrics.Coverage != 100.0 {
		t.Fatalf("Coverage = %v, want 100", s.Results.Metrics.Coverage)
	}

	// supportsObjective edge written for the direct pair.
	if supporters := s.Graph.Subjects("supportsObjective", "G1_O1"); len(supporters) != 1 || supporters[0] != "A1_1" {
		t.Fatalf("supportsObjective subjects = %v", supporters)
	}

	// All five snapshots captured, all four validations recorded.
	if got := len(s.Tracker.Snapshots()); got != 5 {
		t.Fatalf("snapshots = %d, want 5", got)
	}
	if got := len(s.Tracker.Validations()); got != 4 {
		t.Fatalf("validations = %d, want 4", got)
	}
	if s.LayersDone() != 4 {
		t.Fatalf("LayersDone() = %d, want 4", s.LayersDone())
	}

	if s.Log.Stats().TotalCalls == 0 {
		t.Fatalf("no oracle calls recorded")
	}
}

func TestMalformedAlignmentJudgment(t *testing.T) {
	s := newTestSession(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "evaluating the alignment") {
			return "not json", nil
		}
		return routeHappyPath(prompt)
	})

	if err := s.Run(context.Background(), "strategy text", "action text"); err != nil {
		t.Fatalf("Run() error = %v, malformed judgment must not abort", err)
	}

	if len(s.Results.Alignments) != 1 {
		t.Fatalf("alignments = %d, want 1", len(s.Results.Alignments))
	}
	judgment := s.Results.Alignments[0]
	if judgment.Relevance != "none" || judgment.ContributionStrength != "tangential" {
		t.Fatalf("judgment = %+v, want none/tangential", judgment)
	}

	if supporters := s.Graph.Subjects("supportsObjective", "G1_O1"); len(supporters) != 0 {
		t.Fatalf("supportsObjective written despite relevance none: %v", supporters)
	}
	if orphans := s.Results.Completeness.OrphanObjectives; len(orphans) != 1 || orphans[0] != "G1_O1" {
		t.Fatalf("orphan objectives = %v, want [G1_O1]", orphans)
	}
}

func TestOracleChannelFailureLeavesPreviousLayerState(t *testing.T) {
	s := newTestSession(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "evaluating the alignment") {
			return "", errors.New("connection refused")
		}
		return routeHappyPath(prompt)
	})

	err := s.Run(context.Background(), "strategy text", "action text")
	if err == nil {
		t.Fatalf("Run() expected error on unreachable oracle")
	}
	if !strings.Contains(err.Error(), "layer 2") {
		t.Fatalf("error = %v, want layer 2 named", err)
	}

	if s.LayersDone() != 1 {
		t.Fatalf("LayersDone() = %d, want 1", s.LayersDone())
	}
	// Layer 2 wrote nothing: the live graph matches the layer-1 snapshot.
	snap, ok := s.Tracker.Snapshot(1)
	if !ok {
		t.Fatalf("layer 1 snapshot missing")
	}
	if s.Graph.Serialize() != snap.Serialized {
		t.Fatalf("graph changed despite aborted layer 2")
	}
}

func TestFallbackRecommendationsActivate(t *testing.T) {
	s := newTestSession(t, func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "generate 4-8 specific"):
			return "[]", nil
		case strings.Contains(prompt, "evaluating the alignment"):
			// Leave the objective and task group orphaned.
			return `{"relevance": "none", "contribution_strength": "tangential", "reasoning": "No link."}`, nil
		}
		return routeHappyPath(prompt)
	})

	if err := s.Run(context.Background(), "strategy text", "action text"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	recs := s.Results.Benchmark.Recommendations
	if len(recs) == 0 {
		t.Fatalf("no fallback recommendations generated")
	}

	categories := map[string]int{}
	for _, rec := range recs {
		categories[rec.Category]++
		if len(rec.AffectedEntities) == 0 {
			t.Fatalf("recommendation %q has no affected entities", rec.Title)
		}
		if rec.Title == "" || rec.GapDescription == "" {
			t.Fatalf("malformed fallback recommendation: %+v", rec)
		}
	}
	// One orphan objective, one orphan task group, three missing
	// perspectives collapsed into one bsc_gap entry.
	if categories["orphan_objective"] != 1 {
		t.Fatalf("orphan_objective recs = %d, want 1", categories["orphan_objective"])
	}
	if categories["orphan_task"] != 1 {
		t.Fatalf("orphan_task recs = %d, want 1", categories["orphan_task"])
	}
	if categories["bsc_gap"] != 1 {
		t.Fatalf("bsc_gap recs = %d, want 1", categories["bsc_gap"])
	}
}

func TestWriteRecordsRejectsMalformed(t *testing.T) {
	var buf writeSet
	report := WriteRecords(&buf,
		[]GoalRecord{
			{GoalID: "G1", GoalName: "Revenue Growth", StrategicImportance: "critical", BSCPerspective: "financial"},
			{GoalID: "G2"}, // missing goal_name
		},
		[]TaskGroupRecord{
			{TaskGroupID: "A1_1", TaskGroupName: "Sales Push", ResourceAllocation: "bogus"},
		},
	)

	if report.GoalsWritten != 1 {
		t.Fatalf("GoalsWritten = %d, want 1", report.GoalsWritten)
	}
	if report.TaskGroupsWritten != 0 {
		t.Fatalf("TaskGroupsWritten = %d, want 0", report.TaskGroupsWritten)
	}
	if len(report.Rejected) != 2 {
		t.Fatalf("Rejected = %+v, want 2 entries", report.Rejected)
	}

	g := kg.NewGraph()
	buf.apply(g)
	if !g.HasEntity("G1") {
		t.Fatalf("valid goal not written")
	}
	if g.HasEntity("G2") || g.HasEntity("A1_1") {
		t.Fatalf("rejected records must not reach the graph")
	}
}

func TestWriteRecordsDefaults(t *testing.T) {
	var buf writeSet
	WriteRecords(&buf,
		[]GoalRecord{{
			GoalID:     "G1",
			GoalName:   "Quality First",
			Objectives: []ObjectiveRecord{{Name: "Reduce defects"}},
			KPIs:       []KPIRecord{{Name: "Defect rate", Measurable: true}},
		}},
		[]TaskGroupRecord{{
			TaskGroupID:   "A1_1",
			TaskGroupName: "QA Revamp",
			Tasks:         []TaskRecord{{Name: "Add integration tests"}},
		}},
	)

	g := kg.NewGraph()
	buf.apply(g)

	goalProps := g.GetEntityProperties("G1")
	if goalProps["strategicImportance"] != "moderate" {
		t.Fatalf("strategicImportance = %v, want moderate default", goalProps["strategicImportance"])
	}
	// Unspecified perspective lands in Internal Process.
	if objs := g.Objects("G1", "bscPerspective"); len(objs) != 1 || objs[0].Ref != kg.BSCInternalProcess {
		t.Fatalf("bscPerspective = %v", objs)
	}

	tgProps := g.GetEntityProperties("A1_1")
	if tgProps["resourceAllocation"] != "moderate" {
		t.Fatalf("resourceAllocation = %v, want moderate default", tgProps["resourceAllocation"])
	}
	taskProps := g.GetEntityProperties("A1_1_T1")
	if taskProps["status"] != "pending" {
		t.Fatalf("status = %v, want pending default", taskProps["status"])
	}
	kpiProps := g.GetEntityProperties("G1_KPI1")
	if kpiProps["kpiType"] != "lagging" {
		t.Fatalf("kpiType = %v, want lagging default", kpiProps["kpiType"])
	}
	if _, ok := kpiProps["ownedBy"]; ok {
		t.Fatalf("ownedBy set without an owner")
	}

	if !g.HasEntity("P1") || g.TypeOf("P1") != kg.TypeActionPhase {
		t.Fatalf("default phase not created")
	}
}

func TestKIPGAFromPipelineData(t *testing.T) {
	s := newTestSession(t, routeHappyPath)
	if err := s.Run(context.Background(), "strategy text", "action text"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kipga := s.Results.Metrics.KIPGA
	found := false
	for _, point := range kipga.PlotData {
		if point.ID == "G1_O1" {
			found = true
			if point.Quadrant != metrics.QuadrantOnTrack {
				t.Fatalf("quadrant = %q, want %q", point.Quadrant, metrics.QuadrantOnTrack)
			}
		}
	}
	if !found {
		t.Fatalf("objective missing from KIPGA plot data")
	}
}
