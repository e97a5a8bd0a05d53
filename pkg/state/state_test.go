package state

import (
	"errors"
	"testing"

	"github.com/strataline/alignd/pkg/kg"
)

func TestCaptureSeededGraph(t *testing.T) {
	g := kg.NewGraph()
	tracker := NewTracker()

	snap := tracker.Capture(g, 0, "After initialization")

	if snap.TripleCount != g.Len() {
		t.Fatalf("TripleCount = %d, want %d", snap.TripleCount, g.Len())
	}
	if snap.NodeCounts[kg.TypePerspective] != 4 {
		t.Fatalf("perspective count = %d, want 4", snap.NodeCounts[kg.TypePerspective])
	}
	if snap.EdgeCounts["bscDependsOn"] != 3 {
		t.Fatalf("bscDependsOn edges = %d, want 3", snap.EdgeCounts["bscDependsOn"])
	}
	if snap.TotalNodes != 4 || snap.TotalEdges != 3 {
		t.Fatalf("totals = %d nodes / %d edges, want 4/3", snap.TotalNodes, snap.TotalEdges)
	}
	// 3 edges over 4*3 ordered pairs.
	if snap.Density != 0.25 {
		t.Fatalf("Density = %v, want 0.25", snap.Density)
	}

	if _, ok := tracker.Snapshot(0); !ok {
		t.Fatalf("Snapshot(0) not found after Capture")
	}
	if _, ok := tracker.Snapshot(3); ok {
		t.Fatalf("Snapshot(3) found but never captured")
	}
}

func TestCaptureEmptyGraphDensity(t *testing.T) {
	// A seeded graph always has four perspective nodes, so force the
	// degenerate case with a graph parsed from a single type triple.
	parsed, err := kg.ParseGraph("Solo_1 a Task .")
	if err != nil {
		t.Fatalf("ParseGraph() error = %v", err)
	}

	snap := NewTracker().Capture(parsed, 0, "single node")
	if snap.Density != 0 {
		t.Fatalf("Density = %v, want 0 for a single-node graph", snap.Density)
	}
}

func TestDiffBetweenLayers(t *testing.T) {
	g := kg.NewGraph()
	tracker := NewTracker()

	g.UpsertEntity("NorthStar_1", kg.TypeGoal, map[string]any{"name": "Grow revenue"})
	tracker.Capture(g, 1, "After Layer 1: Extraction")

	g.UpsertEntity("NorthStar_1_O1", kg.TypeObjective, map[string]any{
		"name":        "Expand into new markets",
		"description": "Open two regional offices",
	})
	g.AddRelationship("NorthStar_1", "hasObjective", "NorthStar_1_O1")
	// Overwriting a property removes the old triple and adds a new one.
	g.SetProperty("NorthStar_1", "name", "Grow annual revenue")
	tracker.Capture(g, 2, "After Layer 2: Alignment")

	diff, err := tracker.Diff(1, 2)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if diff.NewTripleCount != 5 {
		t.Fatalf("NewTripleCount = %d, want 5", diff.NewTripleCount)
	}
	if diff.RemovedTripleCount != 1 {
		t.Fatalf("RemovedTripleCount = %d, want 1", diff.RemovedTripleCount)
	}
	change, ok := diff.NodeTypeChanges[kg.TypeObjective]
	if !ok {
		t.Fatalf("no node-type change recorded for Objective")
	}
	if change.Before != 0 || change.After != 1 || change.Delta != 1 {
		t.Fatalf("Objective change = %+v, want 0/1/+1", change)
	}
	if _, ok := diff.NodeTypeChanges[kg.TypeGoal]; ok {
		t.Fatalf("Goal count did not change, no delta should be recorded")
	}
	if diff.TriplesAfter-diff.TriplesBefore != 4 {
		t.Fatalf("triple counts %d -> %d, want net +4", diff.TriplesBefore, diff.TriplesAfter)
	}
}

func TestDiffMissingSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.Capture(kg.NewGraph(), 1, "only layer")

	_, err := tracker.Diff(1, 4)
	if err == nil {
		t.Fatalf("Diff() expected error for uncaptured layer")
	}
	var missing *MissingSnapshotError
	if !errors.As(err, &missing) {
		t.Fatalf("Diff() error = %T, want *MissingSnapshotError", err)
	}
	if missing.LayerBefore != 1 || missing.LayerAfter != 4 {
		t.Fatalf("error layers = %d/%d, want 1/4", missing.LayerBefore, missing.LayerAfter)
	}
}

func TestValidateReportsViolations(t *testing.T) {
	g := kg.NewGraph()
	g.UpsertEntity("NorthStar_1", kg.TypeGoal, map[string]any{"name": "Grow revenue"})
	g.AddRelationship("NorthStar_1", "bscPerspective", kg.BSCFinancial)
	g.UpsertEntity("TG_1", kg.TypeTaskGroup, map[string]any{"name": "Sales push"})
	g.UpsertEntity("KPI_1", kg.TypeKPI, map[string]any{"name": "Quarterly revenue"})

	result := NewTracker().Validate(g, 1)

	if result.Conforms {
		t.Fatalf("Conforms = true, want false")
	}
	if result.ConstraintsPass {
		t.Fatalf("ConstraintsPass = true with missing tasks and KPIs")
	}
	if result.ViolationCount != 3 {
		t.Fatalf("ViolationCount = %d, want 3", result.ViolationCount)
	}

	byConstraint := make(map[string]Violation)
	for _, v := range result.Violations {
		byConstraint[v.ConstraintID] = v
	}
	if v := byConstraint[ConstraintTaskGroupTasks]; v.FocusEntity != "TG_1" || v.Severity != SeverityError {
		t.Fatalf("task-group violation = %+v", v)
	}
	if v := byConstraint[ConstraintGoalKPIs]; v.FocusEntity != "NorthStar_1" || v.Severity != SeverityError {
		t.Fatalf("goal violation = %+v", v)
	}
	if v := byConstraint[ConstraintKPIOwner]; v.FocusEntity != "KPI_1" || v.Severity != SeverityWarning {
		t.Fatalf("kpi violation = %+v", v)
	}

	if result.BSCBalance.Balanced {
		t.Fatalf("Balanced = true with three empty perspectives")
	}
	if len(result.BSCBalance.MissingPerspectives) != 3 {
		t.Fatalf("MissingPerspectives = %v, want 3 entries", result.BSCBalance.MissingPerspectives)
	}
	if result.BSCBalance.PerspectiveCounts["Financial"] != 1 {
		t.Fatalf("Financial count = %d, want 1", result.BSCBalance.PerspectiveCounts["Financial"])
	}
}

func TestValidateWarningsDoNotBlockConformance(t *testing.T) {
	g := kg.NewGraph()
	perspectives := []string{
		kg.BSCFinancial, kg.BSCCustomer, kg.BSCInternalProcess, kg.BSCLearningGrowth,
	}
	for i, p := range perspectives {
		goal := "NorthStar_" + string(rune('1'+i))
		kpi := goal + "_KPI1"
		g.UpsertEntity(goal, kg.TypeGoal, map[string]any{"name": "goal"})
		g.AddRelationship(goal, "bscPerspective", p)
		g.UpsertEntity(kpi, kg.TypeKPI, map[string]any{"name": "kpi"})
		g.AddRelationship(goal, "hasKPI", kpi)
	}

	tracker := NewTracker()
	result := tracker.Validate(g, 2)

	if !result.ConstraintsPass {
		t.Fatalf("ConstraintsPass = false, violations: %+v", result.Violations)
	}
	if !result.Conforms {
		t.Fatalf("Conforms = false, want true despite owner warnings")
	}
	if result.ViolationCount != 4 {
		t.Fatalf("ViolationCount = %d, want 4 owner warnings", result.ViolationCount)
	}

	if _, ok := tracker.Validation(2); !ok {
		t.Fatalf("Validation(2) not recorded")
	}
}
