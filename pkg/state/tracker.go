// Package state tracks the entity graph across pipeline layers. A Tracker
// captures an immutable snapshot after every layer, validates structural
// constraints against the live graph, and computes diffs between layers so
// a finished session can be inspected stage by stage.
package state

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/strataline/alignd/pkg/kg"
)

// Snapshot is a frozen view of the graph after one pipeline layer.
type Snapshot struct {
	Layer       int            `json:"layer"`
	Label       string         `json:"label"`
	Timestamp   time.Time      `json:"timestamp"`
	TripleCount int            `json:"triple_count"`
	NodeCounts  map[string]int `json:"node_counts"`
	EdgeCounts  map[string]int `json:"edge_counts"`
	TotalNodes  int            `json:"total_nodes"`
	TotalEdges  int            `json:"total_edges"`
	Density     float64        `json:"density"`
	Serialized  string         `json:"-"`
}

// NodeTypeChange reports how many entities of one type a layer added or
// removed.
type NodeTypeChange struct {
	Before int `json:"before"`
	After  int `json:"after"`
	Delta  int `json:"delta"`
}

// Diff summarizes what one layer changed relative to an earlier one.
type Diff struct {
	LayerBefore        int                       `json:"layer_before"`
	LayerAfter         int                       `json:"layer_after"`
	TriplesBefore      int                       `json:"triples_before"`
	TriplesAfter       int                       `json:"triples_after"`
	NewTripleCount     int                       `json:"new_triple_count"`
	RemovedTripleCount int                       `json:"removed_triple_count"`
	NodeTypeChanges    map[string]NodeTypeChange `json:"node_type_changes"`
	DensityBefore      float64                   `json:"density_before"`
	DensityAfter       float64                   `json:"density_after"`
}

// MissingSnapshotError is returned when a diff names a layer that was never
// captured.
type MissingSnapshotError struct {
	LayerBefore int
	LayerAfter  int
}

func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf(
		"missing snapshot(s): before=%d, after=%d",
		e.LayerBefore, e.LayerAfter,
	)
}

// Tracker accumulates snapshots and validation results over one analysis
// session. It is created per session alongside the graph.
type Tracker struct {
	mu          sync.Mutex
	snapshots   []Snapshot
	validations []ValidationResult
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Capture serializes the graph and records per-type and per-edge counts.
// Layer 0 is the freshly seeded graph; layers 1-4 follow each pipeline
// stage.
func (t *Tracker) Capture(g *kg.Graph, layer int, label string) Snapshot {
	nodeCounts := make(map[string]int)
	edgeCounts := make(map[string]int)
	triples := g.Triples()

	for _, tr := range triples {
		if tr.Predicate == kg.TypePredicate {
			if tr.Object.Kind == kg.KindRef {
				nodeCounts[tr.Object.Ref]++
			}
			continue
		}
		if tr.Object.Kind == kg.KindRef {
			edgeCounts[tr.Predicate]++
		}
	}

	totalNodes := 0
	for _, n := range nodeCounts {
		totalNodes += n
	}
	totalEdges := 0
	for _, n := range edgeCounts {
		totalEdges += n
	}

	density := 0.0
	if totalNodes > 1 {
		density = float64(totalEdges) / float64(totalNodes*(totalNodes-1))
		density = math.Round(density*1e6) / 1e6
	}

	snap := Snapshot{
		Layer:       layer,
		Label:       label,
		Timestamp:   time.Now(),
		TripleCount: len(triples),
		NodeCounts:  nodeCounts,
		EdgeCounts:  edgeCounts,
		TotalNodes:  totalNodes,
		TotalEdges:  totalEdges,
		Density:     density,
		Serialized:  g.Serialize(),
	}

	t.mu.Lock()
	t.snapshots = append(t.snapshots, snap)
	t.mu.Unlock()
	return snap
}

// Snapshot returns the snapshot captured for the given layer.
func (t *Tracker) Snapshot(layer int) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, snap := range t.snapshots {
		if snap.Layer == layer {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// Snapshots returns all captured snapshots in capture order.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// Diff recomputes the triple-set difference between two layer snapshots.
// Both layers must have been captured.
func (t *Tracker) Diff(layerBefore, layerAfter int) (Diff, error) {
	before, okBefore := t.Snapshot(layerBefore)
	after, okAfter := t.Snapshot(layerAfter)
	if !okBefore || !okAfter {
		return Diff{}, &MissingSnapshotError{
			LayerBefore: layerBefore,
			LayerAfter:  layerAfter,
		}
	}
	return DiffSnapshots(before, after)
}

// DiffSnapshots compares two snapshots directly. It is used by the Diff
// method and by callers that rehydrate snapshots from persisted sessions.
func DiffSnapshots(before, after Snapshot) (Diff, error) {
	setBefore, err := tripleSet(before.Serialized)
	if err != nil {
		return Diff{}, fmt.Errorf("parsing layer %d snapshot: %w", before.Layer, err)
	}
	setAfter, err := tripleSet(after.Serialized)
	if err != nil {
		return Diff{}, fmt.Errorf("parsing layer %d snapshot: %w", after.Layer, err)
	}

	newCount := 0
	for tr := range setAfter {
		if _, ok := setBefore[tr]; !ok {
			newCount++
		}
	}
	removedCount := 0
	for tr := range setBefore {
		if _, ok := setAfter[tr]; !ok {
			removedCount++
		}
	}

	changes := make(map[string]NodeTypeChange)
	for typeName := range before.NodeCounts {
		if before.NodeCounts[typeName] != after.NodeCounts[typeName] {
			changes[typeName] = NodeTypeChange{
				Before: before.NodeCounts[typeName],
				After:  after.NodeCounts[typeName],
				Delta:  after.NodeCounts[typeName] - before.NodeCounts[typeName],
			}
		}
	}
	for typeName := range after.NodeCounts {
		if _, seen := changes[typeName]; seen {
			continue
		}
		if before.NodeCounts[typeName] != after.NodeCounts[typeName] {
			changes[typeName] = NodeTypeChange{
				Before: before.NodeCounts[typeName],
				After:  after.NodeCounts[typeName],
				Delta:  after.NodeCounts[typeName] - before.NodeCounts[typeName],
			}
		}
	}

	return Diff{
		LayerBefore:        before.Layer,
		LayerAfter:         after.Layer,
		TriplesBefore:      before.TripleCount,
		TriplesAfter:       after.TripleCount,
		NewTripleCount:     newCount,
		RemovedTripleCount: removedCount,
		NodeTypeChanges:    changes,
		DensityBefore:      before.Density,
		DensityAfter:       after.Density,
	}, nil
}

func tripleSet(serialized string) (map[kg.Triple]struct{}, error) {
	g, err := kg.ParseGraph(serialized)
	if err != nil {
		return nil, err
	}
	set := make(map[kg.Triple]struct{})
	for _, tr := range g.Triples() {
		set[tr] = struct{}{}
	}
	return set, nil
}
