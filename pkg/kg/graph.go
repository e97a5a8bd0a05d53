package kg

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TypePredicate asserts an entity's type, e.g. `NorthStar_1 a Goal .`
const TypePredicate = "a"

// Entity type names used throughout the analysis layers.
const (
	TypeOrganization = "Organization"
	TypePlan         = "Plan"
	TypeActionPhase  = "ActionPhase"
	TypeGoal         = "Goal"
	TypeObjective    = "Objective"
	TypeTaskGroup    = "TaskGroup"
	TypeTask         = "Task"
	TypeKPI          = "KPI"
	TypePerspective  = "BSCPerspective"
)

// BSC perspective entity keys, seeded into every new graph.
const (
	BSCFinancial       = "BSC_Financial"
	BSCCustomer        = "BSC_Customer"
	BSCInternalProcess = "BSC_InternalProcess"
	BSCLearningGrowth  = "BSC_LearningGrowth"
)

// Triple is a single (subject, predicate, object) statement. Triples are
// comparable and the graph stores them as a set.
type Triple struct {
	Subject   string
	Predicate string
	Object    Value
}

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object.Encode())
}

// Graph is an in-memory typed triple store. All reads and writes are
// guarded by a mutex so pipeline layers can fan out over it.
type Graph struct {
	mu        sync.RWMutex
	set       map[Triple]struct{}
	order     []Triple
	bySubject map[string][]int // indices into order
}

// NewGraph creates a graph pre-seeded with the four balanced-scorecard
// perspective entities and their bottom-up dependency chain
// (Financial -> Customer -> InternalProcess -> LearningGrowth).
func NewGraph() *Graph {
	g := newBareGraph()
	perspectives := []struct {
		key   string
		label string
	}{
		{BSCFinancial, "Financial"},
		{BSCCustomer, "Customer"},
		{BSCInternalProcess, "Internal Process"},
		{BSCLearningGrowth, "Learning & Growth"},
	}
	for _, p := range perspectives {
		g.add(Triple{p.key, TypePredicate, Ref(TypePerspective)})
		g.add(Triple{p.key, "label", String(p.label)})
	}
	g.add(Triple{BSCFinancial, "bscDependsOn", Ref(BSCCustomer)})
	g.add(Triple{BSCCustomer, "bscDependsOn", Ref(BSCInternalProcess)})
	g.add(Triple{BSCInternalProcess, "bscDependsOn", Ref(BSCLearningGrowth)})
	return g
}

func newBareGraph() *Graph {
	return &Graph{
		set:       make(map[Triple]struct{}),
		bySubject: make(map[string][]int),
	}
}

// add inserts a triple if absent. Caller holds the lock.
func (g *Graph) add(t Triple) bool {
	if _, ok := g.set[t]; ok {
		return false
	}
	g.set[t] = struct{}{}
	g.order = append(g.order, t)
	g.bySubject[t.Subject] = append(g.bySubject[t.Subject], len(g.order)-1)
	return true
}

// removeWhere deletes all triples of a subject matching the predicate filter.
// Caller holds the lock. Rebuilds the order slice, so it is O(n); graphs in
// this system stay small (hundreds of triples).
func (g *Graph) removeWhere(subject, predicate string) {
	keep := g.order[:0]
	removed := false
	for _, t := range g.order {
		if t.Subject == subject && t.Predicate == predicate {
			delete(g.set, t)
			removed = true
			continue
		}
		keep = append(keep, t)
	}
	if !removed {
		return
	}
	g.order = keep
	g.bySubject = make(map[string][]int, len(g.bySubject))
	for i, t := range g.order {
		g.bySubject[t.Subject] = append(g.bySubject[t.Subject], i)
	}
}

// UpsertEntity asserts an entity's type and properties. Re-upserting the
// same key merges: the type triple is idempotent and each property in props
// overwrites any previous value for that predicate. String property values
// that look like entity keys are stored as references.
func (g *Graph) UpsertEntity(key, entityType string, props map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.add(Triple{key, TypePredicate, Ref(entityType)})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g.removeWhere(key, name)
		g.add(Triple{key, name, AsValue(props[name])})
	}
}

// SetProperty sets a single property on an entity, overwriting any previous
// value for that predicate.
func (g *Graph) SetProperty(key, name string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeWhere(key, name)
	g.add(Triple{key, name, AsValue(value)})
}

// AddRelationship asserts an edge between two entities. Duplicate assertions
// are no-ops.
func (g *Graph) AddRelationship(from, relation, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.add(Triple{from, relation, Ref(to)})
}

// HasEntity reports whether any triple has the given subject.
func (g *Graph) HasEntity(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.bySubject[key]) > 0
}

// TypeOf returns the entity's asserted type, or "" if the key is unknown or
// untyped.
func (g *Graph) TypeOf(key string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, i := range g.bySubject[key] {
		t := g.order[i]
		if t.Predicate == TypePredicate && t.Object.Kind == KindRef {
			return t.Object.Ref
		}
	}
	return ""
}

// EntitiesOfType returns the keys of all entities with the given type, in
// insertion order.
func (g *Graph) EntitiesOfType(entityType string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var keys []string
	seen := make(map[string]struct{})
	for _, t := range g.order {
		if t.Predicate != TypePredicate || t.Object.Kind != KindRef || t.Object.Ref != entityType {
			continue
		}
		if _, ok := seen[t.Subject]; ok {
			continue
		}
		seen[t.Subject] = struct{}{}
		keys = append(keys, t.Subject)
	}
	return keys
}

// GetEntityProperties returns all of an entity's properties as native Go
// values, excluding the type assertion. References come back as bare keys.
// Unknown keys yield an empty, non-nil map.
func (g *Graph) GetEntityProperties(key string) map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	props := make(map[string]any)
	for _, i := range g.bySubject[key] {
		t := g.order[i]
		if t.Predicate == TypePredicate {
			continue
		}
		props[t.Predicate] = t.Object.Native()
	}
	return props
}

// GetProperty returns a single property value and whether it exists.
func (g *Graph) GetProperty(key, name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, i := range g.bySubject[key] {
		t := g.order[i]
		if t.Predicate == name {
			return t.Object.Native(), true
		}
	}
	return nil, false
}

// Objects returns every object of triples matching (subject, predicate).
func (g *Graph) Objects(subject, predicate string) []Value {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Value
	for _, i := range g.bySubject[subject] {
		t := g.order[i]
		if t.Predicate == predicate {
			out = append(out, t.Object)
		}
	}
	return out
}

// Subjects returns every subject of triples matching (predicate, object ref),
// in insertion order.
func (g *Graph) Subjects(predicate, objectRef string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, t := range g.order {
		if t.Predicate == predicate && t.Object.Kind == KindRef && t.Object.Ref == objectRef {
			out = append(out, t.Subject)
		}
	}
	return out
}

// Triples returns a snapshot copy of all triples in insertion order.
func (g *Graph) Triples() []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Triple, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of triples in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Export renders the entity-relationship structure as a digraph edge list,
// one "from -> to [relation]" line per reference triple. Literal properties
// and type assertions are omitted.
func (g *Graph) Export() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, t := range g.order {
		if t.Predicate == TypePredicate || t.Object.Kind != KindRef {
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s [label=%q]\n", t.Subject, t.Object.Ref, t.Predicate)
	}
	b.WriteString("}\n")
	return b.String()
}
