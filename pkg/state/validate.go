package state

import (
	"time"

	"github.com/strataline/alignd/pkg/kg"
)

// Violation severities. Warnings never block conformance.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Constraint identifiers, one per structural shape.
const (
	ConstraintTaskGroupTasks = "TaskGroupHasTasks"
	ConstraintGoalKPIs       = "GoalHasKPIs"
	ConstraintKPIOwner       = "KPIHasOwner"
)

// Violation is one structural-constraint failure. Violations are data, not
// errors; they are reported and never abort a layer.
type Violation struct {
	FocusEntity  string `json:"focus_entity"`
	Message      string `json:"message"`
	Severity     string `json:"severity"`
	ConstraintID string `json:"constraint_id"`
	Path         string `json:"path"`
}

// BSCBalance reports goal coverage across the four scorecard perspectives.
type BSCBalance struct {
	Balanced            bool           `json:"balanced"`
	PerspectiveCounts   map[string]int `json:"perspective_counts"`
	MissingPerspectives []string       `json:"missing_perspectives"`
}

// ValidationResult is the outcome of running all structural constraints
// against the graph after one layer.
type ValidationResult struct {
	Layer           int         `json:"layer"`
	Timestamp       time.Time   `json:"timestamp"`
	Conforms        bool        `json:"conforms"`
	ConstraintsPass bool        `json:"constraints_pass"`
	ViolationCount  int         `json:"violation_count"`
	Violations      []Violation `json:"violations"`
	BSCBalance      BSCBalance  `json:"bsc_balance"`
}

// Validate runs the structural constraints and the scorecard balance check
// against the live graph. Conforms is true only when no error-severity
// violation exists and every perspective carries at least one goal.
func (t *Tracker) Validate(g *kg.Graph, layer int) ValidationResult {
	violations := []Violation{}

	for _, tg := range g.EntitiesOfType(kg.TypeTaskGroup) {
		if len(g.Objects(tg, "hasTask")) == 0 {
			violations = append(violations, Violation{
				FocusEntity:  tg,
				Message:      "Every TaskGroup must have at least one task.",
				Severity:     SeverityError,
				ConstraintID: ConstraintTaskGroupTasks,
				Path:         "hasTask",
			})
		}
	}

	for _, goal := range g.EntitiesOfType(kg.TypeGoal) {
		if len(g.Objects(goal, "hasKPI")) == 0 {
			violations = append(violations, Violation{
				FocusEntity:  goal,
				Message:      "Every Goal must have at least one KPI.",
				Severity:     SeverityError,
				ConstraintID: ConstraintGoalKPIs,
				Path:         "hasKPI",
			})
		}
	}

	for _, kpi := range g.EntitiesOfType(kg.TypeKPI) {
		if _, ok := g.GetProperty(kpi, "ownedBy"); !ok {
			violations = append(violations, Violation{
				FocusEntity:  kpi,
				Message:      "Every KPI should have an owner.",
				Severity:     SeverityWarning,
				ConstraintID: ConstraintKPIOwner,
				Path:         "ownedBy",
			})
		}
	}

	constraintsPass := true
	for _, v := range violations {
		if v.Severity == SeverityError {
			constraintsPass = false
			break
		}
	}

	balance := CheckBSCBalance(g)

	result := ValidationResult{
		Layer:           layer,
		Timestamp:       time.Now(),
		Conforms:        constraintsPass && balance.Balanced,
		ConstraintsPass: constraintsPass,
		ViolationCount:  len(violations),
		Violations:      violations,
		BSCBalance:      balance,
	}

	t.mu.Lock()
	t.validations = append(t.validations, result)
	t.mu.Unlock()
	return result
}

// Validation returns the validation result recorded for the given layer.
func (t *Tracker) Validation(layer int) (ValidationResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.validations {
		if r.Layer == layer {
			return r, true
		}
	}
	return ValidationResult{}, false
}

// Validations returns all recorded validation results in layer order.
func (t *Tracker) Validations() []ValidationResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ValidationResult, len(t.validations))
	copy(out, t.validations)
	return out
}

// CheckBSCBalance counts goals per scorecard perspective and lists the
// perspectives that have none.
func CheckBSCBalance(g *kg.Graph) BSCBalance {
	expected := []string{"Financial", "Customer", "Internal Process", "Learning & Growth"}

	counts := make(map[string]int)
	for _, goal := range g.EntitiesOfType(kg.TypeGoal) {
		for _, p := range g.Objects(goal, "bscPerspective") {
			if p.Kind != kg.KindRef {
				continue
			}
			label, ok := g.GetProperty(p.Ref, "label")
			if !ok {
				continue
			}
			if name, ok := label.(string); ok {
				counts[name]++
			}
		}
	}

	missing := []string{}
	for _, name := range expected {
		if counts[name] == 0 {
			missing = append(missing, name)
		}
	}

	return BSCBalance{
		Balanced:            len(missing) == 0,
		PerspectiveCounts:   counts,
		MissingPerspectives: missing,
	}
}
