package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/oracle"
)

// ObjectiveRecord is one specific, measurable target under a goal.
type ObjectiveRecord struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// KPIRecord describes one indicator attached to a goal.
type KPIRecord struct {
	Name           string `json:"name" validate:"required"`
	Type           string `json:"type" validate:"omitempty,oneof=leading lagging"`
	BaselineExists bool   `json:"baseline_exists"`
	Measurable     bool   `json:"measurable"`
	Owner          string `json:"owner"`
}

// GoalRecord is one strategic goal as extracted from the strategic plan.
type GoalRecord struct {
	GoalID              string            `json:"goal_id" validate:"required"`
	GoalName            string            `json:"goal_name" validate:"required"`
	Description         string            `json:"description"`
	Objectives          []ObjectiveRecord `json:"objectives" validate:"dive"`
	KPIs                []KPIRecord       `json:"kpis" validate:"dive"`
	BSCPerspective      string            `json:"bsc_perspective" validate:"omitempty,oneof=financial customer internal_process learning_growth"`
	StrategicImportance string            `json:"strategic_importance" validate:"omitempty,oneof=critical high moderate low negligible"`
	ImportanceReasoning string            `json:"importance_reasoning"`
	Timeline            string            `json:"timeline"`
	Dependencies        []string          `json:"dependencies"`
}

// TaskRecord is one individual task inside a task group.
type TaskRecord struct {
	Name                     string `json:"name" validate:"required"`
	Description              string `json:"description"`
	Assignee                 string `json:"assignee"`
	Deadline                 string `json:"deadline"`
	Status                   string `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
	MeasurableOutcome        string `json:"measurable_outcome"`
	HasBusinessJustification bool   `json:"has_business_justification"`
}

// TaskGroupRecord is one task group as extracted from the action plan.
type TaskGroupRecord struct {
	TaskGroupID              string       `json:"task_group_id" validate:"required"`
	TaskGroupName            string       `json:"task_group_name" validate:"required"`
	Phase                    string       `json:"phase"`
	ResourceAllocation       string       `json:"resource_allocation" validate:"omitempty,oneof=heavy moderate light minimal"`
	AllocationReasoning      string       `json:"allocation_reasoning"`
	Tasks                    []TaskRecord `json:"tasks" validate:"dive"`
	IntendedStrategicPurpose string       `json:"intended_strategic_purpose"`
}

// RejectedRecord reports one extraction record that failed validation and
// was not written to the graph.
type RejectedRecord struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// WritebackReport summarizes the layer-1 graph writeback.
type WritebackReport struct {
	GoalsWritten      int              `json:"goals_written"`
	TaskGroupsWritten int              `json:"task_groups_written"`
	Rejected          []RejectedRecord `json:"rejected"`
}

const strategicExtractionPrompt = `Extract structured data from the following strategic plan document.

For each strategic goal (high-level direction), extract:
- goal_id: A short alphanumeric identifier (MUST follow format "G1", "G2", "G3", etc.)
- goal_name: Short name of the goal
- description: Detailed description
- objectives: List of objects, each with:
  - name: Short name of the objective
  - description: Detailed description of what the objective entails and how success is measured
- kpis: List of KPIs with name, baseline_exists (bool), owner (string or null), type (leading/lagging), measurable (bool)
- bsc_perspective: One of: financial, customer, internal_process, learning_growth
- strategic_importance: One of: critical, high, moderate, low, negligible
- importance_reasoning: 1-2 sentence explanation for the importance classification
- timeline: Time period as string
- dependencies: List of goal IDs this depends on

Return ONLY valid JSON array of goals, no other text.

Strategic Plan Text:
%s

JSON OUTPUT:`

const actionExtractionPrompt = `Extract structured data from the following action plan document.

For each task group, extract:
- task_group_id: A short alphanumeric identifier (MUST follow format "A1_1", "A2_1", "A1_2", etc.)
- task_group_name: Short name of the task group
- phase: Which phase this belongs to (e.g., "Phase 1: Core Development")
- resource_allocation: One of: heavy, moderate, light, minimal
- allocation_reasoning: 1-2 sentence explanation for the allocation classification
- tasks: List of ALL individual tasks (extract every task mentioned, do not summarize or group) with:
  - name: Short name of the task
  - description: Detailed description of what the task involves and its expected deliverables
  - assignee: Person or team (string or null)
  - deadline: Deadline as string
  - status: One of: pending, in_progress, completed
  - measurable_outcome: What defines success
  - has_business_justification: boolean
- intended_strategic_purpose: Brief description of which strategic goal this serves

Return ONLY valid JSON array of task groups, no other text.

Action Plan Text:
%s

JSON OUTPUT:`

// ExtractGoals asks the oracle for the structured goal records in a
// strategic plan. A response that cannot be parsed at all is an extraction
// boundary failure and aborts the layer.
func (s *Session) ExtractGoals(ctx context.Context, text string) ([]GoalRecord, error) {
	prompt := fmt.Sprintf(strategicExtractionPrompt, text)
	raw, err := s.call(ctx, "extract.goals", 1, prompt)
	if err != nil {
		return nil, fmt.Errorf("strategic plan extraction: %w", err)
	}

	var goals []GoalRecord
	if err := oracle.Decode(raw, &goals); err != nil {
		// Some models return a single object instead of an array.
		var single GoalRecord
		if err2 := oracle.Decode(raw, &single); err2 != nil {
			return nil, fmt.Errorf("strategic plan extraction: %w", err)
		}
		goals = []GoalRecord{single}
	}
	return goals, nil
}

// ExtractTaskGroups asks the oracle for the structured task-group records
// in an action plan.
func (s *Session) ExtractTaskGroups(ctx context.Context, text string) ([]TaskGroupRecord, error) {
	prompt := fmt.Sprintf(actionExtractionPrompt, text)
	raw, err := s.call(ctx, "extract.taskgroups", 1, prompt)
	if err != nil {
		return nil, fmt.Errorf("action plan extraction: %w", err)
	}

	var groups []TaskGroupRecord
	if err := oracle.Decode(raw, &groups); err != nil {
		var single TaskGroupRecord
		if err2 := oracle.Decode(raw, &single); err2 != nil {
			return nil, fmt.Errorf("action plan extraction: %w", err)
		}
		groups = []TaskGroupRecord{single}
	}
	return groups, nil
}

// planKey identifies the plan entity every goal and phase hangs off.
const planKey = "StrategicPlan_1"

// WriteRecords validates the extracted records and writes the passing ones
// into the buffer. Records that fail validation are reported, never
// silently written with holes.
func WriteRecords(
	buf *writeSet,
	goals []GoalRecord,
	taskGroups []TaskGroupRecord,
) WritebackReport {
	validate := validator.New()
	report := WritebackReport{Rejected: []RejectedRecord{}}

	buf.upsertEntity("Organization", kg.TypeOrganization, map[string]any{
		"label": "Organization",
	})
	buf.upsertEntity(planKey, kg.TypePlan, map[string]any{
		"label": "Strategic Plan",
	})
	buf.addRelationship(planKey, "belongsTo", "Organization")

	bscKeys := map[string]string{
		"financial":        kg.BSCFinancial,
		"customer":         kg.BSCCustomer,
		"internal_process": kg.BSCInternalProcess,
		"learning_growth":  kg.BSCLearningGrowth,
	}

	for _, goal := range goals {
		if err := validate.Struct(goal); err != nil {
			report.Rejected = append(report.Rejected, RejectedRecord{
				ID:     goal.GoalID,
				Reason: err.Error(),
			})
			logger.Warn("rejecting malformed goal record", "goal_id", goal.GoalID, "error", err)
			continue
		}

		importance := goal.StrategicImportance
		if importance == "" {
			importance = "moderate"
		}
		buf.upsertEntity(goal.GoalID, kg.TypeGoal, map[string]any{
			"label":               goal.GoalName,
			"description":         goal.Description,
			"strategicImportance": importance,
			"importanceReasoning": goal.ImportanceReasoning,
			"timeline":            goal.Timeline,
		})
		buf.addRelationship(planKey, "hasGoal", goal.GoalID)

		if key, ok := bscKeys[goal.BSCPerspective]; ok {
			buf.addRelationship(goal.GoalID, "bscPerspective", key)
		} else {
			buf.addRelationship(goal.GoalID, "bscPerspective", kg.BSCInternalProcess)
		}

		for i, obj := range goal.Objectives {
			objKey := fmt.Sprintf("%s_O%d", goal.GoalID, i+1)
			buf.upsertEntity(objKey, kg.TypeObjective, map[string]any{
				"label":       obj.Name,
				"description": obj.Description,
			})
			buf.addRelationship(goal.GoalID, "hasObjective", objKey)
		}

		for i, kpi := range goal.KPIs {
			kpiKey := fmt.Sprintf("%s_KPI%d", goal.GoalID, i+1)
			kpiType := kpi.Type
			if kpiType == "" {
				kpiType = "lagging"
			}
			props := map[string]any{
				"label":             kpi.Name,
				"kpiType":           kpiType,
				"kpiBaselineExists": kpi.BaselineExists,
				"kpiMeasurable":     kpi.Measurable,
			}
			if kpi.Owner != "" {
				props["ownedBy"] = kpi.Owner
			}
			buf.upsertEntity(kpiKey, kg.TypeKPI, props)
			buf.addRelationship(goal.GoalID, "hasKPI", kpiKey)
		}

		report.GoalsWritten++
	}

	// Task groups are attached to their phase; phases are created in the
	// order they are first mentioned.
	phaseKeys := map[string]string{}
	phaseOrder := 0
	for _, tg := range taskGroups {
		if err := validate.Struct(tg); err != nil {
			report.Rejected = append(report.Rejected, RejectedRecord{
				ID:     tg.TaskGroupID,
				Reason: err.Error(),
			})
			logger.Warn("rejecting malformed task group record", "task_group_id", tg.TaskGroupID, "error", err)
			continue
		}

		phaseName := tg.Phase
		if phaseName == "" {
			phaseName = "Phase 1"
		}
		phaseKey, ok := phaseKeys[phaseName]
		if !ok {
			phaseOrder++
			phaseKey = fmt.Sprintf("P%d", phaseOrder)
			phaseKeys[phaseName] = phaseKey
			buf.upsertEntity(phaseKey, kg.TypeActionPhase, map[string]any{
				"label":      phaseName,
				"phaseOrder": phaseOrder,
			})
			buf.addRelationship(planKey, "hasPhase", phaseKey)
		}

		allocation := tg.ResourceAllocation
		if allocation == "" {
			allocation = "moderate"
		}
		buf.upsertEntity(tg.TaskGroupID, kg.TypeTaskGroup, map[string]any{
			"label":               tg.TaskGroupName,
			"resourceAllocation":  allocation,
			"allocationReasoning": tg.AllocationReasoning,
			"intendedPurpose":     tg.IntendedStrategicPurpose,
		})
		buf.addRelationship(phaseKey, "containsGroup", tg.TaskGroupID)

		for i, task := range tg.Tasks {
			taskKey := fmt.Sprintf("%s_T%d", tg.TaskGroupID, i+1)
			status := task.Status
			if status == "" {
				status = "pending"
			}
			props := map[string]any{
				"label":                    task.Name,
				"description":              task.Description,
				"deadline":                 task.Deadline,
				"status":                   status,
				"measurableOutcome":        task.MeasurableOutcome,
				"hasBusinessJustification": task.HasBusinessJustification,
			}
			if task.Assignee != "" {
				props["assignee"] = task.Assignee
			}
			buf.upsertEntity(taskKey, kg.TypeTask, props)
			buf.addRelationship(tg.TaskGroupID, "hasTask", taskKey)
		}

		report.TaskGroupsWritten++
	}

	return report
}

// call runs one oracle completion and records it in the session log.
func (s *Session) call(ctx context.Context, caller string, layer int, prompt string) (string, error) {
	cached := false
	if cc, ok := s.Oracle.(*oracle.CachedClient); ok {
		cached = cc.WasCached(s.Model, prompt)
	}

	start := time.Now()
	response, err := s.Oracle.GenerateCompletion(ctx, prompt,
		oracle.WithModel(s.Model),
		oracle.WithTemperature(s.temperatureFor(layer)),
	)

	entry := oracle.CallEntry{
		Caller:       caller,
		Prompt:       prompt,
		Response:     response,
		Layer:        layer,
		Model:        s.Model,
		InputTokens:  oracle.EstimateTokens(prompt),
		OutputTokens: oracle.EstimateTokens(response),
		LatencyMs:    time.Since(start).Milliseconds(),
		Cached:       cached,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.Log.Record(entry)

	return response, err
}
