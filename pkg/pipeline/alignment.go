package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/oracle"
)

// AlignmentJudgment is the oracle's verdict on one objective/task-group
// pair.
type AlignmentJudgment struct {
	Relevance            string `json:"relevance"`
	ContributionStrength string `json:"contribution_strength"`
	Reasoning            string `json:"reasoning"`
}

// AlignmentResult records one scored pair, including pairs judged as not
// aligned (no edge written for those).
type AlignmentResult struct {
	ObjectiveID string `json:"objective_id"`
	TaskGroupID string `json:"task_group_id"`
	AlignmentJudgment
}

type alignmentPair struct {
	objectiveID string
	objective   map[string]any
	taskGroupID string
	taskGroup   map[string]any
	parentGoal  map[string]any
	childTasks  []map[string]any
}

// alignmentPairs enumerates every objective/task-group combination with the
// surrounding context the judgment prompt needs.
func alignmentPairs(g *kg.Graph) ([]alignmentPair, error) {
	rows, err := g.Query(`SELECT ?obj ?goal WHERE {
		?obj a Objective .
		?goal hasObjective ?obj .
	}`)
	if err != nil {
		return nil, err
	}

	taskGroups := g.EntitiesOfType(kg.TypeTaskGroup)
	childTasks := make(map[string][]map[string]any, len(taskGroups))
	for _, tg := range taskGroups {
		for _, task := range g.Objects(tg, "hasTask") {
			if task.Kind != kg.KindRef {
				continue
			}
			childTasks[tg] = append(childTasks[tg], g.GetEntityProperties(task.Ref))
		}
	}

	var pairs []alignmentPair
	for _, row := range rows {
		objID, _ := row["obj"].(string)
		goalID, _ := row["goal"].(string)
		objProps := g.GetEntityProperties(objID)
		goalProps := g.GetEntityProperties(goalID)

		for _, tg := range taskGroups {
			pairs = append(pairs, alignmentPair{
				objectiveID: objID,
				objective:   objProps,
				taskGroupID: tg,
				taskGroup:   g.GetEntityProperties(tg),
				parentGoal:  goalProps,
				childTasks:  childTasks[tg],
			})
		}
	}
	return pairs, nil
}

func propString(props map[string]any, name string) string {
	if v, ok := props[name].(string); ok && v != "" {
		return v
	}
	return "N/A"
}

func alignmentPrompt(p alignmentPair) string {
	var b strings.Builder

	b.WriteString("You are evaluating the alignment between a strategic objective and an action plan task group.\n")
	if len(p.parentGoal) > 0 {
		fmt.Fprintf(&b, `
Parent Strategic Goal:
- Name: %s
- Description: %s
- Importance: %s
- Reasoning: %s
`,
			propString(p.parentGoal, "label"),
			propString(p.parentGoal, "description"),
			propString(p.parentGoal, "strategicImportance"),
			propString(p.parentGoal, "importanceReasoning"),
		)
	}

	fmt.Fprintf(&b, `
Strategic Objective (specific, measurable target):
- Name: %s
- Description: %s

Task Group:
- Name: %s
- Intended Purpose: %s
- Resource Allocation: %s
- Allocation Reasoning: %s
`,
		propString(p.objective, "label"),
		propString(p.objective, "description"),
		propString(p.taskGroup, "label"),
		propString(p.taskGroup, "intendedPurpose"),
		propString(p.taskGroup, "resourceAllocation"),
		propString(p.taskGroup, "allocationReasoning"),
	)

	if len(p.childTasks) > 0 {
		b.WriteString("\nIndividual Tasks:\n")
		for _, t := range p.childTasks {
			fmt.Fprintf(&b, "  - %s: %s", propString(t, "label"), propString(t, "description"))
			if outcome, ok := t["measurableOutcome"].(string); ok && outcome != "" {
				fmt.Fprintf(&b, " (Outcome: %s)", outcome)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Evaluate the alignment and provide:
1. relevance: How relevant is this task group to achieving the strategic objective?
   - "none": No connection
   - "indirect": Tangentially related
   - "partial": Contributes but not primary focus
   - "direct": Directly advances the objective

2. contribution_strength: What is the strength of this task group's contribution?
   - "tangential": Peripheral support
   - "supporting": Important supporting role
   - "primary": Core driver of objective success

3. reasoning: Brief (1-2 sentences) explanation for your classification

Return ONLY valid JSON with these three fields, no other text.

JSON OUTPUT:`)

	return b.String()
}

var (
	validRelevance = map[string]bool{"none": true, "indirect": true, "partial": true, "direct": true}
	validStrength  = map[string]bool{"tangential": true, "supporting": true, "primary": true}
)

// normalizeAlignment fills defaults for missing or invalid fields so a
// single sloppy response never aborts the layer.
func normalizeAlignment(j AlignmentJudgment) AlignmentJudgment {
	if !validRelevance[j.Relevance] {
		if j.Relevance != "" {
			logger.Warn("invalid alignment relevance, defaulting to none", "value", j.Relevance)
		}
		j.Relevance = "none"
	}
	if !validStrength[j.ContributionStrength] {
		j.ContributionStrength = "tangential"
	}
	if j.Reasoning == "" {
		j.Reasoning = "No reasoning provided"
	}
	return j
}

// ScoreAlignments judges every objective/task-group pair and buffers a
// supportsObjective edge plus three judgment properties for each pair with
// meaningful relevance. Unparseable oracle output degrades to relevance
// "none" for that pair only; a transport error aborts the layer.
func (s *Session) ScoreAlignments(ctx context.Context, g *kg.Graph, buf *writeSet) ([]AlignmentResult, error) {
	pairs, err := alignmentPairs(g)
	if err != nil {
		return nil, err
	}

	logger.Info("scoring alignment pairs", "pairs", len(pairs))

	results := make([]AlignmentResult, 0, len(pairs))
	for _, pair := range pairs {
		raw, err := s.call(ctx, "alignment.judge", 2, alignmentPrompt(pair))
		if err != nil {
			return nil, fmt.Errorf("alignment %s/%s: %w", pair.objectiveID, pair.taskGroupID, err)
		}

		var judgment AlignmentJudgment
		if err := oracle.Decode(raw, &judgment); err != nil {
			logger.Warn("unparseable alignment judgment",
				"objective", pair.objectiveID,
				"task_group", pair.taskGroupID,
				"error", err,
			)
			judgment = AlignmentJudgment{
				Relevance:            "none",
				ContributionStrength: "tangential",
				Reasoning:            "Failed to parse oracle output",
			}
		}
		judgment = normalizeAlignment(judgment)

		if judgment.Relevance != "none" {
			buf.addRelationship(pair.taskGroupID, "supportsObjective", pair.objectiveID)
			buf.setProperty(pair.taskGroupID,
				kg.JudgmentProp(kg.JudgmentAlignment, pair.objectiveID, "relevance"),
				judgment.Relevance)
			buf.setProperty(pair.taskGroupID,
				kg.JudgmentProp(kg.JudgmentAlignment, pair.objectiveID, "strength"),
				judgment.ContributionStrength)
			buf.setProperty(pair.taskGroupID,
				kg.JudgmentProp(kg.JudgmentAlignment, pair.objectiveID, "reasoning"),
				judgment.Reasoning)
		}

		results = append(results, AlignmentResult{
			ObjectiveID:       pair.objectiveID,
			TaskGroupID:       pair.taskGroupID,
			AlignmentJudgment: judgment,
		})
	}

	return results, nil
}
