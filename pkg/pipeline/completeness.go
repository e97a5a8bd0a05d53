package pipeline

import (
	"context"
	"fmt"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/metrics"
	"github.com/strataline/alignd/pkg/oracle"
)

// ExecutionGap is one objective whose supporting task group is resourced
// below the parent goal's importance.
type ExecutionGap struct {
	ObjectiveID string  `json:"objective_id"`
	GoalID      string  `json:"goal_id"`
	TaskGroupID string  `json:"task_group_id"`
	Importance  string  `json:"importance"`
	Allocation  string  `json:"allocation"`
	GapScore    float64 `json:"gap_score"`
	Severity    string  `json:"severity"`
}

// GapAnalysis aggregates all execution gaps found in one layer run.
type GapAnalysis struct {
	OverallSeverity string         `json:"overall_severity"`
	Gaps            []ExecutionGap `json:"gaps"`
	TotalGaps       int            `json:"total_gaps"`
}

// BSCChainReport reports goal coverage per scorecard perspective.
type BSCChainReport struct {
	Coverage            map[string]int `json:"coverage"`
	MissingPerspectives []string       `json:"missing_perspectives"`
	Balanced            bool           `json:"balanced"`
}

// CausalLink is one oracle-confirmed causal relationship between goals in
// adjacent scorecard perspectives.
type CausalLink struct {
	SourceID          string `json:"source_id"`
	SourceName        string `json:"source_name"`
	SourcePerspective string `json:"source_perspective"`
	TargetID          string `json:"target_id"`
	TargetName        string `json:"target_name"`
	TargetPerspective string `json:"target_perspective"`
	Strength          string `json:"strength"`
	Reasoning         string `json:"reasoning"`
}

// CompletenessResults bundles everything layer 3 derives.
type CompletenessResults struct {
	OrphanObjectives []string       `json:"orphan_objectives"`
	OrphanTaskGroups []string       `json:"orphan_task_groups"`
	BSCChain         BSCChainReport `json:"bsc_chain"`
	CausalLinks      []CausalLink   `json:"causal_links"`
	GapAnalysis      GapAnalysis    `json:"gap_analysis"`
}

// OrphanObjectives lists objectives no task group supports.
func OrphanObjectives(g *kg.Graph) ([]string, error) {
	rows, err := g.Query(`SELECT ?obj WHERE {
		?obj a Objective .
		FILTER NOT EXISTS { ?tg supportsObjective ?obj . }
	}`)
	if err != nil {
		return nil, err
	}
	orphans := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["obj"].(string); ok {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// OrphanTaskGroups lists task groups supporting no objective.
func OrphanTaskGroups(g *kg.Graph) ([]string, error) {
	rows, err := g.Query(`SELECT ?tg WHERE {
		?tg a TaskGroup .
		FILTER NOT EXISTS { ?tg supportsObjective ?obj . }
	}`)
	if err != nil {
		return nil, err
	}
	orphans := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["tg"].(string); ok {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// VerifyBSCChain counts goals per perspective and flags empty ones.
func VerifyBSCChain(g *kg.Graph) (BSCChainReport, error) {
	byPerspective, err := metrics.GoalsByPerspective(g)
	if err != nil {
		return BSCChainReport{}, err
	}

	expected := []string{"Financial", "Customer", "Internal Process", "Learning & Growth"}
	coverage := make(map[string]int, len(expected))
	missing := []string{}
	for _, name := range expected {
		coverage[name] = len(byPerspective[name])
		if coverage[name] == 0 {
			missing = append(missing, name)
		}
	}

	return BSCChainReport{
		Coverage:            coverage,
		MissingPerspectives: missing,
		Balanced:            len(missing) == 0,
	}, nil
}

const causalLinkPromptFormat = `Analyze whether achieving one strategic objective causally enables another.

Source Objective (BSC Perspective: %s):
- ID: %s
- Name: %s
- Description: %s

Target Objective (BSC Perspective: %s):
- ID: %s
- Name: %s
- Description: %s

Does achieving the source objective causally enable or support achieving the target objective?

Classify the causal link strength:
- "strong": Clear, direct causal relationship — achieving source directly enables target
- "moderate": Indirect but meaningful causal contribution
- "weak": Marginal or conditional causal relationship
- "none": No meaningful causal relationship

Return ONLY valid JSON with these fields:
- "strength": one of "strong", "moderate", "weak", "none"
- "reasoning": Brief (1-2 sentences) explanation

JSON OUTPUT:`

var validCausalStrength = map[string]bool{"strong": true, "moderate": true, "weak": true, "none": true}

// BuildCausalLinks walks the three adjacent perspective-tier pairs bottom
// up and asks the oracle about every (source, target) goal combination. A
// "none" classification is discarded; everything else gets one
// supportsCausalChain edge and two judgment properties on the source goal.
func (s *Session) BuildCausalLinks(ctx context.Context, g *kg.Graph, buf *writeSet) ([]CausalLink, error) {
	byPerspective, err := metrics.GoalsByPerspective(g)
	if err != nil {
		return nil, err
	}

	links := []CausalLink{}
	for _, pair := range metrics.BSCCausalPairs {
		sourcePerspective, targetPerspective := pair[0], pair[1]

		for _, src := range byPerspective[sourcePerspective] {
			for _, tgt := range byPerspective[targetPerspective] {
				prompt := fmt.Sprintf(causalLinkPromptFormat,
					sourcePerspective, src.Key, src.Name, propString(src.Props, "description"),
					targetPerspective, tgt.Key, tgt.Name, propString(tgt.Props, "description"),
				)

				raw, err := s.call(ctx, "completeness.causal", 3, prompt)
				if err != nil {
					return nil, fmt.Errorf("causal link %s/%s: %w", src.Key, tgt.Key, err)
				}

				var judgment struct {
					Strength  string `json:"strength"`
					Reasoning string `json:"reasoning"`
				}
				if err := oracle.Decode(raw, &judgment); err != nil {
					logger.Warn("unparseable causal judgment",
						"source", src.Key, "target", tgt.Key, "error", err)
					judgment.Strength = "none"
					judgment.Reasoning = "Failed to parse oracle output"
				}
				if !validCausalStrength[judgment.Strength] {
					judgment.Strength = "none"
				}
				if judgment.Strength == "none" {
					continue
				}

				buf.setProperty(src.Key,
					kg.JudgmentProp(kg.JudgmentCausalLink, tgt.Key, "strength"),
					judgment.Strength)
				buf.setProperty(src.Key,
					kg.JudgmentProp(kg.JudgmentCausalLink, tgt.Key, "reasoning"),
					judgment.Reasoning)
				buf.addRelationship(src.Key, "supportsCausalChain", tgt.Key)

				links = append(links, CausalLink{
					SourceID:          src.Key,
					SourceName:        src.Name,
					SourcePerspective: sourcePerspective,
					TargetID:          tgt.Key,
					TargetName:        tgt.Name,
					TargetPerspective: targetPerspective,
					Strength:          judgment.Strength,
					Reasoning:         judgment.Reasoning,
				})
			}
		}
	}

	return links, nil
}

const cascadePromptFormat = `Analyze the goal cascade between a strategic objective and task group.

Strategic Objective:
- Name: %s
- Description: %s

Task Group:
- Name: %s
- Intended Purpose: %s

Evaluate how well the task group's goals cascade from the strategic objective:

1. goal_cascade: How clearly do the task group's goals flow from the strategic objective?
   - "strong": Clear, direct cascade with explicit connection
   - "moderate": Reasonable cascade but some ambiguity
   - "weak": Indirect or unclear cascade
   - "none": No cascading relationship

2. reasoning: Brief (1-2 sentences) explanation

Return ONLY valid JSON with these two fields, no other text.

JSON OUTPUT:`

const sufficiencyPromptFormat = `Analyze resource sufficiency for achieving a strategic objective through a task group.

Strategic Objective:
- Name: %s
- Importance: %s

Task Group:
- Name: %s
- Resource Allocation: %s

Evaluate whether the resource allocation is sufficient for the objective's importance:

1. resource_sufficiency: Is the resource allocation appropriate?
   - "fully_sufficient": Resources exceed what's needed
   - "adequate": Resources match the requirement
   - "insufficient": Resources fall short
   - "severely_lacking": Critical resource gap

2. reasoning: Brief (1-2 sentences) explanation

Return ONLY valid JSON with these two fields, no other text.

JSON OUTPUT:`

var validSufficiency = map[string]bool{
	"fully_sufficient": true,
	"adequate":         true,
	"insufficient":     true,
	"severely_lacking": true,
}

// judgeCascades derives cascade strength and resource sufficiency for every
// aligned pair, written as judgment properties on the task group.
func (s *Session) judgeCascades(ctx context.Context, g *kg.Graph, buf *writeSet) error {
	rows, err := g.Query(`SELECT ?tg ?obj WHERE { ?tg supportsObjective ?obj . }`)
	if err != nil {
		return err
	}

	for _, row := range rows {
		tgID, _ := row["tg"].(string)
		objID, _ := row["obj"].(string)
		objProps := g.GetEntityProperties(objID)
		tgProps := g.GetEntityProperties(tgID)

		// The objective's importance is inherited from its parent goal.
		importance := "moderate"
		if parents := g.Subjects("hasObjective", objID); len(parents) > 0 {
			importance = propString(g.GetEntityProperties(parents[0]), "strategicImportance")
		}

		cascadePrompt := fmt.Sprintf(cascadePromptFormat,
			propString(objProps, "label"),
			propString(objProps, "description"),
			propString(tgProps, "label"),
			propString(tgProps, "intendedPurpose"),
		)
		raw, err := s.call(ctx, "completeness.cascade", 3, cascadePrompt)
		if err != nil {
			return fmt.Errorf("cascade %s/%s: %w", tgID, objID, err)
		}
		var cascade struct {
			GoalCascade string `json:"goal_cascade"`
			Reasoning   string `json:"reasoning"`
		}
		if err := oracle.Decode(raw, &cascade); err != nil {
			logger.Warn("unparseable cascade judgment", "task_group", tgID, "objective", objID, "error", err)
			cascade.GoalCascade = "moderate"
			cascade.Reasoning = "Failed to parse oracle output"
		}
		if !validCausalStrength[cascade.GoalCascade] {
			cascade.GoalCascade = "moderate"
		}
		if cascade.Reasoning == "" {
			cascade.Reasoning = "No reasoning provided"
		}

		sufficiencyPrompt := fmt.Sprintf(sufficiencyPromptFormat,
			propString(objProps, "label"),
			importance,
			propString(tgProps, "label"),
			propString(tgProps, "resourceAllocation"),
		)
		raw, err = s.call(ctx, "completeness.sufficiency", 3, sufficiencyPrompt)
		if err != nil {
			return fmt.Errorf("sufficiency %s/%s: %w", tgID, objID, err)
		}
		var sufficiency struct {
			ResourceSufficiency string `json:"resource_sufficiency"`
			Reasoning           string `json:"reasoning"`
		}
		if err := oracle.Decode(raw, &sufficiency); err != nil {
			logger.Warn("unparseable sufficiency judgment", "task_group", tgID, "objective", objID, "error", err)
			sufficiency.ResourceSufficiency = "adequate"
			sufficiency.Reasoning = "Failed to parse oracle output"
		}
		if !validSufficiency[sufficiency.ResourceSufficiency] {
			sufficiency.ResourceSufficiency = "adequate"
		}
		if sufficiency.Reasoning == "" {
			sufficiency.Reasoning = "No reasoning provided"
		}

		buf.setProperty(tgID, kg.JudgmentProp(kg.JudgmentCascade, objID, "strength"), cascade.GoalCascade)
		buf.setProperty(tgID, kg.JudgmentProp(kg.JudgmentCascade, objID, "reasoning"), cascade.Reasoning)
		buf.setProperty(tgID, kg.JudgmentProp(kg.JudgmentSufficiency, objID, "level"), sufficiency.ResourceSufficiency)
		buf.setProperty(tgID, kg.JudgmentProp(kg.JudgmentSufficiency, objID, "reasoning"), sufficiency.Reasoning)
	}

	return nil
}

// AnalyzeExecutionGaps compares parent-goal importance against task-group
// allocation for every aligned pair. Only positive gaps are recorded.
func AnalyzeExecutionGaps(g *kg.Graph) (GapAnalysis, error) {
	rows, err := g.Query(`SELECT ?tg ?obj WHERE { ?tg supportsObjective ?obj . }`)
	if err != nil {
		return GapAnalysis{}, err
	}

	gaps := []ExecutionGap{}
	for _, row := range rows {
		tgID, _ := row["tg"].(string)
		objID, _ := row["obj"].(string)

		goalID := ""
		importance := "moderate"
		if parents := g.Subjects("hasObjective", objID); len(parents) > 0 {
			goalID = parents[0]
			if v, ok := g.GetEntityProperties(goalID)["strategicImportance"].(string); ok {
				importance = v
			}
		}
		allocation := "moderate"
		if v, ok := g.GetEntityProperties(tgID)["resourceAllocation"].(string); ok {
			allocation = v
		}

		gap := metrics.ImportanceScore(importance) - metrics.AllocationScore(allocation)
		if gap <= 0 {
			continue
		}
		gaps = append(gaps, ExecutionGap{
			ObjectiveID: objID,
			GoalID:      goalID,
			TaskGroupID: tgID,
			Importance:  importance,
			Allocation:  allocation,
			GapScore:    gap,
			Severity:    metrics.GapSeverity(gap),
		})
	}

	overall := "low"
	if len(gaps) > 0 {
		total := 0.0
		for _, g := range gaps {
			total += metrics.GapSeverityScore(g.Severity)
		}
		overall = metrics.OverallGapSeverity(total / float64(len(gaps)))
	}

	return GapAnalysis{
		OverallSeverity: overall,
		Gaps:            gaps,
		TotalGaps:       len(gaps),
	}, nil
}

// AnalyzeCompleteness runs the whole layer 3: orphan detection, scorecard
// chain verification, causal-link discovery, cascade/sufficiency judgments
// and execution-gap analysis.
func (s *Session) AnalyzeCompleteness(ctx context.Context, g *kg.Graph, buf *writeSet) (CompletenessResults, error) {
	orphanObjectives, err := OrphanObjectives(g)
	if err != nil {
		return CompletenessResults{}, err
	}
	orphanTaskGroups, err := OrphanTaskGroups(g)
	if err != nil {
		return CompletenessResults{}, err
	}
	logger.Info("orphan detection complete",
		"orphan_objectives", len(orphanObjectives),
		"orphan_task_groups", len(orphanTaskGroups),
	)

	chain, err := VerifyBSCChain(g)
	if err != nil {
		return CompletenessResults{}, err
	}
	if !chain.Balanced {
		logger.Warn("scorecard perspectives missing goals", "missing", chain.MissingPerspectives)
	}

	links, err := s.BuildCausalLinks(ctx, g, buf)
	if err != nil {
		return CompletenessResults{}, err
	}

	if err := s.judgeCascades(ctx, g, buf); err != nil {
		return CompletenessResults{}, err
	}

	gapAnalysis, err := AnalyzeExecutionGaps(g)
	if err != nil {
		return CompletenessResults{}, err
	}

	return CompletenessResults{
		OrphanObjectives: orphanObjectives,
		OrphanTaskGroups: orphanTaskGroups,
		BSCChain:         chain,
		CausalLinks:      links,
		GapAnalysis:      gapAnalysis,
	}, nil
}
