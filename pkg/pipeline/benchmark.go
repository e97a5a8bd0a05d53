package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/strataline/alignd/pkg/kg"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/oracle"
)

// AlignmentDimensions are the six verdict axes of the final assessment.
var AlignmentDimensions = []string{
	"strategic_coverage",
	"alignment_quality",
	"resource_adequacy",
	"goal_cascade_coherence",
	"bsc_balance",
	"execution_readiness",
}

var validVerdicts = map[string]bool{
	"strong": true, "adequate": true, "weak": true, "critical": true,
}

// DimensionVerdict is the assessment of one alignment dimension.
type DimensionVerdict struct {
	Verdict   string   `json:"verdict"`
	Reasoning string   `json:"reasoning"`
	Examples  []string `json:"examples"`
}

// Assessment maps each alignment dimension to its verdict.
type Assessment map[string]DimensionVerdict

// Recommendation is one concrete, entity-specific improvement suggestion.
type Recommendation struct {
	Title              string   `json:"title"`
	Category           string   `json:"category"`
	Priority           string   `json:"priority"`
	PriorityReasoning  string   `json:"priority_reasoning"`
	GapDescription     string   `json:"gap_description"`
	BusinessImpact     string   `json:"business_impact"`
	RecommendedActions []string `json:"recommended_actions"`
	AffectedEntities   []string `json:"affected_entities"`
}

// BenchmarkResults bundles the layer-4 outputs.
type BenchmarkResults struct {
	Assessment      Assessment       `json:"assessment"`
	Recommendations []Recommendation `json:"recommendations"`
}

var validCategories = map[string]bool{
	"orphan_objective":   true,
	"orphan_task":        true,
	"resource_gap":       true,
	"bsc_gap":            true,
	"alignment_weakness": true,
	"kpi_quality":        true,
}

var validPriorities = map[string]bool{
	"critical": true, "high": true, "medium": true, "low": true,
}

func labelOf(g *kg.Graph, key string) string {
	if v, ok := g.GetEntityProperties(key)["label"].(string); ok && v != "" {
		return v
	}
	return key
}

// assessmentContext summarizes the analyzed graph for the verdict prompt.
func assessmentContext(g *kg.Graph, results CompletenessResults) string {
	var sections []string

	goals := g.EntitiesOfType(kg.TypeGoal)
	goalLines := make([]string, 0, len(goals))
	for _, goalID := range goals {
		props := g.GetEntityProperties(goalID)
		supportCount := 0
		for name := range props {
			if kind, _, field, ok := kg.ParseJudgmentProp(name); ok &&
				kind == kg.JudgmentAlignment && field == "relevance" {
				supportCount++
			}
		}
		goalLines = append(goalLines, fmt.Sprintf(
			"- %s | importance=%s | supporting_task_groups=%d",
			labelOf(g, goalID), propString(props, "strategicImportance"), supportCount,
		))
	}
	sections = append(sections, section("GOALS", goalLines))

	taskGroups := g.EntitiesOfType(kg.TypeTaskGroup)
	relevanceCounts := map[string]int{"direct": 0, "partial": 0, "indirect": 0}
	tgLines := make([]string, 0, len(taskGroups))
	for _, tgID := range taskGroups {
		props := g.GetEntityProperties(tgID)
		var supported []string
		for name, value := range props {
			kind, objID, field, ok := kg.ParseJudgmentProp(name)
			if !ok || kind != kg.JudgmentAlignment || field != "relevance" {
				continue
			}
			supported = append(supported, labelOf(g, objID))
			if relevance, ok := value.(string); ok {
				relevanceCounts[relevance]++
			}
		}
		supports := "none"
		if len(supported) > 0 {
			supports = strings.Join(supported, ", ")
		}
		tgLines = append(tgLines, fmt.Sprintf(
			"- %s | allocation=%s | supports=%s",
			labelOf(g, tgID), propString(props, "resourceAllocation"), supports,
		))
	}
	sections = append(sections, section("TASK GROUPS", tgLines))

	orphanObjNames := make([]string, 0, len(results.OrphanObjectives))
	for _, id := range results.OrphanObjectives {
		orphanObjNames = append(orphanObjNames, labelOf(g, id))
	}
	orphanTGNames := make([]string, 0, len(results.OrphanTaskGroups))
	for _, id := range results.OrphanTaskGroups {
		orphanTGNames = append(orphanTGNames, labelOf(g, id))
	}
	sections = append(sections, fmt.Sprintf(
		"ORPHANS: %d orphan objectives (%s), %d orphan task groups (%s)",
		len(results.OrphanObjectives), strings.Join(orphanObjNames, ", "),
		len(results.OrphanTaskGroups), strings.Join(orphanTGNames, ", "),
	))

	sections = append(sections, fmt.Sprintf("ALIGNMENT DISTRIBUTION: %v", relevanceCounts))

	gapLines := make([]string, 0, len(results.GapAnalysis.Gaps))
	for _, gap := range results.GapAnalysis.Gaps {
		gapLines = append(gapLines, fmt.Sprintf("%s -> %s gap=%.0f (%s)",
			labelOf(g, gap.ObjectiveID), labelOf(g, gap.TaskGroupID), gap.GapScore, gap.Severity))
	}
	top := "none"
	if len(gapLines) > 0 {
		top = strings.Join(gapLines, "; ")
	}
	sections = append(sections, fmt.Sprintf(
		"EXECUTION GAPS: severity=%s, total=%d, top: %s",
		results.GapAnalysis.OverallSeverity, results.GapAnalysis.TotalGaps, top,
	))

	causalLines := make([]string, 0, len(results.CausalLinks))
	for _, link := range results.CausalLinks {
		causalLines = append(causalLines, fmt.Sprintf("%s -> %s (%s)",
			link.SourcePerspective, link.TargetPerspective, link.Strength))
	}
	sections = append(sections, fmt.Sprintf(
		"BSC BALANCE: coverage=%v, missing=%v, causal_links=%d [%s]",
		results.BSCChain.Coverage, results.BSCChain.MissingPerspectives,
		len(results.CausalLinks), strings.Join(causalLines, ", "),
	))

	kpis := g.EntitiesOfType(kg.TypeKPI)
	withBaseline, measurable, withOwner := 0, 0, 0
	for _, kpiID := range kpis {
		props := g.GetEntityProperties(kpiID)
		if v, ok := props["kpiBaselineExists"].(bool); ok && v {
			withBaseline++
		}
		if v, ok := props["kpiMeasurable"].(bool); ok && v {
			measurable++
		}
		if _, ok := props["ownedBy"]; ok {
			withOwner++
		}
	}
	sections = append(sections, fmt.Sprintf(
		"KPI QUALITY: total=%d, with_baseline=%d, measurable=%d, with_owner=%d",
		len(kpis), withBaseline, measurable, withOwner,
	))

	return strings.Join(sections, "\n\n")
}

func section(title string, lines []string) string {
	if len(lines) == 0 {
		return title + ": None found"
	}
	return fmt.Sprintf("%s (%d):\n%s", title, len(lines), strings.Join(lines, "\n"))
}

const assessmentPromptFormat = `You are evaluating how well an organization's actions align with its strategy.

Below is a data summary from alignment analysis layers:

%s

Assess these 6 alignment dimensions. For each, provide:
- a verdict (strong / adequate / weak / critical)
- a brief reasoning sentence
- 1-3 specific examples from the data above that support your verdict. Each example MUST use entity titles/names. NEVER use internal codes like G1, TG2, G1_O1, A1_2 in the examples. Write examples in plain language that a business user can understand.

Dimensions:
1. strategic_coverage — Are all objectives backed by action plans? Consider orphan counts and coverage.
2. alignment_quality — How strong are the strategy-action links? Consider alignment relevance/strength distribution.
3. resource_adequacy — Does resource allocation match strategic priorities? Consider execution gaps.
4. goal_cascade_coherence — Do task goals flow logically from strategy? Consider cascade strengths and sufficiency levels.
5. bsc_balance — Is there balanced BSC perspective coverage with causal links? Consider BSC coverage and causal link data.
6. execution_readiness — Are actions concrete and measurable? Consider KPI quality indicators.

Return ONLY valid JSON mapping each dimension key to {"verdict": "...", "reasoning": "...", "examples": ["..."]}.

JSON OUTPUT:`

// AssessAlignment grades the six alignment dimensions. Missing or invalid
// dimensions in the oracle's answer default to a weak verdict rather than
// failing the layer.
func (s *Session) AssessAlignment(ctx context.Context, g *kg.Graph, results CompletenessResults) (Assessment, error) {
	prompt := fmt.Sprintf(assessmentPromptFormat, assessmentContext(g, results))

	raw, err := s.call(ctx, "benchmark.assess", 4, prompt)
	if err != nil {
		return nil, fmt.Errorf("alignment assessment: %w", err)
	}

	assessment := Assessment{}
	if err := oracle.Decode(raw, &assessment); err != nil {
		logger.Warn("unparseable assessment, defaulting all verdicts", "error", err)
		assessment = Assessment{}
	}

	for _, dim := range AlignmentDimensions {
		verdict, ok := assessment[dim]
		if !ok {
			assessment[dim] = DimensionVerdict{
				Verdict:   "weak",
				Reasoning: "Unable to assess (data unavailable).",
				Examples:  []string{},
			}
			continue
		}
		verdict.Verdict = strings.ToLower(verdict.Verdict)
		if !validVerdicts[verdict.Verdict] {
			verdict.Verdict = "weak"
		}
		if verdict.Examples == nil {
			verdict.Examples = []string{}
		}
		assessment[dim] = verdict
	}

	return assessment, nil
}

// recommendationsContext gives the oracle full entity-level detail.
func recommendationsContext(g *kg.Graph, results CompletenessResults) string {
	var sections []string

	goals := g.EntitiesOfType(kg.TypeGoal)
	goalLines := make([]string, 0, len(goals))
	for _, goalID := range goals {
		props := g.GetEntityProperties(goalID)
		var objNames []string
		for _, obj := range g.Objects(goalID, "hasObjective") {
			if obj.Kind == kg.KindRef {
				objNames = append(objNames, labelOf(g, obj.Ref))
			}
		}
		names := "none"
		if len(objNames) > 0 {
			names = strings.Join(objNames, ", ")
		}
		goalLines = append(goalLines, fmt.Sprintf(
			"- %s, description=%s, importance=%s, objectives=[%s]",
			labelOf(g, goalID), propString(props, "description"),
			propString(props, "strategicImportance"), names,
		))
	}
	sections = append(sections, section("GOALS", goalLines))

	objectives := g.EntitiesOfType(kg.TypeObjective)
	objLines := make([]string, 0, len(objectives))
	for _, objID := range objectives {
		parent := "N/A"
		if parents := g.Subjects("hasObjective", objID); len(parents) > 0 {
			parent = labelOf(g, parents[0])
		}
		var supporting []string
		for _, tgID := range g.Subjects("supportsObjective", objID) {
			tgProps := g.GetEntityProperties(tgID)
			relevance, _ := tgProps[kg.JudgmentProp(kg.JudgmentAlignment, objID, "relevance")].(string)
			strength, _ := tgProps[kg.JudgmentProp(kg.JudgmentAlignment, objID, "strength")].(string)
			supporting = append(supporting, fmt.Sprintf(
				"%s (relevance=%s, strength=%s)", labelOf(g, tgID), relevance, strength))
		}
		supports := "none"
		if len(supporting) > 0 {
			supports = strings.Join(supporting, ", ")
		}
		objLines = append(objLines, fmt.Sprintf(
			"- %s, parent_goal=%s, supporting_task_groups=[%s]",
			labelOf(g, objID), parent, supports,
		))
	}
	sections = append(sections, section("OBJECTIVES", objLines))

	taskGroups := g.EntitiesOfType(kg.TypeTaskGroup)
	tgLines := make([]string, 0, len(taskGroups))
	for _, tgID := range taskGroups {
		props := g.GetEntityProperties(tgID)
		tgLines = append(tgLines, fmt.Sprintf(
			"- %s, purpose=%s, allocation=%s, tasks=%d",
			labelOf(g, tgID), propString(props, "intendedPurpose"),
			propString(props, "resourceAllocation"), len(g.Objects(tgID, "hasTask")),
		))
	}
	sections = append(sections, section("TASK GROUPS", tgLines))

	kpis := g.EntitiesOfType(kg.TypeKPI)
	kpiLines := make([]string, 0, len(kpis))
	for _, kpiID := range kpis {
		props := g.GetEntityProperties(kpiID)
		kpiLines = append(kpiLines, fmt.Sprintf(
			"- %s, type=%s, owner=%s, baseline_exists=%v, measurable=%v",
			labelOf(g, kpiID), propString(props, "kpiType"), propString(props, "ownedBy"),
			props["kpiBaselineExists"], props["kpiMeasurable"],
		))
	}
	sections = append(sections, section("KPIs", kpiLines))

	orphanObjLines := make([]string, 0, len(results.OrphanObjectives))
	for _, objID := range results.OrphanObjectives {
		parent := "N/A"
		importance := "N/A"
		if parents := g.Subjects("hasObjective", objID); len(parents) > 0 {
			parent = labelOf(g, parents[0])
			importance = propString(g.GetEntityProperties(parents[0]), "strategicImportance")
		}
		orphanObjLines = append(orphanObjLines, fmt.Sprintf(
			"- %s, parent_goal=%s, importance=%s", labelOf(g, objID), parent, importance))
	}
	sections = append(sections, section("ORPHAN OBJECTIVES", orphanObjLines))

	orphanTGLines := make([]string, 0, len(results.OrphanTaskGroups))
	for _, tgID := range results.OrphanTaskGroups {
		props := g.GetEntityProperties(tgID)
		orphanTGLines = append(orphanTGLines, fmt.Sprintf(
			"- %s, purpose=%s, allocation=%s",
			labelOf(g, tgID), propString(props, "intendedPurpose"),
			propString(props, "resourceAllocation"),
		))
	}
	sections = append(sections, section("ORPHAN TASK GROUPS", orphanTGLines))

	gapLines := make([]string, 0, len(results.GapAnalysis.Gaps))
	for _, gap := range results.GapAnalysis.Gaps {
		gapLines = append(gapLines, fmt.Sprintf(
			"- %s -> %s: importance=%s, allocation=%s, gap=%.0f, severity=%s",
			labelOf(g, gap.ObjectiveID), labelOf(g, gap.TaskGroupID),
			gap.Importance, gap.Allocation, gap.GapScore, gap.Severity,
		))
	}
	sections = append(sections, section("EXECUTION GAPS", gapLines))

	causalLines := make([]string, 0, len(results.CausalLinks))
	for _, link := range results.CausalLinks {
		causalLines = append(causalLines, fmt.Sprintf("%s(%s) -> %s(%s) [%s]",
			link.SourceName, link.SourcePerspective,
			link.TargetName, link.TargetPerspective, link.Strength))
	}
	sections = append(sections, fmt.Sprintf(
		"BSC BALANCE: coverage=%v, missing=%v, causal_links=%d [%s]",
		results.BSCChain.Coverage, results.BSCChain.MissingPerspectives,
		len(results.CausalLinks), strings.Join(causalLines, ", "),
	))

	return strings.Join(sections, "\n\n")
}

const recommendationsPromptFormat = `You are an expert in Business-IT Alignment and Balanced Scorecard strategy.

Below is a detailed data summary of an organization's strategic plan analysis, including goals, objectives, task groups, KPIs, orphans, execution gaps, BSC coverage, and cascade data.

%s

Based on this data, generate 4-8 specific, actionable recommendations. Each recommendation MUST reference actual entity names/titles from the data above (not generic advice).

IMPORTANT: In all text fields (title, gap_description, business_impact, recommended_actions), always use entity titles/names. NEVER use internal codes like G1, TG2, G1_O1, A1_2. Write in plain language that a business user can understand. The only place codes should appear is in the "affected_entities" array.

Return ONLY a valid JSON array. Each element must have these fields:
- "title": Short entity-specific title using names
- "category": one of "orphan_objective" | "orphan_task" | "resource_gap" | "bsc_gap" | "alignment_weakness" | "kpi_quality"
- "priority": one of "critical" | "high" | "medium" | "low"
- "priority_reasoning": Why this priority level
- "gap_description": What the gap is, referencing specific entity names (not codes)
- "business_impact": Why this gap matters for the organization
- "recommended_actions": Array of 2-3 specific actionable steps using entity names
- "affected_entities": Array of entity IDs involved (e.g., ["G1", "TG2", "O1"])

JSON OUTPUT:`

// GenerateRecommendations asks the oracle for improvement recommendations.
// If the output cannot be validated into at least one well-formed entry,
// the deterministic rule-based generator takes over.
func (s *Session) GenerateRecommendations(ctx context.Context, g *kg.Graph, results CompletenessResults) ([]Recommendation, error) {
	prompt := fmt.Sprintf(recommendationsPromptFormat, recommendationsContext(g, results))

	raw, err := s.call(ctx, "benchmark.recommend", 4, prompt)
	if err != nil {
		return nil, fmt.Errorf("recommendation generation: %w", err)
	}

	var recs []Recommendation
	if err := oracle.Decode(raw, &recs); err != nil {
		logger.Warn("unparseable recommendations, using rule-based fallback", "error", err)
		return FallbackRecommendations(g, results), nil
	}

	validated := make([]Recommendation, 0, len(recs))
	for _, rec := range recs {
		if rec.Title == "" || rec.GapDescription == "" {
			continue
		}
		if !validCategories[rec.Category] {
			rec.Category = "alignment_weakness"
		}
		rec.Priority = strings.ToLower(rec.Priority)
		if !validPriorities[rec.Priority] {
			rec.Priority = "medium"
		}
		if rec.RecommendedActions == nil {
			rec.RecommendedActions = []string{}
		}
		if rec.AffectedEntities == nil {
			rec.AffectedEntities = []string{}
		}
		validated = append(validated, rec)
	}

	if len(validated) == 0 {
		logger.Warn("no valid recommendations in oracle output, using rule-based fallback")
		return FallbackRecommendations(g, results), nil
	}
	return validated, nil
}

// FallbackRecommendations synthesizes recommendations directly from orphan
// lists, missing perspectives and execution gaps when the oracle's output
// is unusable. The session always ends with well-formed recommendations.
func FallbackRecommendations(g *kg.Graph, results CompletenessResults) []Recommendation {
	recommendations := []Recommendation{}

	for _, objID := range results.OrphanObjectives {
		name := labelOf(g, objID)
		recommendations = append(recommendations, Recommendation{
			Title:             fmt.Sprintf("Create Action Plan for '%s'", name),
			Category:          "orphan_objective",
			Priority:          "high",
			PriorityReasoning: "Objectives without supporting tasks cannot be executed.",
			GapDescription: fmt.Sprintf(
				"Objective '%s' (%s) has no supporting task groups assigned to it.", name, objID),
			BusinessImpact: fmt.Sprintf(
				"Without action plans, the objective '%s' remains aspirational and will not translate into operational outcomes.", name),
			RecommendedActions: []string{
				fmt.Sprintf("Identify or create task groups that can support '%s'.", name),
				"Assign appropriate resource allocation to new task groups.",
				fmt.Sprintf("Define KPIs to track progress toward '%s'.", name),
			},
			AffectedEntities: []string{objID},
		})
	}

	for _, tgID := range results.OrphanTaskGroups {
		name := labelOf(g, tgID)
		purpose := propString(g.GetEntityProperties(tgID), "intendedPurpose")
		recommendations = append(recommendations, Recommendation{
			Title:             fmt.Sprintf("Align '%s' to Strategic Objectives", name),
			Category:          "orphan_task",
			Priority:          "medium",
			PriorityReasoning: "Unaligned task groups consume resources without strategic justification.",
			GapDescription: fmt.Sprintf(
				"Task group '%s' (%s, purpose: %s) has no alignment to any strategic objective.",
				name, tgID, purpose),
			BusinessImpact: fmt.Sprintf(
				"Resources allocated to '%s' may be wasted if not aligned to organizational strategy.", name),
			RecommendedActions: []string{
				fmt.Sprintf("Review the intended purpose of '%s' and map it to relevant objectives.", name),
				"If no strategic fit exists, consider reallocating its resources.",
			},
			AffectedEntities: []string{tgID},
		})
	}

	if missing := results.BSCChain.MissingPerspectives; len(missing) > 0 {
		affected := make([]string, len(missing))
		for i, p := range missing {
			affected[i] = "BSC_" + strings.ReplaceAll(strings.ReplaceAll(p, " ", ""), "&", "")
		}
		joined := strings.Join(missing, ", ")
		recommendations = append(recommendations, Recommendation{
			Title:             fmt.Sprintf("Address Missing BSC Perspectives: %s", joined),
			Category:          "bsc_gap",
			Priority:          "high",
			PriorityReasoning: "Unbalanced BSC coverage leads to strategic blind spots.",
			GapDescription: fmt.Sprintf(
				"The strategic plan lacks goals in %d BSC perspective(s): %s.", len(missing), joined),
			BusinessImpact: "An unbalanced strategy risks neglecting critical areas, leading to unsustainable performance.",
			RecommendedActions: []string{
				fmt.Sprintf("Define at least one strategic goal for each missing perspective: %s.", joined),
				"Ensure new goals have measurable objectives and KPIs.",
				"Assign task groups to support the new goals.",
			},
			AffectedEntities: affected,
		})
	}

	for _, gap := range results.GapAnalysis.Gaps {
		if gap.Severity != "critical" && gap.Severity != "high" {
			continue
		}
		objName := labelOf(g, gap.ObjectiveID)
		tgName := labelOf(g, gap.TaskGroupID)
		recommendations = append(recommendations, Recommendation{
			Title:    fmt.Sprintf("Increase Resources for '%s' Supporting '%s'", tgName, objName),
			Category: "resource_gap",
			Priority: gap.Severity,
			PriorityReasoning: fmt.Sprintf(
				"Gap score of %.0f indicates significant resource-importance mismatch.", gap.GapScore),
			GapDescription: fmt.Sprintf(
				"'%s' (%s) supports '%s' (%s) but has allocation=%s vs importance=%s (gap=%.0f).",
				tgName, gap.TaskGroupID, objName, gap.ObjectiveID,
				gap.Allocation, gap.Importance, gap.GapScore),
			BusinessImpact: fmt.Sprintf(
				"Under-resourcing '%s' jeopardizes achievement of '%s'.", tgName, objName),
			RecommendedActions: []string{
				fmt.Sprintf("Increase resource allocation for '%s' from %s to match strategic importance.",
					tgName, gap.Allocation),
				fmt.Sprintf("Review and optimize task priorities within '%s'.", tgName),
			},
			AffectedEntities: []string{gap.ObjectiveID, gap.TaskGroupID},
		})
	}

	return recommendations
}

// RunBenchmarking executes layer 4: the six-dimension assessment plus
// recommendation generation.
func (s *Session) RunBenchmarking(ctx context.Context, g *kg.Graph, results CompletenessResults) (BenchmarkResults, error) {
	assessment, err := s.AssessAlignment(ctx, g, results)
	if err != nil {
		return BenchmarkResults{}, err
	}

	recommendations, err := s.GenerateRecommendations(ctx, g, results)
	if err != nil {
		return BenchmarkResults{}, err
	}

	logger.Info("benchmarking complete",
		"dimensions", len(assessment),
		"recommendations", len(recommendations),
	)
	return BenchmarkResults{
		Assessment:      assessment,
		Recommendations: recommendations,
	}, nil
}
