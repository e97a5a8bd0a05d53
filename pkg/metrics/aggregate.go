package metrics

import (
	"fmt"

	"github.com/strataline/alignd/pkg/kg"
)

// BSCCausalPairs lists the adjacent perspective tiers walked during causal
// chain analysis, bottom-up: achievements in the source tier are expected to
// enable goals in the target tier.
var BSCCausalPairs = [][2]string{
	{"Learning & Growth", "Internal Process"},
	{"Internal Process", "Customer"},
	{"Customer", "Financial"},
}

// GoalInfo is a goal resolved for perspective-level analysis.
type GoalInfo struct {
	Key   string
	Name  string
	Props map[string]any
}

// GoalsByPerspective groups all goals by their balanced-scorecard
// perspective label.
func GoalsByPerspective(g *kg.Graph) (map[string][]GoalInfo, error) {
	rows, err := g.Query(`SELECT ?goal ?label WHERE { ?goal a Goal . ?goal bscPerspective ?p . ?p label ?label . }`)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]GoalInfo)
	for _, row := range rows {
		key, _ := row["goal"].(string)
		label, _ := row["label"].(string)
		props := g.GetEntityProperties(key)
		name, _ := props["label"].(string)
		if name == "" {
			name = key
		}
		out[label] = append(out[label], GoalInfo{Key: key, Name: name, Props: props})
	}
	return out, nil
}

// supportPair is one supportsObjective edge with its resolved context.
type supportPair struct {
	taskGroup  string
	objective  string
	goal       string
	importance string
	allocation string
}

func supportPairs(g *kg.Graph) ([]supportPair, error) {
	rows, err := g.Query(`SELECT ?tg ?obj WHERE { ?tg supportsObjective ?obj . }`)
	if err != nil {
		return nil, err
	}
	pairs := make([]supportPair, 0, len(rows))
	for _, row := range rows {
		tgKey, _ := row["tg"].(string)
		objKey, _ := row["obj"].(string)

		importance := "moderate"
		goalKey := ""
		if parents := g.Subjects("hasObjective", objKey); len(parents) > 0 {
			goalKey = parents[0]
			if v, ok := g.GetEntityProperties(goalKey)["strategicImportance"].(string); ok {
				importance = v
			}
		}
		allocation := "moderate"
		if v, ok := g.GetEntityProperties(tgKey)["resourceAllocation"].(string); ok {
			allocation = v
		}
		pairs = append(pairs, supportPair{
			taskGroup:  tgKey,
			objective:  objKey,
			goal:       goalKey,
			importance: importance,
			allocation: allocation,
		})
	}
	return pairs, nil
}

// SAI computes the Strategic Alignment Index: the mean of all non-zero
// alignment scores across every task-group relevance judgment in the graph.
// Returns 0 when no judgments exist.
func SAI(g *kg.Graph) (float64, error) {
	rows, err := g.Query(`SELECT ?tg WHERE { ?tg a TaskGroup . }`)
	if err != nil {
		return 0, err
	}
	var scores []float64
	for _, row := range rows {
		tgKey, _ := row["tg"].(string)
		for name, value := range g.GetEntityProperties(tgKey) {
			kind, _, field, ok := kg.ParseJudgmentProp(name)
			if !ok || kind != kg.JudgmentAlignment || field != "relevance" {
				continue
			}
			relevance, _ := value.(string)
			if score := AlignmentScore(relevance); score > 0 {
				scores = append(scores, score)
			}
		}
	}
	return mean(scores), nil
}

// CLDResult is the causal-linkage-density breakdown across perspective
// tier pairs.
type CLDResult struct {
	Score             float64            `json:"cld_score"`
	PairScores        map[string]float64 `json:"perspective_pair_scores"`
	ChainCompleteness map[string]bool    `json:"chain_completeness"`
	MissingChains     []string           `json:"missing_chains"`
}

// CLD computes causal linkage density per adjacent perspective pair and the
// completeness-penalized overall score. A tier with zero goals contributes
// density 0 and marks its pair incomplete; there is no division by zero.
func CLD(g *kg.Graph) (CLDResult, error) {
	byPerspective, err := GoalsByPerspective(g)
	if err != nil {
		return CLDResult{}, err
	}

	result := CLDResult{
		PairScores:        make(map[string]float64, len(BSCCausalPairs)),
		ChainCompleteness: make(map[string]bool, len(BSCCausalPairs)),
		MissingChains:     []string{},
	}
	var densities []float64

	for _, pair := range BSCCausalPairs {
		label := fmt.Sprintf("%s -> %s", pair[0], pair[1])
		sourceGoals := byPerspective[pair[0]]
		targetGoals := byPerspective[pair[1]]

		maxPossible := len(sourceGoals) * len(targetGoals)
		if maxPossible == 0 {
			result.ChainCompleteness[label] = false
			result.MissingChains = append(result.MissingChains, label)
			result.PairScores[label] = 0.0
			continue
		}

		var totalStrength float64
		linkCount := 0
		for _, src := range sourceGoals {
			for _, tgt := range targetGoals {
				strength, _ := src.Props[kg.JudgmentProp(kg.JudgmentCausalLink, tgt.Key, "strength")].(string)
				if w, ok := CausalWeight(strength); ok {
					totalStrength += w
					linkCount++
				}
			}
		}

		density := totalStrength / float64(maxPossible)
		result.PairScores[label] = round(density, 4)
		result.ChainCompleteness[label] = linkCount > 0
		if linkCount == 0 {
			result.MissingChains = append(result.MissingChains, label)
		}
		densities = append(densities, density)
	}

	if len(densities) > 0 {
		complete := 0
		for _, ok := range result.ChainCompleteness {
			if ok {
				complete++
			}
		}
		factor := float64(complete) / float64(len(result.ChainCompleteness))
		result.Score = round(mean(densities)*factor, 4)
	}
	return result, nil
}

// Misalignment flags a supportsObjective pair whose resource allocation
// contradicts its strategic importance.
type Misalignment struct {
	ObjectiveID string `json:"objective_id"`
	TaskGroupID string `json:"task_group_id"`
	Importance  string `json:"importance"`
	Allocation  string `json:"allocation"`
	Type        string `json:"type"`
}

// DetectMisalignments flags under-resourced pairs (importance >= 75 with
// allocation <= 40) and over-resourced pairs (importance <= 25 with heavy
// allocation).
func DetectMisalignments(g *kg.Graph) ([]Misalignment, error) {
	pairs, err := supportPairs(g)
	if err != nil {
		return nil, err
	}
	out := []Misalignment{}
	for _, p := range pairs {
		imp := ImportanceScore(p.importance)
		alloc := AllocationScore(p.allocation)
		switch {
		case imp >= 75 && alloc <= 40:
			out = append(out, Misalignment{
				ObjectiveID: p.objective,
				TaskGroupID: p.taskGroup,
				Importance:  p.importance,
				Allocation:  p.allocation,
				Type:        "under-resourced",
			})
		case imp <= 25 && alloc >= 100:
			out = append(out, Misalignment{
				ObjectiveID: p.objective,
				TaskGroupID: p.taskGroup,
				Importance:  p.importance,
				Allocation:  p.allocation,
				Type:        "over-resourced",
			})
		}
	}
	return out, nil
}

// BSCStructuralGaps reports Financial and Customer goals with no causal
// chain support from any Internal Process goal.
func BSCStructuralGaps(g *kg.Graph) ([]string, error) {
	byPerspective, err := GoalsByPerspective(g)
	if err != nil {
		return nil, err
	}
	ipGoals := byPerspective["Internal Process"]
	gaps := []string{}

	for _, perspective := range []string{"Financial", "Customer"} {
		for _, goal := range byPerspective[perspective] {
			supported := false
			for _, ip := range ipGoals {
				strength, _ := ip.Props[kg.JudgmentProp(kg.JudgmentCausalLink, goal.Key, "strength")].(string)
				if _, ok := CausalWeight(strength); ok {
					supported = true
					break
				}
			}
			if !supported {
				gaps = append(gaps, fmt.Sprintf(
					"%s objective '%s' (%s) has no causal chain support from Internal Process objectives",
					perspective, goal.Name, goal.Key,
				))
			}
		}
	}
	return gaps, nil
}

// KIPGA quadrant labels.
const (
	QuadrantNeedsAttention = "needs-attention"
	QuadrantOnTrack        = "on-track"
	QuadrantLowPriority    = "low-priority"
	QuadrantOverInvested   = "over-invested"
)

// KIPGAPoint is one objective plotted on the importance/performance plane.
type KIPGAPoint struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	GoalID      string  `json:"goal_id"`
	GoalName    string  `json:"goal_name"`
	Importance  float64 `json:"importance"`
	Performance float64 `json:"performance"`
	Quadrant    string  `json:"quadrant"`
}

// KIPGAResult is the full importance-performance gap analysis.
type KIPGAResult struct {
	Quadrants map[string][]string `json:"quadrants"`
	PlotData  []KIPGAPoint        `json:"plot_data"`
}

// KIPGA classifies every objective into a quadrant: importance is inherited
// from the parent goal, performance is the mean alignment score for the
// objective, both normalized to 0-1 with thresholds at 0.5.
func KIPGA(g *kg.Graph) (KIPGAResult, error) {
	objRows, err := g.Query(`SELECT ?obj ?goal WHERE { ?obj a Objective . ?goal hasObjective ?obj . }`)
	if err != nil {
		return KIPGAResult{}, err
	}
	pairs, err := supportPairs(g)
	if err != nil {
		return KIPGAResult{}, err
	}

	// Per-objective alignment scores from the judgment properties written
	// by the alignment layer.
	perfScores := make(map[string][]float64)
	for _, p := range pairs {
		relevanceProp := kg.JudgmentProp(kg.JudgmentAlignment, p.objective, "relevance")
		relevance, _ := g.GetEntityProperties(p.taskGroup)[relevanceProp].(string)
		if relevance == "" {
			relevance = "none"
		}
		perfScores[p.objective] = append(perfScores[p.objective], AlignmentScore(relevance))
	}

	result := KIPGAResult{
		Quadrants: map[string][]string{
			QuadrantNeedsAttention: {},
			QuadrantOnTrack:        {},
			QuadrantLowPriority:    {},
			QuadrantOverInvested:   {},
		},
		PlotData: []KIPGAPoint{},
	}

	for _, row := range objRows {
		objKey, _ := row["obj"].(string)
		goalKey, _ := row["goal"].(string)
		objProps := g.GetEntityProperties(objKey)
		goalProps := g.GetEntityProperties(goalKey)

		importanceLabel, _ := goalProps["strategicImportance"].(string)
		if importanceLabel == "" {
			importanceLabel = "moderate"
		}
		importance := ImportanceScore(importanceLabel) / 100.0
		performance := mean(perfScores[objKey]) / 100.0

		var quadrant string
		switch {
		case importance >= 0.5 && performance < 0.5:
			quadrant = QuadrantNeedsAttention
		case importance >= 0.5:
			quadrant = QuadrantOnTrack
		case performance < 0.5:
			quadrant = QuadrantLowPriority
		default:
			quadrant = QuadrantOverInvested
		}

		objName, _ := objProps["label"].(string)
		if objName == "" {
			objName = objKey
		}
		goalName, _ := goalProps["label"].(string)
		if goalName == "" {
			goalName = goalKey
		}

		result.Quadrants[quadrant] = append(result.Quadrants[quadrant], objKey)
		result.PlotData = append(result.PlotData, KIPGAPoint{
			ID:          objKey,
			Name:        objName,
			GoalID:      goalKey,
			GoalName:    goalName,
			Importance:  round(importance, 3),
			Performance: round(performance, 3),
			Quadrant:    quadrant,
		})
	}
	return result, nil
}
