package metrics

import "github.com/strataline/alignd/pkg/kg"

// Report carries every composite metric for one analysis session. All
// fields are populated even on an empty graph, using documented defaults.
type Report struct {
	SAI                         float64        `json:"sai"`
	Coverage                    float64        `json:"coverage"`
	AvgPriority                 float64        `json:"avg_priority"`
	AvgKPIUtility               float64        `json:"avg_kpi_utility"`
	AvgCatchball                float64        `json:"avg_catchball"`
	EGI                         float64        `json:"egi"`
	CLD                         CLDResult      `json:"cld"`
	PrioritizationMisalignments []Misalignment `json:"prioritization_misalignments"`
	BSCStructuralGaps           []string       `json:"bsc_structural_gaps"`
	KIPGA                       KIPGAResult    `json:"kipga"`
}

// ComputeAll derives the full metric report from the graph.
//
// Empty-input defaults: sai 0, coverage 0, avg_priority 50,
// avg_kpi_utility 0, avg_catchball 70, egi 30.
func ComputeAll(g *kg.Graph) (Report, error) {
	var report Report

	sai, err := SAI(g)
	if err != nil {
		return report, err
	}
	report.SAI = round(sai, 2)

	objRows, err := g.Query(`SELECT ?obj WHERE { ?obj a Objective . }`)
	if err != nil {
		return report, err
	}
	pairs, err := supportPairs(g)
	if err != nil {
		return report, err
	}
	supported := make(map[string]struct{})
	for _, p := range pairs {
		supported[p.objective] = struct{}{}
	}
	report.Coverage = round(Coverage(len(objRows), len(supported)), 2)

	// Priority is aggregated per alignment pair, taking importance from the
	// objective itself when it carries one.
	var priorities []float64
	for _, p := range pairs {
		importance := "moderate"
		if v, ok := g.GetEntityProperties(p.objective)["strategicImportance"].(string); ok {
			importance = v
		}
		priorities = append(priorities, PriorityScore(importance, p.allocation, DefaultRiskExposure))
	}
	if len(priorities) == 0 {
		report.AvgPriority = 50.0
	} else {
		report.AvgPriority = round(mean(priorities), 2)
	}

	kpiRows, err := g.Query(`SELECT ?kpi WHERE { ?kpi a KPI . }`)
	if err != nil {
		return report, err
	}
	var utilities []float64
	for _, row := range kpiRows {
		kpiKey, _ := row["kpi"].(string)
		props := g.GetEntityProperties(kpiKey)
		baseline, _ := props["kpiBaselineExists"].(bool)
		measurable := true
		if v, ok := props["kpiMeasurable"].(bool); ok {
			measurable = v
		}
		_, hasOwner := props["ownedBy"]
		utilities = append(utilities, KPIUtility(baseline, measurable, hasOwner))
	}
	report.AvgKPIUtility = round(mean(utilities), 2)

	catchball, err := avgCatchball(g)
	if err != nil {
		return report, err
	}
	report.AvgCatchball = round(catchball, 2)

	// EGI: mean per-pair gap severity weight.
	var gapWeights []float64
	for _, p := range pairs {
		gap := ImportanceScore(p.importance) - AllocationScore(p.allocation)
		gapWeights = append(gapWeights, GapSeverityScore(GapSeverity(gap)))
	}
	if len(gapWeights) == 0 {
		report.EGI = 30.0
	} else {
		report.EGI = round(mean(gapWeights), 2)
	}

	if report.CLD, err = CLD(g); err != nil {
		return report, err
	}
	if report.PrioritizationMisalignments, err = DetectMisalignments(g); err != nil {
		return report, err
	}
	if report.BSCStructuralGaps, err = BSCStructuralGaps(g); err != nil {
		return report, err
	}
	if report.KIPGA, err = KIPGA(g); err != nil {
		return report, err
	}
	return report, nil
}

// avgCatchball pairs each cascade judgment with its matching sufficiency
// judgment on the same task group and averages the catchball scores.
// Defaults to 70 when no complete pair exists.
func avgCatchball(g *kg.Graph) (float64, error) {
	rows, err := g.Query(`SELECT ?tg WHERE { ?tg a TaskGroup . }`)
	if err != nil {
		return 0, err
	}
	var scores []float64
	for _, row := range rows {
		tgKey, _ := row["tg"].(string)
		props := g.GetEntityProperties(tgKey)
		for name, value := range props {
			kind, objKey, field, ok := kg.ParseJudgmentProp(name)
			if !ok || kind != kg.JudgmentCascade || field != "strength" {
				continue
			}
			sufficiency, ok := props[kg.JudgmentProp(kg.JudgmentSufficiency, objKey, "level")].(string)
			if !ok {
				continue
			}
			cascade, _ := value.(string)
			scores = append(scores, Catchball(cascade, sufficiency))
		}
	}
	if len(scores) == 0 {
		return 70.0, nil
	}
	return mean(scores), nil
}
