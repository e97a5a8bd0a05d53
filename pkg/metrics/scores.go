// Package metrics derives numeric alignment scores from the categorical
// judgments stored in the entity graph. All mappings and formulas are
// deterministic; aggregate functions return documented defaults on empty
// input instead of failing.
package metrics

import "math"

var importanceScores = map[string]float64{
	"critical":   100,
	"high":       75,
	"moderate":   50,
	"low":        25,
	"negligible": 0,
}

var allocationScores = map[string]float64{
	"heavy":    100,
	"moderate": 70,
	"light":    40,
	"minimal":  10,
}

var relevanceScores = map[string]float64{
	"direct":   100,
	"partial":  60,
	"indirect": 30,
	"none":     0,
}

var gapSeverityScores = map[string]float64{
	"critical": 100,
	"high":     70,
	"moderate": 40,
	"low":      10,
}

var cascadeScores = map[string]float64{
	"strong":   100,
	"moderate": 60,
	"weak":     30,
	"none":     0,
}

var sufficiencyScores = map[string]float64{
	"fully_sufficient": 100,
	"adequate":         70,
	"insufficient":     40,
	"severely_lacking": 10,
}

var causalWeights = map[string]float64{
	"strong":   1.0,
	"moderate": 0.5,
	"weak":     0.2,
}

// ImportanceScore maps a strategic-importance label to 0-100. Unknown labels
// score as moderate.
func ImportanceScore(label string) float64 {
	if s, ok := importanceScores[label]; ok {
		return s
	}
	return 50
}

// AllocationScore maps a resource-allocation label to 0-100. Unknown labels
// score as moderate.
func AllocationScore(label string) float64 {
	if s, ok := allocationScores[label]; ok {
		return s
	}
	return 70
}

// AlignmentScore maps an alignment-relevance label to 0-100. Unknown labels
// score as none.
func AlignmentScore(relevance string) float64 {
	return relevanceScores[relevance]
}

// GapSeverityScore maps an execution-gap severity label to 0-100. Unknown
// labels score as moderate.
func GapSeverityScore(severity string) float64 {
	if s, ok := gapSeverityScores[severity]; ok {
		return s
	}
	return 40
}

// CascadeScore maps a goal-cascade label to 0-100. Unknown labels score 0.
func CascadeScore(label string) float64 {
	return cascadeScores[label]
}

// SufficiencyScore maps a resource-sufficiency label to 0-100. Unknown
// labels score as adequate.
func SufficiencyScore(label string) float64 {
	if s, ok := sufficiencyScores[label]; ok {
		return s
	}
	return 70
}

// CausalWeight maps a causal-link strength label to its 0-1 weight. A label
// of "none" or anything unrecognized carries no weight (ok=false).
func CausalWeight(label string) (float64, bool) {
	w, ok := causalWeights[label]
	return w, ok
}

// PriorityScore combines importance, allocation and risk exposure into a
// weighted 0-100 score (0.50, 0.30, 0.20). Pass DefaultRiskExposure when no
// risk figure is known.
func PriorityScore(importance, allocation string, riskExposure float64) float64 {
	return 0.50*ImportanceScore(importance) + 0.30*AllocationScore(allocation) + 0.20*riskExposure
}

// DefaultRiskExposure is used when a goal carries no risk figure.
const DefaultRiskExposure = 50.0

// KPIUtility scores a KPI's practical usefulness from three booleans,
// weighted 0.4 baseline, 0.4 measurable, 0.2 ownership.
func KPIUtility(hasBaseline, measurable, hasOwner bool) float64 {
	var u float64
	if hasBaseline {
		u += 0.4 * 100
	}
	if measurable {
		u += 0.4 * 100
	}
	if hasOwner {
		u += 0.2 * 100
	}
	return u
}

// Catchball combines cascade clarity and resource sufficiency into a single
// 0-100 consistency score (product, renormalized).
func Catchball(cascade, sufficiency string) float64 {
	return CascadeScore(cascade) * SufficiencyScore(sufficiency) / 100.0
}

// Coverage is the percentage of objectives with at least one supporting
// task group. Zero objectives yields 0, not an error.
func Coverage(totalObjectives, supportedObjectives int) float64 {
	if totalObjectives == 0 {
		return 0.0
	}
	return float64(supportedObjectives) / float64(totalObjectives) * 100.0
}

// GapSeverity buckets a numeric importance-allocation gap. Only positive
// gaps are ever recorded; the "low" bucket covers gap <= 0.
func GapSeverity(gap float64) string {
	switch {
	case gap > 40:
		return "critical"
	case gap > 20:
		return "high"
	case gap > 0:
		return "moderate"
	default:
		return "low"
	}
}

// OverallGapSeverity buckets the mean of per-gap severity weights.
func OverallGapSeverity(meanSeverityScore float64) string {
	switch {
	case meanSeverityScore >= 70:
		return "critical"
	case meanSeverityScore >= 40:
		return "high"
	case meanSeverityScore >= 20:
		return "moderate"
	default:
		return "low"
	}
}

func round(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
