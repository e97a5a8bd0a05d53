package kg

import "strings"

// Derived-judgment kinds stored as flattened entity properties. Each
// judgment about a (subject, target) pair becomes a property on the subject
// named "{kind}_{targetKey}_{field}".
const (
	JudgmentAlignment   = "alignment"
	JudgmentCascade     = "cascade"
	JudgmentSufficiency = "sufficiency"
	JudgmentCausalLink  = "causalLink"
)

// JudgmentProp builds the property name for a derived judgment against a
// target entity, e.g. JudgmentProp("alignment", "NorthStar_1", "relevance")
// yields "alignment_NorthStar_1_relevance".
func JudgmentProp(kind, entityKey, field string) string {
	return kind + "_" + entityKey + "_" + field
}

// ParseJudgmentProp splits a judgment property name back into its parts.
// The kind is the first underscore-separated segment and the field is the
// last; everything between is the entity key, which may itself contain
// underscores. Returns ok=false for names with fewer than three segments or
// an unknown kind.
func ParseJudgmentProp(name string) (kind, entityKey, field string, ok bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "", "", "", false
	}
	kind = parts[0]
	switch kind {
	case JudgmentAlignment, JudgmentCascade, JudgmentSufficiency, JudgmentCausalLink:
	default:
		return "", "", "", false
	}
	field = parts[len(parts)-1]
	entityKey = strings.Join(parts[1:len(parts)-1], "_")
	return kind, entityKey, field, true
}
