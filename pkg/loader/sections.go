package loader

import (
	"strings"
)

// SectionBoundaries marks where the strategic and action plan sections
// begin inside a combined document, as zero-based line indexes. A
// negative index means the section was not detected.
type SectionBoundaries struct {
	StrategicStart int `json:"strategic_start"`
	ActionStart    int `json:"action_start"`
}

var strategicKeywords = []string{
	"strategic plan",
	"strategy",
	"vision",
	"mission",
	"objectives",
}

var actionKeywords = []string{
	"action plan",
	"implementation",
	"roadmap",
	"timeline",
	"tasks",
	"deliverables",
}

// DetectSectionBoundaries scans a combined plan document for the first
// lines that look like strategic and action section headings.
func DetectSectionBoundaries(text string) SectionBoundaries {
	boundaries := SectionBoundaries{StrategicStart: -1, ActionStart: -1}

	for i, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)

		if boundaries.StrategicStart < 0 {
			for _, kw := range strategicKeywords {
				if strings.Contains(lower, kw) {
					boundaries.StrategicStart = i
					break
				}
			}
		}
		if boundaries.ActionStart < 0 {
			for _, kw := range actionKeywords {
				if strings.Contains(lower, kw) {
					boundaries.ActionStart = i
					break
				}
			}
		}
		if boundaries.StrategicStart >= 0 && boundaries.ActionStart >= 0 {
			break
		}
	}

	return boundaries
}

// SplitCombined separates a combined document into strategic and action
// plan text. When the action section heading cannot be detected after
// the strategic one, the document is split in half.
func SplitCombined(text string) (string, string) {
	lines := strings.Split(text, "\n")
	boundaries := DetectSectionBoundaries(text)

	split := len(lines) / 2
	if boundaries.ActionStart > 0 && boundaries.ActionStart > boundaries.StrategicStart {
		split = boundaries.ActionStart
	}

	strategic := strings.TrimSpace(strings.Join(lines[:split], "\n"))
	action := strings.TrimSpace(strings.Join(lines[split:], "\n"))
	return strategic, action
}
