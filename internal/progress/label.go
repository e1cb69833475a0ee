package progress

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelCaser = cases.Title(language.English)

// Label renders a stage identifier for human display, e.g.
// "generating_timing" becomes "Generating Timing".
func Label(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return "Progress"
	}
	parts := strings.FieldsFunc(stage, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 0 {
		return labelCaser.String(strings.ToLower(stage))
	}
	for i, part := range parts {
		parts[i] = labelCaser.String(strings.ToLower(part))
	}
	return strings.Join(parts, " ")
}
