package response

import (
	"regexp"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

var (
	internalLabelPattern = buildLabelPattern()
	spacePattern         = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunct     = regexp.MustCompile(`\s+([.,!?])`)
)

func buildLabelPattern() *regexp.Regexp {
	var labels []string
	for _, s := range statex.AllStates {
		labels = append(labels, regexp.QuoteMeta(string(s)))
	}
	for _, c := range contractx.AllCapabilities {
		labels = append(labels, regexp.QuoteMeta(string(c)))
	}
	for _, d := range tool.Definitions() {
		labels = append(labels, regexp.QuoteMeta(d.Info.Name))
	}
	// Longest first so BUILDING_ORDER wins over a shorter overlapping label.
	slices.SortFunc(labels, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`\[?\b(?:` + strings.Join(labels, "|") + `)\b\]?:?`)
}

// Sanitize removes internal state, capability and tool labels from customer-facing text.
// Matching is case sensitive, so ordinary words like "menu" survive.
func Sanitize(text string) string {
	out := internalLabelPattern.ReplaceAllString(text, "")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		line = spacePattern.ReplaceAllString(line, " ")
		line = spaceBeforePunct.ReplaceAllString(line, "$1")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
