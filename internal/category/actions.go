package category

import (
	"regexp"
	"slices"
	"strings"
)

// actionDomains maps technical domains to the keywords that place an action
// item under them. Order matters: the first domain with a matching keyword wins.
var actionDomains = []struct {
	name     string
	keywords []string
}{
	{"Engineering", []string{"engineer", "structural", "design", "technical", "civil", "electrical"}},
	{"Schedule", []string{"schedule", "timeline", "deadline", "meeting", "date", "week", "month"}},
	{"Budget & Pricing", []string{"budget", "cost", "pricing", "dollar", "$", "price", "payment"}},
	{"Contracting", []string{"contract", "vendor", "supplier", "agreement", "procurement"}},
	{"Environmental", []string{"environmental", "biological", "cultural", "permitting", "epa"}},
	{"Interconnection", []string{"interconnection", "utility", "grid", "substation"}},
	{"Land", []string{"land", "property", "parcel", "lease", "easement"}},
	{"Geotech", []string{"geotech", "soil", "foundation", "boring"}},
}

// ActionDomains lists the action-item domains in display order, ending with General.
func ActionDomains() []string {
	out := make([]string, 0, len(actionDomains)+1)
	for _, d := range actionDomains {
		out = append(out, d.name)
	}
	return append(out, General)
}

// ActionDomain returns the technical domain an action item belongs to.
func ActionDomain(text string) string {
	lower := strings.ToLower(text)
	for _, d := range actionDomains {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				return d.name
			}
		}
	}
	return General
}

var assigneePattern = regexp.MustCompile(`(AES|Pre|JC|[A-Z][a-z]+ [A-Z][a-z]+)\s+(?:to|needs to|must)`)

// Assignees extracts the owners named in an action item, deduplicated and sorted.
func Assignees(text string) []string {
	var out []string
	for _, m := range assigneePattern.FindAllStringSubmatch(text, -1) {
		if !slices.Contains(out, m[1]) {
			out = append(out, m[1])
		}
	}
	slices.Sort(out)
	return out
}
