// Package category holds the fixed set of labels notes can be filed under.
package category

import "slices"

const (
	// General is the catch-all label and the fallback for unknown categories.
	General = "General"
	// ActionItems is reserved for discrete tasks with a named owner.
	ActionItems = "Action Items"
)

var categories = []string{
	General,
	"Development/Reliance Material",
	"GIS updates",
	"Interconnection",
	"Land",
	"Facility location",
	"Environmental/Biological Cultural",
	"Schedule",
	"Breakers",
	"MPT",
	"Modules",
	"Owner's Engineer",
	"30% Package",
	"60% Package",
	"Geotech investigation",
	"Structural",
	"Civil",
	"Electrical",
	"Substation",
	"Construction Milestones",
	"Pricing",
	"Risk Register",
	"Permanent Utilities",
	"Contracting",
	"LNTP",
	"BOP-EPC",
	"PWC",
	ActionItems,
}

var index = func() map[string]struct{} {
	m := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		m[c] = struct{}{}
	}
	return m
}()

// List returns the categories in display order. The slice is a copy.
func List() []string {
	return slices.Clone(categories)
}

// IsValid reports whether label is a registered category. Matching is exact.
func IsValid(label string) bool {
	_, ok := index[label]
	return ok
}
