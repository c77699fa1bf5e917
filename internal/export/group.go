package export

import (
	"cmp"
	"slices"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
)

// Uncategorized labels notes without a category.
const Uncategorized = "Uncategorized"

// Group is a labelled run of notes.
type Group struct {
	Label string
	Notes []domain.Note
}

// ActionItem is an action-item note with the owners it names.
type ActionItem struct {
	domain.Note
	Assignees []string
}

// ActionGroup collects action items under one technical domain.
type ActionGroup struct {
	Domain string
	Items  []ActionItem
}

// ByDate groups notes by date, newest date first. Notes keep their input
// order within a group.
func ByDate(notes []domain.Note) []Group {
	groups := groupBy(notes, func(n domain.Note) string { return n.Date })
	slices.SortStableFunc(groups, func(a, b Group) int { return cmp.Compare(b.Label, a.Label) })
	return groups
}

// ByCategory groups notes by category name, sorted alphabetically.
func ByCategory(notes []domain.Note) []Group {
	groups := groupBy(notes, func(n domain.Note) string {
		if c := n.CategoryName(); c != "" {
			return c
		}
		return Uncategorized
	})
	slices.SortStableFunc(groups, func(a, b Group) int { return cmp.Compare(a.Label, b.Label) })
	return groups
}

// ActionItems files each note under the first technical domain whose
// keywords it mentions. Only non-empty domains are returned, in display order.
func ActionItems(notes []domain.Note) []ActionGroup {
	byDomain := make(map[string][]ActionItem)
	for _, n := range notes {
		text := n.DisplayText()
		d := category.ActionDomain(text)
		byDomain[d] = append(byDomain[d], ActionItem{Note: n, Assignees: category.Assignees(text)})
	}

	var out []ActionGroup
	for _, d := range category.ActionDomains() {
		if items := byDomain[d]; len(items) > 0 {
			out = append(out, ActionGroup{Domain: d, Items: items})
		}
	}
	return out
}

func groupBy(notes []domain.Note, key func(domain.Note) string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, n := range notes {
		k := key(n)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Label: k})
		}
		groups[i].Notes = append(groups[i].Notes, n)
	}
	return groups
}
