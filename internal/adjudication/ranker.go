package adjudication

import (
	"regexp"
	"sort"

	"github.com/onnwee/quickgraph/internal/dataset"
)

// Page is one ranked candidate. Item is nil when nothing matched or skip
// ran past the end; Total is the number of matching candidates either way.
type Page struct {
	Item  *dataset.DatasetItem
	Total int
}

// Ranker filters, sorts and paginates candidates with a fixed page size of
// one. It does not modify the items it is given.
type Ranker struct{}

// Rank returns the candidate at q.Skip in the filtered, sorted sequence.
func (Ranker) Rank(items []dataset.DatasetItem, q Query) (Page, error) {
	if err := q.Validate(); err != nil {
		return Page{}, err
	}
	search, err := CompileSearch(q.Filters.SearchTerm)
	if err != nil {
		return Page{}, err
	}

	threshold := float64(q.Filters.MinAgreement) / 100
	matched := make([]*dataset.DatasetItem, 0, len(items))
	for i := range items {
		if keep(&items[i], q.Filters, threshold, search) {
			matched = append(matched, &items[i])
		}
	}

	sortCandidates(matched, q.Sort)

	page := Page{Total: len(matched)}
	if q.Skip < len(matched) {
		item := *matched[q.Skip]
		page.Item = &item
	}
	return page, nil
}

func keep(d *dataset.DatasetItem, f Filters, threshold float64, search *regexp.Regexp) bool {
	overall := d.IAA.Agreement.Overall
	if overall == nil || *overall <= threshold {
		return false
	}
	if f.DatasetItemID != "" {
		return d.ID == f.DatasetItemID
	}
	if search != nil && !search.MatchString(d.Text) {
		return false
	}
	return f.Flags.Match(d)
}

// sortCandidates orders by overall agreement in the given direction with
// ID ascending as the tie break. SortNone orders by ID alone.
func sortCandidates(items []*dataset.DatasetItem, dir SortDirection) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if dir != SortNone {
			sa, sb := *a.IAA.Agreement.Overall, *b.IAA.Agreement.Overall
			if sa != sb {
				if dir == SortAscending {
					return sa < sb
				}
				return sa > sb
			}
		}
		return a.ID < b.ID
	})
}
