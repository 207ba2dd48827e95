// Package adjudication ranks dataset items by precomputed agreement for
// single-item human review and assembles the resolved review candidate.
package adjudication

import (
	"errors"
	"strings"

	"github.com/onnwee/quickgraph/internal/dataset"
)

// Validation errors.
var (
	ErrInvalidSkip         = errors.New("invalid skip: must be zero or greater")
	ErrInvalidSort         = errors.New("invalid sort: must be -1, 0 or 1")
	ErrInvalidMinAgreement = errors.New("invalid min_agreement: must be between 0 and 100")
)

// SortDirection orders candidates by overall agreement.
type SortDirection int

const (
	SortDescending SortDirection = -1
	SortNone       SortDirection = 0
	SortAscending  SortDirection = 1
)

// Valid reports whether d is a known direction.
func (d SortDirection) Valid() bool {
	return d >= SortDescending && d <= SortAscending
}

// Filters narrow the candidate set. MinAgreement is on a 0-100 scale.
type Filters struct {
	SearchTerm    string
	Flags         FlagFilter
	MinAgreement  int
	DatasetItemID string
}

// Query is one adjudication request.
type Query struct {
	Filters Filters
	Sort    SortDirection
	Skip    int
}

// Validate checks the numeric parameters.
func (q Query) Validate() error {
	if q.Skip < 0 {
		return ErrInvalidSkip
	}
	if !q.Sort.Valid() {
		return ErrInvalidSort
	}
	if q.Filters.MinAgreement < 0 || q.Filters.MinAgreement > 100 {
		return ErrInvalidMinAgreement
	}
	return nil
}

// FlagFilter is a sanitized flag selection. The zero value does not filter.
type FlagFilter struct {
	everything bool
	noFlags    bool
	states     map[dataset.FlagState]bool
}

// ParseFlags sanitizes a comma separated flag list. Unknown tokens are
// dropped. "everything" disables the filter and wins over "no_flags".
func ParseFlags(raw string) FlagFilter {
	var f FlagFilter
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == dataset.FlagFilterEverything:
			f.everything = true
		case tok == dataset.FlagFilterNoFlags:
			f.noFlags = true
		case dataset.ValidFlagState(tok):
			if f.states == nil {
				f.states = make(map[dataset.FlagState]bool)
			}
			f.states[dataset.FlagState(tok)] = true
		}
	}
	return f
}

// Active reports whether the filter excludes anything.
func (f FlagFilter) Active() bool {
	return !f.everything && (f.noFlags || len(f.states) > 0)
}

// String renders the filter in canonical form, suitable for cache keys.
func (f FlagFilter) String() string {
	switch {
	case !f.Active():
		return ""
	case f.noFlags:
		return dataset.FlagFilterNoFlags
	}
	out := make([]string, 0, len(f.states))
	for _, s := range []dataset.FlagState{
		dataset.FlagIssue, dataset.FlagUncertain, dataset.FlagQuality, dataset.FlagDiscussion,
	} {
		if f.states[s] {
			out = append(out, string(s))
		}
	}
	return strings.Join(out, ",")
}

// Match reports whether the item passes the flag filter.
func (f FlagFilter) Match(d *dataset.DatasetItem) bool {
	switch {
	case !f.Active():
		return true
	case f.noFlags:
		return len(d.Flags) == 0
	default:
		return d.HasAnyFlagState(f.states)
	}
}
