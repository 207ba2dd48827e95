// Package agreement computes inter-annotator agreement over flat entity and
// relation records, using exact-span equivalence.
package agreement

// Kind selects which annotations a computation runs over.
type Kind string

const (
	KindEntity   Kind = "entity"
	KindRelation Kind = "relation"
)

// Span is a labelled character or token range.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// EntityRecord is one entity annotation by one annotator on one document.
type EntityRecord struct {
	DocID    string `json:"doc_id"`
	Username string `json:"username"`
	Span
}

// RelationRecord is one relation annotation with its endpoints already
// resolved to spans.
type RelationRecord struct {
	DocID    string `json:"doc_id"`
	Username string `json:"username"`
	Label    string `json:"label"`
	Source   Span   `json:"source"`
	Target   Span   `json:"target"`
}

// key is the equivalence class of an annotation. Entity keys leave target
// and label zero.
type key struct {
	source Span
	target Span
	label  string
}

// SpanMatcher decides entity-span equivalence. Spans match when start, end
// and label are identical; overlapping spans earn no credit.
type SpanMatcher struct{}

// Match reports whether two spans are equivalent.
func (SpanMatcher) Match(a, b Span) bool {
	return a == b
}

func (SpanMatcher) key(s Span) key {
	return key{source: s}
}

// RelationMatcher decides relation equivalence on top of SpanMatcher.
type RelationMatcher struct {
	Spans SpanMatcher
}

// Match reports whether both endpoints match and the relation labels are
// identical.
func (m RelationMatcher) Match(a, b RelationRecord) bool {
	return a.Label == b.Label &&
		m.Spans.Match(a.Source, b.Source) &&
		m.Spans.Match(a.Target, b.Target)
}

func (RelationMatcher) key(r RelationRecord) key {
	return key{source: r.Source, target: r.Target, label: r.Label}
}
