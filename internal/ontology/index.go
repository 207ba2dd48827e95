package ontology

import "fmt"

// Index maps label IDs to display metadata. It is immutable after
// construction and safe for concurrent reads.
type Index struct {
	items map[string]Metadata
}

// NewIndex flattens the given ontology and indexes every item by ID.
// Returns ErrDuplicateItem if an ID appears twice.
func NewIndex(items []Item) (*Index, error) {
	flat := Flatten(items)
	idx := &Index{items: make(map[string]Metadata, len(flat))}
	for _, it := range flat {
		if _, exists := idx.items[it.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		idx.items[it.ID] = Metadata{
			Name:     it.Name,
			Fullname: it.Fullname,
			Color:    it.Color,
		}
	}
	return idx, nil
}

// Resolve returns the metadata for a label ID. The second value is false
// for unknown IDs, in which case the metadata is zero.
func (x *Index) Resolve(id string) (Metadata, bool) {
	if x == nil {
		return Metadata{}, false
	}
	m, ok := x.items[id]
	return m, ok
}

// Fullname returns the hierarchical name of a label, or "" if unknown.
func (x *Index) Fullname(id string) string {
	m, _ := x.Resolve(id)
	return m.Fullname
}

// Len returns the number of indexed labels.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.items)
}
