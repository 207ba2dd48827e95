// Package ontology provides the project label taxonomy and an index that
// resolves label identifiers to display metadata.
package ontology

import (
	"errors"
	"strings"
)

// FullnameSeparator joins the names along a hierarchy path.
const FullnameSeparator = "/"

// ErrDuplicateItem is returned when two ontology items share an ID.
var ErrDuplicateItem = errors.New("duplicate ontology item id")

// Item is a taxonomy label. Children are only populated on hierarchical
// input; flattened items carry their parent ID instead.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Fullname string  `json:"fullname"`
	Color    string  `json:"color"`
	ParentID *string `json:"parent_id,omitempty"`
	Children []Item  `json:"children,omitempty"`
}

// Metadata is the display information attached to a resolved label.
type Metadata struct {
	Name     string `json:"name"`
	Fullname string `json:"fullname"`
	Color    string `json:"color"`
}

// Flatten walks a hierarchical ontology depth first and returns every item
// with its Fullname set to the path of names from the root and its
// Children cleared. A Fullname already present on the input is kept.
func Flatten(items []Item) []Item {
	var out []Item
	var walk func(nodes []Item, path []string, parent *string)
	walk = func(nodes []Item, path []string, parent *string) {
		for _, n := range nodes {
			p := append(append([]string(nil), path...), n.Name)
			flat := n
			flat.Children = nil
			if flat.Fullname == "" {
				flat.Fullname = strings.Join(p, FullnameSeparator)
			}
			if parent != nil && flat.ParentID == nil {
				pid := *parent
				flat.ParentID = &pid
			}
			out = append(out, flat)
			id := n.ID
			walk(n.Children, p, &id)
		}
	}
	walk(items, nil, nil)
	return out
}
