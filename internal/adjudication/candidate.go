package adjudication

import (
	"encoding/json"
	"time"

	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/ontology"
)

// ByAnnotator maps a username to that annotator's records.
type ByAnnotator[T any] map[string][]T

// For returns the records of one annotator. Absent annotators yield an
// empty slice; the map is never modified.
func (g ByAnnotator[T]) For(username string) []T {
	if v, ok := g[username]; ok {
		return v
	}
	return []T{}
}

// groupByAnnotator partitions records by the username returned from by,
// keeping input order within each group.
func groupByAnnotator[T any](records []T, by func(T) string) ByAnnotator[T] {
	out := make(ByAnnotator[T])
	for _, r := range records {
		u := by(r)
		out[u] = append(out[u], r)
	}
	return out
}

// EntityMarkup is entity markup with its ontology label resolved.
type EntityMarkup struct {
	dataset.Markup
	OntologyItemName     string `json:"ontology_item_name"`
	OntologyItemFullname string `json:"ontology_item_fullname"`
	OntologyItemColor    string `json:"ontology_item_color"`
}

// RelationMarkup is the reduced view of a relation shown for review.
type RelationMarkup struct {
	SourceID       string `json:"source_id"`
	TargetID       string `json:"target_id"`
	CreatedBy      string `json:"created_by"`
	OntologyItemID string `json:"ontology_item_id"`
}

// Agreement is the precomputed score block. Relation is left out of the
// JSON for projects without the relation task.
type Agreement struct {
	Overall  *float64 `json:"overall"`
	Entity   *float64 `json:"entity"`
	Relation *float64 `json:"relation"`
}

type entityAgreement struct {
	Overall *float64 `json:"overall"`
	Entity  *float64 `json:"entity"`
}

// Candidate is one fully resolved dataset item for adjudication. The empty
// shape has a nil ID and empty collections.
type Candidate struct {
	ID                *string                     `json:"_id"`
	SaveStates        []dataset.SaveState         `json:"save_states"`
	Agreement         Agreement                   `json:"agreement"`
	PairwiseAgreement json.RawMessage             `json:"pairwise_agreement"`
	Tokens            []string                    `json:"tokens"`
	Original          *string                     `json:"original"`
	TotalItems        int                         `json:"total_items"`
	UpdatedAt         *time.Time                  `json:"updated_at"`
	Annotators        []string                    `json:"annotators"`
	Flags             []dataset.Flag              `json:"flags"`
	Social            []dataset.Social            `json:"social"`
	Entities          ByAnnotator[EntityMarkup]   `json:"entities"`
	Relations         ByAnnotator[RelationMarkup] `json:"relations"`
}

// MarshalJSON omits the relation keys when Relations is nil, which is the
// case for every candidate of a project without the relation task.
func (c Candidate) MarshalJSON() ([]byte, error) {
	type plain Candidate
	if c.Relations != nil {
		return json.Marshal(plain(c))
	}
	return json.Marshal(struct {
		plain
		Agreement entityAgreement `json:"agreement"`
		Relations *struct{}       `json:"relations,omitempty"`
	}{
		plain:     plain(c),
		Agreement: entityAgreement{Overall: c.Agreement.Overall, Entity: c.Agreement.Entity},
	})
}

// Empty returns the no-match shape for a project.
func Empty(p *dataset.Project, total int) Candidate {
	c := Candidate{
		SaveStates: []dataset.SaveState{},
		TotalItems: total,
		Annotators: []string{},
		Flags:      []dataset.Flag{},
		Social:     []dataset.Social{},
		Entities:   ByAnnotator[EntityMarkup]{},
	}
	if p.Tasks.Relation {
		c.Relations = ByAnnotator[RelationMarkup]{}
	}
	return c
}

// Assemble resolves a ranked item into a review candidate. markup must
// belong to the item; entity labels are resolved through idx.
func Assemble(p *dataset.Project, item *dataset.DatasetItem, markup []dataset.Markup, social []dataset.Social, idx *ontology.Index, total int) Candidate {
	var (
		entities  []EntityMarkup
		relations []RelationMarkup
		updatedAt *time.Time
	)
	for _, m := range markup {
		if updatedAt == nil || m.UpdatedAt.After(*updatedAt) {
			ts := m.UpdatedAt
			updatedAt = &ts
		}
		switch m.Classification {
		case dataset.ClassificationEntity:
			meta, _ := idx.Resolve(m.OntologyItemID)
			entities = append(entities, EntityMarkup{
				Markup:               m,
				OntologyItemName:     meta.Name,
				OntologyItemFullname: meta.Fullname,
				OntologyItemColor:    meta.Color,
			})
		case dataset.ClassificationRelation:
			relations = append(relations, RelationMarkup{
				SourceID:       deref(m.SourceID),
				TargetID:       deref(m.TargetID),
				CreatedBy:      m.CreatedBy,
				OntologyItemID: m.OntologyItemID,
			})
		}
	}

	id := item.ID
	original := item.Original
	c := Candidate{
		ID:         &id,
		SaveStates: nonNil(item.SaveStates),
		Agreement: Agreement{
			Overall: item.IAA.Agreement.Overall,
			Entity:  item.IAA.Agreement.Entity,
		},
		PairwiseAgreement: item.IAA.PairwiseAgreement,
		Tokens:            nonNil(item.Tokens),
		Original:          &original,
		TotalItems:        total,
		UpdatedAt:         updatedAt,
		Annotators:        p.AcceptedAnnotators(),
		Flags:             nonNil(item.Flags),
		Social:            nonNil(social),
		Entities:          groupByAnnotator(entities, func(e EntityMarkup) string { return e.CreatedBy }),
	}
	if p.Tasks.Relation {
		c.Agreement.Relation = item.IAA.Agreement.Relation
		c.Relations = groupByAnnotator(relations, func(r RelationMarkup) string { return r.CreatedBy })
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
