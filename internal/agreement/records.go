package agreement

import "github.com/onnwee/quickgraph/internal/dataset"

// RecordsFromMarkup flattens markup into calculator input. Entity labels
// are ontology item IDs. Relations are resolved through the entity markup
// of the same dataset item; relations whose endpoints cannot be resolved
// are returned separately and do not take part in agreement.
func RecordsFromMarkup(markup []dataset.Markup) ([]EntityRecord, []RelationRecord, []dataset.Markup) {
	spans := make(map[string]Span)
	docOf := make(map[string]string)
	var entities []EntityRecord
	for _, m := range markup {
		if !m.IsEntity() || m.Start == nil || m.End == nil {
			continue
		}
		s := Span{Start: *m.Start, End: *m.End, Label: m.OntologyItemID}
		spans[m.ID] = s
		docOf[m.ID] = m.DatasetItemID
		entities = append(entities, EntityRecord{DocID: m.DatasetItemID, Username: m.CreatedBy, Span: s})
	}

	var (
		relations  []RelationRecord
		unresolved []dataset.Markup
	)
	for _, m := range markup {
		if !m.IsRelation() {
			continue
		}
		source, okS := resolveEndpoint(m.SourceID, m.DatasetItemID, spans, docOf)
		target, okT := resolveEndpoint(m.TargetID, m.DatasetItemID, spans, docOf)
		if !okS || !okT {
			unresolved = append(unresolved, m)
			continue
		}
		relations = append(relations, RelationRecord{
			DocID:    m.DatasetItemID,
			Username: m.CreatedBy,
			Label:    m.OntologyItemID,
			Source:   source,
			Target:   target,
		})
	}
	return entities, relations, unresolved
}

// resolveEndpoint enforces that relation endpoints live on the same item.
func resolveEndpoint(id *string, doc string, spans map[string]Span, docOf map[string]string) (Span, bool) {
	if id == nil {
		return Span{}, false
	}
	s, ok := spans[*id]
	if !ok || docOf[*id] != doc {
		return Span{}, false
	}
	return s, true
}
