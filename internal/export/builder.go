// Package export reshapes per-annotator markup into per-user download
// records with index-based relation endpoints.
package export

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/ontology"
)

// Relation endpoints named in RecordError.
const (
	EndpointSource = "source"
	EndpointTarget = "target"
)

// Entity is an exported entity span.
type Entity struct {
	ID        string `json:"id"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Label     string `json:"label"`
	Annotator string `json:"annotator"`
}

// Relation is an exported relation. Head and Tail index into the owning
// record's Entities.
type Relation struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	Head      int    `json:"head"`
	Tail      int    `json:"tail"`
	Label     string `json:"label"`
	Annotator string `json:"annotator"`
}

// Record is one dataset item as seen by one annotator.
type Record struct {
	ID          string              `json:"id"`
	Original    string              `json:"original"`
	Text        string              `json:"text"`
	Tokens      []string            `json:"tokens"`
	ExtraFields any                 `json:"extra_fields"`
	ExternalID  *string             `json:"external_id"`
	Entities    []Entity            `json:"entities"`
	Relations   []Relation          `json:"relations"`
	Saved       bool                `json:"saved"`
	Flags       []dataset.FlagState `json:"flags"`
}

// RecordError reports a relation whose endpoint is not among the
// annotator's own entities on the same item. The record is not exported.
type RecordError struct {
	Username        string `json:"username"`
	DatasetItemID   string `json:"dataset_item_id"`
	RelationID      string `json:"relation_id"`
	Endpoint        string `json:"endpoint"`
	MissingEntityID string `json:"missing_entity_id"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("relation %s on item %s by %s: %s entity %q not found in annotator's entities",
		e.RelationID, e.DatasetItemID, e.Username, e.Endpoint, e.MissingEntityID)
}

// Stats summarizes an export so callers can tell "built N of M" apart
// from silent loss.
type Stats struct {
	Total  int `json:"total"`
	Built  int `json:"built"`
	Failed int `json:"failed"`
}

// Result is a complete export. Records has a key for every requested
// username, possibly with an empty list.
type Result struct {
	Records map[string][]Record `json:"records"`
	Errors  []RecordError       `json:"errors"`
	Stats   Stats               `json:"stats"`
}

// Builder assembles exports. Labels are resolved to ontology fullnames;
// unknown labels export as empty strings.
type Builder struct {
	Ontology *ontology.Index
}

type itemUser struct {
	item string
	user string
}

// Build exports every item for every username. Items are ordered by ID.
func (b Builder) Build(items []dataset.DatasetItem, markup []dataset.Markup, usernames []string) Result {
	users := dedupe(usernames)

	byItemUser := make(map[itemUser][]dataset.Markup)
	for _, m := range markup {
		k := itemUser{item: m.DatasetItemID, user: m.CreatedBy}
		byItemUser[k] = append(byItemUser[k], m)
	}

	sorted := make([]dataset.DatasetItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	res := Result{
		Records: make(map[string][]Record, len(users)),
		Errors:  []RecordError{},
	}
	for _, u := range users {
		res.Records[u] = []Record{}
	}

	for i := range sorted {
		item := &sorted[i]
		extra := decodeExtra(item.ExtraFields)
		for _, u := range users {
			res.Stats.Total++
			rec, recErr := b.record(item, u, byItemUser[itemUser{item: item.ID, user: u}], extra)
			if recErr != nil {
				res.Errors = append(res.Errors, *recErr)
				res.Stats.Failed++
				continue
			}
			res.Records[u] = append(res.Records[u], rec)
			res.Stats.Built++
		}
	}
	return res
}

func (b Builder) record(item *dataset.DatasetItem, username string, markup []dataset.Markup, extra any) (Record, *RecordError) {
	entities := []Entity{}
	position := make(map[string]int)
	for _, m := range markup {
		if !m.IsEntity() {
			continue
		}
		position[m.ID] = len(entities)
		entities = append(entities, Entity{
			ID:        m.ID,
			Start:     derefInt(m.Start),
			End:       derefInt(m.End),
			Label:     b.Ontology.Fullname(m.OntologyItemID),
			Annotator: username,
		})
	}

	relations := []Relation{}
	for _, m := range markup {
		if !m.IsRelation() {
			continue
		}
		source, target := derefString(m.SourceID), derefString(m.TargetID)
		head, ok := position[source]
		if !ok {
			return Record{}, missingEndpoint(item, username, m.ID, EndpointSource, source)
		}
		tail, ok := position[target]
		if !ok {
			return Record{}, missingEndpoint(item, username, m.ID, EndpointTarget, target)
		}
		relations = append(relations, Relation{
			ID:        m.ID,
			SourceID:  source,
			TargetID:  target,
			Head:      head,
			Tail:      tail,
			Label:     b.Ontology.Fullname(m.OntologyItemID),
			Annotator: username,
		})
	}

	tokens := item.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	return Record{
		ID:          item.ID,
		Original:    item.Original,
		Text:        item.Text,
		Tokens:      tokens,
		ExtraFields: extra,
		ExternalID:  item.ExternalID,
		Entities:    entities,
		Relations:   relations,
		Saved:       item.SavedBy(username),
		Flags:       item.FlagStatesBy(username),
	}, nil
}

func missingEndpoint(item *dataset.DatasetItem, username, relationID, endpoint, entityID string) *RecordError {
	return &RecordError{
		Username:        username,
		DatasetItemID:   item.ID,
		RelationID:      relationID,
		Endpoint:        endpoint,
		MissingEntityID: entityID,
	}
}

func decodeExtra(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func dedupe(usernames []string) []string {
	seen := make(map[string]bool, len(usernames))
	out := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
