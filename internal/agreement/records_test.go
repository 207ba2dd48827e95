package agreement

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/quickgraph/internal/dataset"
)

func ip(v int) *int       { return &v }
func sp(v string) *string { return &v }

func TestRecordsFromMarkup(t *testing.T) {
	markup := []dataset.Markup{
		{ID: "e1", DatasetItemID: "d1", Classification: dataset.ClassificationEntity, OntologyItemID: "per", CreatedBy: "alice", Start: ip(0), End: ip(2)},
		{ID: "e2", DatasetItemID: "d1", Classification: dataset.ClassificationEntity, OntologyItemID: "org", CreatedBy: "alice", Start: ip(5), End: ip(6)},
		{ID: "e3", DatasetItemID: "d2", Classification: dataset.ClassificationEntity, OntologyItemID: "org", CreatedBy: "alice", Start: ip(0), End: ip(1)},
		{ID: "r1", DatasetItemID: "d1", Classification: dataset.ClassificationRelation, OntologyItemID: "works_at", CreatedBy: "alice", SourceID: sp("e1"), TargetID: sp("e2")},
		// endpoint on another dataset item
		{ID: "r2", DatasetItemID: "d1", Classification: dataset.ClassificationRelation, OntologyItemID: "works_at", CreatedBy: "alice", SourceID: sp("e1"), TargetID: sp("e3")},
		// endpoint missing entirely
		{ID: "r3", DatasetItemID: "d1", Classification: dataset.ClassificationRelation, OntologyItemID: "works_at", CreatedBy: "alice", SourceID: sp("gone"), TargetID: sp("e2")},
	}

	entities, relations, unresolved := RecordsFromMarkup(markup)

	wantEntities := []EntityRecord{
		{DocID: "d1", Username: "alice", Span: Span{0, 2, "per"}},
		{DocID: "d1", Username: "alice", Span: Span{5, 6, "org"}},
		{DocID: "d2", Username: "alice", Span: Span{0, 1, "org"}},
	}
	if diff := cmp.Diff(wantEntities, entities); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}

	wantRelations := []RelationRecord{
		{DocID: "d1", Username: "alice", Label: "works_at", Source: Span{0, 2, "per"}, Target: Span{5, 6, "org"}},
	}
	if diff := cmp.Diff(wantRelations, relations); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}

	if len(unresolved) != 2 || unresolved[0].ID != "r2" || unresolved[1].ID != "r3" {
		t.Errorf("unresolved = %+v, want r2, r3", unresolved)
	}
}
