package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/ontology"
)

func ip(v int) *int       { return &v }
func sp(v string) *string { return &v }

func entity(id, item, user, label string, start, end int) dataset.Markup {
	return dataset.Markup{
		ID: id, DatasetItemID: item, CreatedBy: user, OntologyItemID: label,
		Classification: dataset.ClassificationEntity, Start: ip(start), End: ip(end),
	}
}

func relation(id, item, user, label, source, target string) dataset.Markup {
	return dataset.Markup{
		ID: id, DatasetItemID: item, CreatedBy: user, OntologyItemID: label,
		Classification: dataset.ClassificationRelation, SourceID: sp(source), TargetID: sp(target),
	}
}

func testBuilder(t *testing.T) Builder {
	t.Helper()
	idx, err := ontology.NewIndex([]ontology.Item{
		{ID: "per", Name: "Person"},
		{ID: "org", Name: "Organisation"},
		{ID: "rel", Name: "Relation", Children: []ontology.Item{{ID: "works", Name: "works_at"}}},
	})
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	return Builder{Ontology: idx}
}

func TestBuild_IndexBasedEndpoints(t *testing.T) {
	items := []dataset.DatasetItem{{
		ID:          "x",
		Text:        "Ada at IBM",
		Tokens:      []string{"Ada", "at", "IBM"},
		Original:    "Ada at IBM",
		ExtraFields: json.RawMessage(`{"source":"wiki"}`),
		SaveStates:  []dataset.SaveState{{CreatedBy: "alice"}},
		Flags:       []dataset.Flag{{State: dataset.FlagQuality, CreatedBy: "alice"}, {State: dataset.FlagIssue, CreatedBy: "bob"}},
	}}
	markup := []dataset.Markup{
		entity("e1", "x", "alice", "per", 0, 0),
		entity("e2", "x", "alice", "org", 2, 2),
		relation("r1", "x", "alice", "works", "e1", "e2"),
	}

	res := testBuilder(t).Build(items, markup, []string{"alice"})

	want := []Record{{
		ID:          "x",
		Original:    "Ada at IBM",
		Text:        "Ada at IBM",
		Tokens:      []string{"Ada", "at", "IBM"},
		ExtraFields: map[string]any{"source": "wiki"},
		Entities: []Entity{
			{ID: "e1", Start: 0, End: 0, Label: "Person", Annotator: "alice"},
			{ID: "e2", Start: 2, End: 2, Label: "Organisation", Annotator: "alice"},
		},
		Relations: []Relation{
			{ID: "r1", SourceID: "e1", TargetID: "e2", Head: 0, Tail: 1, Label: "Relation/works_at", Annotator: "alice"},
		},
		Saved: true,
		Flags: []dataset.FlagState{dataset.FlagQuality},
	}}
	if diff := cmp.Diff(want, res.Records["alice"]); diff != "" {
		t.Errorf("alice records mismatch (-want +got):\n%s", diff)
	}
	if res.Stats != (Stats{Total: 1, Built: 1}) {
		t.Errorf("Stats = %+v", res.Stats)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", res.Errors)
	}
}

func TestBuild_EveryUserGetsEveryItem(t *testing.T) {
	items := []dataset.DatasetItem{{ID: "b"}, {ID: "a"}}
	markup := []dataset.Markup{entity("e1", "a", "alice", "per", 0, 1)}

	res := testBuilder(t).Build(items, markup, []string{"alice", "carol", "alice", ""})

	if len(res.Records) != 2 {
		t.Fatalf("Records has %d users, want 2 (deduplicated)", len(res.Records))
	}
	carol := res.Records["carol"]
	if len(carol) != 2 || carol[0].ID != "a" || carol[1].ID != "b" {
		t.Fatalf("carol records = %+v, want items a, b", carol)
	}
	if carol[0].Saved || len(carol[0].Entities) != 0 || carol[0].Flags == nil || carol[0].Relations == nil {
		t.Errorf("carol record = %+v, want unsaved with empty lists", carol[0])
	}
	if got := res.Records["alice"][0].Entities; len(got) != 1 {
		t.Errorf("alice entities on a = %+v", got)
	}
	if res.Stats.Total != 4 || res.Stats.Built != 4 {
		t.Errorf("Stats = %+v", res.Stats)
	}
}

func TestBuild_MissingEndpointIsRecordError(t *testing.T) {
	items := []dataset.DatasetItem{{ID: "x"}, {ID: "y"}}
	markup := []dataset.Markup{
		entity("e1", "x", "alice", "per", 0, 1),
		entity("b1", "x", "bob", "org", 2, 3),
		// alice links to bob's entity
		relation("r1", "x", "alice", "works", "e1", "b1"),
		entity("e2", "y", "alice", "per", 0, 1),
		relation("r2", "y", "alice", "works", "gone", "e2"),
	}

	res := testBuilder(t).Build(items, markup, []string{"alice", "bob"})

	wantErrs := []RecordError{
		{Username: "alice", DatasetItemID: "x", RelationID: "r1", Endpoint: EndpointTarget, MissingEntityID: "b1"},
		{Username: "alice", DatasetItemID: "y", RelationID: "r2", Endpoint: EndpointSource, MissingEntityID: "gone"},
	}
	if diff := cmp.Diff(wantErrs, res.Errors); diff != "" {
		t.Errorf("Errors mismatch (-want +got):\n%s", diff)
	}
	if len(res.Records["alice"]) != 0 {
		t.Errorf("alice records = %+v, want none", res.Records["alice"])
	}
	if len(res.Records["bob"]) != 2 {
		t.Errorf("bob records = %d, want 2", len(res.Records["bob"]))
	}
	if res.Stats != (Stats{Total: 4, Built: 2, Failed: 2}) {
		t.Errorf("Stats = %+v", res.Stats)
	}

	var err error = res.Errors[0]
	var recErr RecordError
	if !errors.As(err, &recErr) || !strings.Contains(err.Error(), "b1") {
		t.Errorf("RecordError does not behave as an error: %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"CBOR", FormatCBOR, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseFormat(%q) error = %v, want ErrUnsupportedFormat", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if FormatCBOR.ContentType() != "application/cbor" || FormatJSON.Extension() != ".json" {
		t.Error("unexpected content type or extension")
	}
}

func TestEncode(t *testing.T) {
	res := testBuilder(t).Build(
		[]dataset.DatasetItem{{ID: "x", Tokens: []string{"a"}}},
		[]dataset.Markup{entity("e1", "x", "alice", "per", 0, 0)},
		[]string{"alice"},
	)

	var js bytes.Buffer
	if err := Encode(&js, FormatJSON, res); err != nil {
		t.Fatalf("Encode(json) error = %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded.Records["alice"][0].Entities[0].Label != "Person" {
		t.Errorf("decoded JSON = %+v", decoded)
	}

	var cb bytes.Buffer
	if err := Encode(&cb, FormatCBOR, res); err != nil {
		t.Fatalf("Encode(cbor) error = %v", err)
	}
	var fromCBOR Result
	if err := cbor.Unmarshal(cb.Bytes(), &fromCBOR); err != nil {
		t.Fatalf("cbor.Unmarshal() error = %v", err)
	}
	if fromCBOR.Stats != res.Stats || fromCBOR.Records["alice"][0].Entities[0].ID != "e1" {
		t.Errorf("decoded CBOR = %+v", fromCBOR)
	}

	if err := Encode(&cb, Format("xml"), res); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode(xml) error = %v, want ErrUnsupportedFormat", err)
	}
}
