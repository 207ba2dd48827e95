// Package dataset provides the annotation domain model (projects, dataset
// items, markup, socials) and the repositories that load it.
package dataset

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors for dataset operations.
var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrDatasetItemNotFound = errors.New("dataset item not found")
)

// Classification distinguishes entity spans from relation edges.
type Classification string

const (
	ClassificationEntity   Classification = "entity"
	ClassificationRelation Classification = "relation"
)

// Annotator states on a project.
const (
	AnnotatorStateAccepted = "accepted"
	AnnotatorStateInvited  = "invited"
	AnnotatorStateDeclined = "declined"
)

// Tasks records which annotation tasks a project runs.
type Tasks struct {
	Entity   bool `json:"entity"`
	Relation bool `json:"relation"`
}

// Settings holds per-project annotation settings.
type Settings struct {
	// AnnotatorsPerItem is the minimum number of annotators that must save an
	// item before it counts as complete. It doubles as the majority threshold.
	AnnotatorsPerItem int `json:"annotators_per_item"`
}

// Annotator is a user's participation in a project.
type Annotator struct {
	Username string `json:"username"`
	State    string `json:"state"`
}

// Project is an annotation project.
type Project struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	DatasetID  string      `json:"dataset_id"`
	Tasks      Tasks       `json:"tasks"`
	Settings   Settings    `json:"settings"`
	Annotators []Annotator `json:"annotators"`
}

// AcceptedAnnotators returns the usernames of annotators who accepted the
// project invitation, in project order.
func (p *Project) AcceptedAnnotators() []string {
	out := make([]string, 0, len(p.Annotators))
	for _, a := range p.Annotators {
		if a.State == AnnotatorStateAccepted {
			out = append(out, a.Username)
		}
	}
	return out
}

// MajorityThreshold returns the minimum annotator count for consensus.
// Values below one are treated as one.
func (p *Project) MajorityThreshold() int {
	if p.Settings.AnnotatorsPerItem < 1 {
		return 1
	}
	return p.Settings.AnnotatorsPerItem
}

// Flag is a state applied to a dataset item by an annotator.
type Flag struct {
	State     FlagState `json:"state"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveState records that an annotator saved a dataset item.
type SaveState struct {
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Agreement holds precomputed agreement scores. A nil score means the value
// could not be computed, which is distinct from zero agreement.
type Agreement struct {
	Overall  *float64 `json:"overall"`
	Entity   *float64 `json:"entity"`
	Relation *float64 `json:"relation"`
}

// IAA holds the precomputed inter-annotator agreement for a dataset item.
type IAA struct {
	Agreement         Agreement       `json:"agreement"`
	PairwiseAgreement json.RawMessage `json:"pairwise_agreement,omitempty"`
}

// DatasetItem is an annotation target.
type DatasetItem struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Text        string          `json:"text"`
	Tokens      []string        `json:"tokens"`
	Original    string          `json:"original"`
	ExtraFields json.RawMessage `json:"extra_fields,omitempty"`
	ExternalID  *string         `json:"external_id,omitempty"`
	Flags       []Flag          `json:"flags"`
	SaveStates  []SaveState     `json:"save_states"`
	IAA         IAA             `json:"iaa"`
}

// SaveCount returns the number of save states on the item.
func (d *DatasetItem) SaveCount() int {
	return len(d.SaveStates)
}

// Markup is one annotation made by one annotator on one dataset item.
// Start/End are set for entities; SourceID/TargetID for relations.
type Markup struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	DatasetItemID  string         `json:"dataset_item_id"`
	Classification Classification `json:"classification"`
	OntologyItemID string         `json:"ontology_item_id"`
	CreatedBy      string         `json:"created_by"`
	Suggested      bool           `json:"suggested"`

	Start *int `json:"start,omitempty"`
	End   *int `json:"end,omitempty"`

	SourceID *string `json:"source_id,omitempty"`
	TargetID *string `json:"target_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEntity reports whether the markup is an entity span.
func (m *Markup) IsEntity() bool {
	return m.Classification == ClassificationEntity
}

// IsRelation reports whether the markup is a relation edge.
func (m *Markup) IsRelation() bool {
	return m.Classification == ClassificationRelation
}

// Social is a comment left on a dataset item.
type Social struct {
	ID            string    `json:"-"`
	DatasetItemID string    `json:"-"`
	Text          string    `json:"text"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
