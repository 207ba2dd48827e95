package dataset

import (
	"context"
	"sort"
	"sync"

	"github.com/onnwee/quickgraph/internal/ontology"
)

// MarkupQuery selects markup for a project. Zero-valued fields do not
// filter.
type MarkupQuery struct {
	ProjectID        string
	DatasetItemIDs   []string
	CreatedBy        []string
	Classification   Classification
	ExcludeSuggested bool
}

func (q MarkupQuery) matches(m *Markup) bool {
	if m.ProjectID != q.ProjectID {
		return false
	}
	if q.Classification != "" && m.Classification != q.Classification {
		return false
	}
	if q.ExcludeSuggested && m.Suggested {
		return false
	}
	if len(q.DatasetItemIDs) > 0 && !contains(q.DatasetItemIDs, m.DatasetItemID) {
		return false
	}
	if len(q.CreatedBy) > 0 && !contains(q.CreatedBy, m.CreatedBy) {
		return false
	}
	return true
}

// Repository is the document store the dashboard reads from. All list
// methods return records ordered by ID; callers must not rely on any other
// ordering.
type Repository interface {
	// GetProject returns ErrProjectNotFound when the project is absent.
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListDatasetItems(ctx context.Context, projectID string) ([]DatasetItem, error)
	// GetDatasetItem returns ErrDatasetItemNotFound when the item is absent.
	GetDatasetItem(ctx context.Context, projectID, datasetItemID string) (*DatasetItem, error)
	ListMarkup(ctx context.Context, q MarkupQuery) ([]Markup, error)
	// ListOntology returns the hierarchical ontology for one classification.
	ListOntology(ctx context.Context, projectID string, c Classification) ([]ontology.Item, error)
	ListSocial(ctx context.Context, datasetItemID string) ([]Social, error)
	// ListProjectSocial returns the socials of every item of a project.
	ListProjectSocial(ctx context.Context, projectID string) ([]Social, error)
}

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]Project
	items    map[string][]DatasetItem // projectID -> items
	markup   []Markup
	ontology map[string]map[Classification][]ontology.Item
	social   map[string][]Social // datasetItemID -> socials
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects: make(map[string]Project),
		items:    make(map[string][]DatasetItem),
		ontology: make(map[string]map[Classification][]ontology.Item),
		social:   make(map[string][]Social),
	}
}

// AddProject stores or replaces a project.
func (r *InMemoryRepository) AddProject(p Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
}

// AddDatasetItem appends a dataset item to its project.
func (r *InMemoryRepository) AddDatasetItem(d DatasetItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ProjectID] = append(r.items[d.ProjectID], d)
}

// AddMarkup appends markup records.
func (r *InMemoryRepository) AddMarkup(ms ...Markup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markup = append(r.markup, ms...)
}

// SetOntology replaces the ontology of one classification for a project.
func (r *InMemoryRepository) SetOntology(projectID string, c Classification, items []ontology.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ontology[projectID] == nil {
		r.ontology[projectID] = make(map[Classification][]ontology.Item)
	}
	r.ontology[projectID][c] = items
}

// AddSocial appends a comment to a dataset item.
func (r *InMemoryRepository) AddSocial(s Social) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.social[s.DatasetItemID] = append(r.social[s.DatasetItemID], s)
}

// GetProject returns a copy of the stored project.
func (r *InMemoryRepository) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	p.Annotators = append([]Annotator(nil), p.Annotators...)
	return &p, nil
}

// ListDatasetItems returns the project's items ordered by ID.
func (r *InMemoryRepository) ListDatasetItems(ctx context.Context, projectID string) ([]DatasetItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Return a copy to avoid external modification
	result := make([]DatasetItem, len(r.items[projectID]))
	copy(result, r.items[projectID])
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetDatasetItem returns one item of the project.
func (r *InMemoryRepository) GetDatasetItem(ctx context.Context, projectID, datasetItemID string) (*DatasetItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.items[projectID] {
		if d.ID == datasetItemID {
			item := d
			return &item, nil
		}
	}
	return nil, ErrDatasetItemNotFound
}

// ListMarkup returns markup matching the query ordered by ID.
func (r *InMemoryRepository) ListMarkup(ctx context.Context, q MarkupQuery) ([]Markup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := []Markup{}
	for i := range r.markup {
		if q.matches(&r.markup[i]) {
			result = append(result, r.markup[i])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListOntology returns the stored ontology, or an empty slice.
func (r *InMemoryRepository) ListOntology(ctx context.Context, projectID string, c Classification) ([]ontology.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.ontology[projectID][c]
	result := make([]ontology.Item, len(items))
	copy(result, items)
	return result, nil
}

// ListSocial returns the comments on a dataset item ordered by ID.
func (r *InMemoryRepository) ListSocial(ctx context.Context, datasetItemID string) ([]Social, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Social, len(r.social[datasetItemID]))
	copy(result, r.social[datasetItemID])
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListProjectSocial returns socials across all items of the project ordered
// by ID.
func (r *InMemoryRepository) ListProjectSocial(ctx context.Context, projectID string) ([]Social, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := []Social{}
	for _, d := range r.items[projectID] {
		result = append(result, r.social[d.ID]...)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
