package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/onnwee/quickgraph/internal/ontology"
	"github.com/onnwee/quickgraph/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL. Nested
// documents (tokens, flags, save states, iaa, annotators) live in JSONB
// columns.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetProject retrieves a project by ID.
func (r *PostgresRepository) GetProject(ctx context.Context, projectID string) (p *Project, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "projects", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, name, dataset_id, tasks, settings, annotators
		FROM projects
		WHERE id = $1
	`

	var tasks, settings, annotators []byte
	p = &Project{}
	err = r.db.QueryRowContext(ctx, query, projectID).Scan(
		&p.ID, &p.Name, &p.DatasetID, &tasks, &settings, &annotators,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if err = unmarshalColumns(
		column{"tasks", tasks, &p.Tasks},
		column{"settings", settings, &p.Settings},
		column{"annotators", annotators, &p.Annotators},
	); err != nil {
		return nil, err
	}
	return p, nil
}

const datasetItemColumns = `
	id, project_id, text, tokens, original, extra_fields, external_id,
	flags, save_states, iaa
`

// ListDatasetItems retrieves every item of a project ordered by ID.
func (r *PostgresRepository) ListDatasetItems(ctx context.Context, projectID string) (items []DatasetItem, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "dataset_items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + datasetItemColumns + `
		FROM dataset_items
		WHERE project_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset items: %w", err)
	}
	defer rows.Close()

	items = []DatasetItem{}
	for rows.Next() {
		d, scanErr := scanDatasetItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, *d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset items: %w", err)
	}
	return items, nil
}

// GetDatasetItem retrieves one item of a project.
func (r *PostgresRepository) GetDatasetItem(ctx context.Context, projectID, datasetItemID string) (d *DatasetItem, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "dataset_items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + datasetItemColumns + `
		FROM dataset_items
		WHERE project_id = $1 AND id = $2
	`

	d, err = scanDatasetItem(r.db.QueryRowContext(ctx, query, projectID, datasetItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDatasetItemNotFound
	}
	return d, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDatasetItem(s scanner) (*DatasetItem, error) {
	var (
		d                                DatasetItem
		tokens, extra, flags, saves, iaa []byte
		externalID                       sql.NullString
	)
	err := s.Scan(
		&d.ID, &d.ProjectID, &d.Text, &tokens, &d.Original, &extra, &externalID,
		&flags, &saves, &iaa,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset item: %w", err)
	}
	if externalID.Valid {
		d.ExternalID = &externalID.String
	}
	if len(extra) > 0 {
		d.ExtraFields = json.RawMessage(extra)
	}
	if err := unmarshalColumns(
		column{"tokens", tokens, &d.Tokens},
		column{"flags", flags, &d.Flags},
		column{"save_states", saves, &d.SaveStates},
		column{"iaa", iaa, &d.IAA},
	); err != nil {
		return nil, err
	}
	if d.Flags == nil {
		d.Flags = []Flag{}
	}
	if d.SaveStates == nil {
		d.SaveStates = []SaveState{}
	}
	return &d, nil
}

// ListMarkup retrieves markup matching the query ordered by ID.
func (r *PostgresRepository) ListMarkup(ctx context.Context, q MarkupQuery) (out []Markup, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "markup", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	where := []string{"project_id = $1"}
	args := []any{q.ProjectID}
	if q.Classification != "" {
		args = append(args, string(q.Classification))
		where = append(where, fmt.Sprintf("classification = $%d", len(args)))
	}
	if q.ExcludeSuggested {
		where = append(where, "suggested = false")
	}
	if len(q.DatasetItemIDs) > 0 {
		args = append(args, pq.Array(q.DatasetItemIDs))
		where = append(where, fmt.Sprintf("dataset_item_id = ANY($%d)", len(args)))
	}
	if len(q.CreatedBy) > 0 {
		args = append(args, pq.Array(q.CreatedBy))
		where = append(where, fmt.Sprintf("created_by = ANY($%d)", len(args)))
	}

	query := `
		SELECT id, project_id, dataset_item_id, classification, ontology_item_id,
		       created_by, suggested, start_offset, end_offset, source_id, target_id,
		       created_at, updated_at
		FROM markup
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list markup: %w", err)
	}
	defer rows.Close()

	out = []Markup{}
	for rows.Next() {
		var (
			m                  Markup
			class              string
			start, end         sql.NullInt64
			sourceID, targetID sql.NullString
		)
		if err = rows.Scan(
			&m.ID, &m.ProjectID, &m.DatasetItemID, &class, &m.OntologyItemID,
			&m.CreatedBy, &m.Suggested, &start, &end, &sourceID, &targetID,
			&m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan markup: %w", err)
		}
		m.Classification = Classification(class)
		if start.Valid {
			v := int(start.Int64)
			m.Start = &v
		}
		if end.Valid {
			v := int(end.Int64)
			m.End = &v
		}
		if sourceID.Valid {
			m.SourceID = &sourceID.String
		}
		if targetID.Valid {
			m.TargetID = &targetID.String
		}
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating markup: %w", err)
	}
	return out, nil
}

// ListOntology retrieves the hierarchical ontology of one classification.
func (r *PostgresRepository) ListOntology(ctx context.Context, projectID string, c Classification) (items []ontology.Item, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "ontologies", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT items
		FROM ontologies
		WHERE project_id = $1 AND classification = $2
	`

	var raw []byte
	err = r.db.QueryRowContext(ctx, query, projectID, string(c)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []ontology.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ontology: %w", err)
	}
	items = []ontology.Item{}
	if err = json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode ontology: %w", err)
	}
	return items, nil
}

// ListSocial retrieves the comments on a dataset item ordered by ID.
func (r *PostgresRepository) ListSocial(ctx context.Context, datasetItemID string) (out []Social, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "social", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, dataset_item_id, text, created_by, created_at, updated_at
		FROM social
		WHERE dataset_item_id = $1
		ORDER BY id ASC
	`
	return r.querySocial(ctx, query, datasetItemID)
}

// ListProjectSocial retrieves socials for every item of a project.
func (r *PostgresRepository) ListProjectSocial(ctx context.Context, projectID string) (out []Social, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "social", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT s.id, s.dataset_item_id, s.text, s.created_by, s.created_at, s.updated_at
		FROM social s
		JOIN dataset_items d ON d.id = s.dataset_item_id
		WHERE d.project_id = $1
		ORDER BY s.id ASC
	`
	return r.querySocial(ctx, query, projectID)
}

func (r *PostgresRepository) querySocial(ctx context.Context, query, arg string) ([]Social, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list social: %w", err)
	}
	defer rows.Close()

	out := []Social{}
	for rows.Next() {
		var s Social
		if err = rows.Scan(&s.ID, &s.DatasetItemID, &s.Text, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan social: %w", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating social: %w", err)
	}
	return out, nil
}

type column struct {
	name string
	raw  []byte
	dest any
}

// unmarshalColumns decodes JSONB columns. NULL or empty columns leave the
// destination untouched.
func unmarshalColumns(cols ...column) error {
	for _, c := range cols {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dest); err != nil {
			return fmt.Errorf("failed to decode %s: %w", c.name, err)
		}
	}
	return nil
}
