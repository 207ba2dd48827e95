//go:build integration

// Integration tests for PostgresRepository.
//
// Run with: go test -tags=integration -v ./internal/dataset/...
//
// When DATABASE_URL is set the tests use that database, which must already
// have the migrations applied. Otherwise a disposable PostgreSQL container is
// started with testcontainers.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		schema, err := filepath.Abs("../../migrations/000001_create_annotation_schema.up.sql")
		if err != nil {
			t.Fatalf("failed to resolve schema path: %v", err)
		}
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("quickgraph"),
			postgres.WithUsername("quickgraph"),
			postgres.WithPassword("quickgraph"),
			postgres.WithInitScripts(schema),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Skipf("postgres container unavailable; skipping integration test: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(ctr); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})
		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}

func seedPostgres(t *testing.T, db *sql.DB) {
	t.Helper()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM projects WHERE id = 'it-project'`, nil},
		{`INSERT INTO projects (id, name, dataset_id, tasks, settings, annotators)
		  VALUES ('it-project', 'Integration', 'it-dataset',
		          '{"entity": true, "relation": true}', '{"annotators_per_item": 2}',
		          '[{"username": "alice", "state": "accepted"}, {"username": "bob", "state": "invited"}]')`, nil},
		{`INSERT INTO dataset_items (id, project_id, text, tokens, original, flags, save_states, iaa)
		  VALUES ('it-d1', 'it-project', 'Ada Lovelace wrote', '["Ada", "Lovelace", "wrote"]', 'Ada Lovelace wrote',
		          '[{"state": "issue", "created_by": "alice", "created_at": "2024-05-01T12:00:00Z"}]',
		          '[{"created_by": "alice", "created_at": "2024-05-01T12:00:00Z"}]',
		          '{"agreement": {"overall": 0.5, "entity": 0.5, "relation": null}}')`, nil},
		{`INSERT INTO markup (id, project_id, dataset_item_id, classification, ontology_item_id, created_by, start_offset, end_offset, created_at, updated_at)
		  VALUES ('it-m1', 'it-project', 'it-d1', 'entity', 'per', 'alice', 0, 1, $1, $1),
		         ('it-m2', 'it-project', 'it-d1', 'entity', 'per', 'bob', 0, 1, $1, $1)`, []any{ts}},
		{`INSERT INTO markup (id, project_id, dataset_item_id, classification, ontology_item_id, created_by, suggested, source_id, target_id, created_at, updated_at)
		  VALUES ('it-m3', 'it-project', 'it-d1', 'relation', 'rel', 'alice', true, 'it-m1', 'it-m1', $1, $1)`, []any{ts}},
		{`INSERT INTO ontologies (project_id, classification, items)
		  VALUES ('it-project', 'entity', '[{"id": "per", "name": "Person", "color": "#f00"}]')`, nil},
		{`INSERT INTO social (id, dataset_item_id, text, created_by, created_at, updated_at)
		  VALUES ('it-s1', 'it-d1', 'check this', 'bob', $1, $1)`, []any{ts}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
}

func TestPostgresRepository_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedPostgres(t, db)
	repo := NewPostgresRepository(db)
	ctx := context.Background()

	p, err := repo.GetProject(ctx, "it-project")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if !p.Tasks.Relation || p.Settings.AnnotatorsPerItem != 2 {
		t.Errorf("project = %+v, want relation task and 2 annotators per item", p)
	}
	if got := p.AcceptedAnnotators(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("AcceptedAnnotators() = %v, want [alice]", got)
	}

	if _, err := repo.GetProject(ctx, "missing"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("GetProject(missing) error = %v, want ErrProjectNotFound", err)
	}

	items, err := repo.ListDatasetItems(ctx, "it-project")
	if err != nil {
		t.Fatalf("ListDatasetItems() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("ListDatasetItems() len = %d, want 1", len(items))
	}
	d := items[0]
	if len(d.Tokens) != 3 || len(d.Flags) != 1 || !d.SavedBy("alice") {
		t.Errorf("dataset item = %+v", d)
	}
	if d.IAA.Agreement.Overall == nil || *d.IAA.Agreement.Overall != 0.5 {
		t.Errorf("overall agreement = %v, want 0.5", d.IAA.Agreement.Overall)
	}
	if d.IAA.Agreement.Relation != nil {
		t.Errorf("relation agreement = %v, want nil", *d.IAA.Agreement.Relation)
	}

	markup, err := repo.ListMarkup(ctx, MarkupQuery{
		ProjectID:        "it-project",
		DatasetItemIDs:   []string{"it-d1"},
		ExcludeSuggested: true,
	})
	if err != nil {
		t.Fatalf("ListMarkup() error = %v", err)
	}
	if len(markup) != 2 || markup[0].ID != "it-m1" || markup[0].Start == nil || *markup[0].End != 1 {
		t.Errorf("ListMarkup() = %+v, want it-m1, it-m2", markup)
	}

	rel, err := repo.ListMarkup(ctx, MarkupQuery{ProjectID: "it-project", Classification: ClassificationRelation, CreatedBy: []string{"alice"}})
	if err != nil {
		t.Fatalf("ListMarkup(relation) error = %v", err)
	}
	if len(rel) != 1 || rel[0].SourceID == nil || *rel[0].SourceID != "it-m1" {
		t.Errorf("ListMarkup(relation) = %+v", rel)
	}

	onto, err := repo.ListOntology(ctx, "it-project", ClassificationEntity)
	if err != nil || len(onto) != 1 || onto[0].Name != "Person" {
		t.Errorf("ListOntology() = %+v, %v", onto, err)
	}
	none, err := repo.ListOntology(ctx, "it-project", ClassificationRelation)
	if err != nil || len(none) != 0 {
		t.Errorf("ListOntology(relation) = %+v, %v; want empty", none, err)
	}

	social, err := repo.ListSocial(ctx, "it-d1")
	if err != nil || len(social) != 1 || social[0].Text != "check this" {
		t.Errorf("ListSocial() = %+v, %v", social, err)
	}
	projectSocial, err := repo.ListProjectSocial(ctx, "it-project")
	if err != nil || len(projectSocial) != 1 || projectSocial[0].DatasetItemID != "it-d1" {
		t.Errorf("ListProjectSocial() = %+v, %v", projectSocial, err)
	}
}
