// Package dashboard orchestrates retrieval and the agreement, adjudication
// and export engines behind the project dashboard.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/quickgraph/internal/adjudication"
	"github.com/onnwee/quickgraph/internal/agreement"
	"github.com/onnwee/quickgraph/internal/archive"
	"github.com/onnwee/quickgraph/internal/cache"
	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/export"
	"github.com/onnwee/quickgraph/internal/ontology"
	"github.com/onnwee/quickgraph/internal/tracing"
)

// ErrNoUsernames is returned when an export names no annotators.
var ErrNoUsernames = errors.New("at least one username is required")

// ServiceConfig configures the dashboard service.
type ServiceConfig struct {
	// Repository is the document store. Required.
	Repository dataset.Repository
	// Cache holds adjudication results. Defaults to cache.NopStore.
	Cache cache.Store
	// CacheTTL is the adjudication cache lifetime. Zero disables caching.
	CacheTTL time.Duration
	// Archive stores export snapshots. Optional.
	Archive archive.Sink
	// Logger for service activity.
	Logger *slog.Logger
	// Metrics for request tracking. Optional.
	Metrics *Metrics
	// AgreementMetrics for agreement computation tracking. Optional.
	AgreementMetrics *agreement.Metrics
}

// Service implements the dashboard operations. It keeps no per-request
// state and is safe for concurrent use.
type Service struct {
	config ServiceConfig
	ranker adjudication.Ranker
}

// NewService creates a dashboard service.
func NewService(config ServiceConfig) *Service {
	if config.Cache == nil {
		config.Cache = cache.NopStore{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{config: config}
}

// Progress is the share of items saved by enough annotators.
type Progress struct {
	Percentage float64 `json:"percentage"`
	Saved      int     `json:"saved"`
	Total      int     `json:"total"`
}

// AgreementMetrics are the project-wide agreement measures. Relation
// fields are nil for projects without the relation task.
type AgreementMetrics struct {
	OverallEntityAgreement   *float64 `json:"overall_entity_agreement"`
	OverallRelationAgreement *float64 `json:"overall_relation_agreement"`
	OverallAgreement         *float64 `json:"overall_agreement"`
	AgreedEntityCount        int      `json:"agreed_entity_count"`
	AgreedRelationCount      *int     `json:"agreed_relation_count"`

	EntitySummary   *agreement.Summary `json:"entity_summary,omitempty"`
	RelationSummary *agreement.Summary `json:"relation_summary,omitempty"`
	// ItemsConsidered is the number of items saved by enough annotators.
	ItemsConsidered int `json:"items_considered"`
}

// loadProjectItems fetches a project and its items concurrently.
func (s *Service) loadProjectItems(ctx context.Context, projectID string) (*dataset.Project, []dataset.DatasetItem, error) {
	var (
		project *dataset.Project
		items   []dataset.DatasetItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.config.Repository.GetProject(gctx, projectID)
		project = p
		return err
	})
	g.Go(func() error {
		d, err := s.config.Repository.ListDatasetItems(gctx, projectID)
		items = d
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return project, items, nil
}

// ComputeProgress returns the percentage of items saved by at least
// annotators_per_item annotators. An empty project is at 0%.
func (s *Service) ComputeProgress(ctx context.Context, projectID string) (p Progress, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "dashboard.compute_progress", tracing.ProjectID(projectID))
	defer func() { endSpan(err) }()
	defer s.observe("progress", time.Now(), &err)

	project, items, err := s.loadProjectItems(ctx, projectID)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(project, items), nil
}

func progressOf(project *dataset.Project, items []dataset.DatasetItem) Progress {
	p := Progress{Total: len(items)}
	p.Saved = len(savedItemIDs(project, items))
	if p.Total > 0 {
		p.Percentage = float64(p.Saved) / float64(p.Total) * 100
	}
	return p
}

// savedItemIDs returns the items whose save count meets the project's
// annotators_per_item.
func savedItemIDs(project *dataset.Project, items []dataset.DatasetItem) []string {
	ids := []string{}
	for i := range items {
		if items[i].SaveCount() >= project.Settings.AnnotatorsPerItem {
			ids = append(ids, items[i].ID)
		}
	}
	return ids
}

// ComputeAgreementMetrics computes agreement over items saved by enough
// annotators, using only non-suggested markup.
func (s *Service) ComputeAgreementMetrics(ctx context.Context, projectID string) (m AgreementMetrics, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "dashboard.compute_agreement", tracing.ProjectID(projectID))
	defer func() { endSpan(err) }()
	defer s.observe("agreement", time.Now(), &err)

	project, items, err := s.loadProjectItems(ctx, projectID)
	if err != nil {
		return AgreementMetrics{}, err
	}
	return s.agreementMetrics(ctx, project, items)
}

func (s *Service) agreementMetrics(ctx context.Context, project *dataset.Project, items []dataset.DatasetItem) (AgreementMetrics, error) {
	saved := savedItemIDs(project, items)

	var markup []dataset.Markup
	if len(saved) > 0 {
		var err error
		markup, err = s.config.Repository.ListMarkup(ctx, dataset.MarkupQuery{
			ProjectID:        project.ID,
			DatasetItemIDs:   saved,
			ExcludeSuggested: true,
		})
		if err != nil {
			return AgreementMetrics{}, fmt.Errorf("failed to load markup: %w", err)
		}
	}
	return s.computeAgreement(project, len(saved), markup), nil
}

// agreementMarkup narrows project markup to the non-suggested markup of the
// saved items.
func agreementMarkup(saved []string, markup []dataset.Markup) []dataset.Markup {
	keep := make(map[string]bool, len(saved))
	for _, id := range saved {
		keep[id] = true
	}
	out := []dataset.Markup{}
	for _, m := range markup {
		if keep[m.DatasetItemID] && !m.Suggested {
			out = append(out, m)
		}
	}
	return out
}

func (s *Service) computeAgreement(project *dataset.Project, considered int, markup []dataset.Markup) AgreementMetrics {
	m := AgreementMetrics{ItemsConsidered: considered}
	start := time.Now()
	entities, relations, unresolved := agreement.RecordsFromMarkup(markup)
	if !project.Tasks.Relation {
		relations = nil
	} else if len(unresolved) > 0 {
		s.config.Logger.Warn("relations with unresolved endpoints skipped",
			"project_id", project.ID,
			"count", len(unresolved))
		s.config.AgreementMetrics.AddUnresolved(len(unresolved))
	}

	calc := agreement.NewCalculator(entities, relations, project.Tasks.Relation)
	threshold := project.MajorityThreshold()

	m.OverallEntityAgreement = calc.OverallAgreement(agreement.KindEntity)
	m.OverallAgreement = calc.OverallAverageAgreement()
	m.AgreedEntityCount = calc.CountMajorityAgreements(agreement.KindEntity, threshold)
	m.EntitySummary = calc.Summarize(agreement.KindEntity)
	s.config.AgreementMetrics.ObserveScore(agreement.KindEntity, m.OverallEntityAgreement)

	if project.Tasks.Relation {
		m.OverallRelationAgreement = calc.OverallAgreement(agreement.KindRelation)
		n := calc.CountMajorityAgreements(agreement.KindRelation, threshold)
		m.AgreedRelationCount = &n
		m.RelationSummary = calc.Summarize(agreement.KindRelation)
		s.config.AgreementMetrics.ObserveScore(agreement.KindRelation, m.OverallRelationAgreement)
	}
	s.config.AgreementMetrics.ObserveOverall(m.OverallAgreement)
	s.config.AgreementMetrics.ObserveDuration(time.Since(start).Seconds())
	return m
}

// Overview returns progress and agreement as typed metric records, plus
// the plot data of the project.
func (s *Service) Overview(ctx context.Context, projectID string) (o Overview, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "dashboard.overview", tracing.ProjectID(projectID))
	defer func() { endSpan(err) }()
	defer s.observe("overview", time.Now(), &err)

	project, items, err := s.loadProjectItems(ctx, projectID)
	if err != nil {
		return Overview{}, err
	}

	var (
		markup []dataset.Markup
		social []dataset.Social
		idx    *ontology.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.config.Repository.ListMarkup(gctx, dataset.MarkupQuery{ProjectID: projectID})
		if err != nil {
			return fmt.Errorf("failed to load markup: %w", err)
		}
		markup = m
		return nil
	})
	g.Go(func() error {
		so, err := s.config.Repository.ListProjectSocial(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load social: %w", err)
		}
		social = so
		return nil
	})
	g.Go(func() error {
		x, err := s.ontologyIndex(gctx, projectID, projectClasses(project)...)
		idx = x
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	saved := savedItemIDs(project, items)
	metrics := s.computeAgreement(project, len(saved), agreementMarkup(saved, markup))
	o = buildOverview(project, progressOf(project, items), metrics)
	o.Plots = buildPlots(project, items, markup, social, idx)
	return o, nil
}

// RankAdjudicationCandidate returns the candidate at q.Skip, or the empty
// shape when nothing is there.
func (s *Service) RankAdjudicationCandidate(ctx context.Context, projectID string, q adjudication.Query) (c adjudication.Candidate, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "dashboard.rank_adjudication", tracing.ProjectID(projectID))
	defer func() { endSpan(err) }()
	defer s.observe("adjudication", time.Now(), &err)

	if err := q.Validate(); err != nil {
		return adjudication.Candidate{}, err
	}

	key := adjudicationCacheKey(projectID, q)
	if cached, ok := s.cachedCandidate(ctx, key); ok {
		return cached, nil
	}

	var (
		project *dataset.Project
		items   []dataset.DatasetItem
		idx     *ontology.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.config.Repository.GetProject(gctx, projectID)
		project = p
		return err
	})
	g.Go(func() error {
		d, err := s.candidateItems(gctx, projectID, q.Filters.DatasetItemID)
		items = d
		return err
	})
	g.Go(func() error {
		x, err := s.ontologyIndex(gctx, projectID, dataset.ClassificationEntity)
		idx = x
		return err
	})
	if err := g.Wait(); err != nil {
		return adjudication.Candidate{}, err
	}

	page, err := s.ranker.Rank(items, q)
	if err != nil {
		return adjudication.Candidate{}, err
	}
	if page.Item == nil {
		c = adjudication.Empty(project, page.Total)
		s.storeCandidate(ctx, key, c)
		return c, nil
	}

	var (
		markup []dataset.Markup
		social []dataset.Social
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.config.Repository.ListMarkup(gctx, dataset.MarkupQuery{
			ProjectID:      projectID,
			DatasetItemIDs: []string{page.Item.ID},
		})
		markup = m
		return err
	})
	g.Go(func() error {
		so, err := s.config.Repository.ListSocial(gctx, page.Item.ID)
		social = so
		return err
	})
	if err := g.Wait(); err != nil {
		return adjudication.Candidate{}, err
	}

	c = adjudication.Assemble(project, page.Item, markup, social, idx, page.Total)
	s.storeCandidate(ctx, key, c)
	return c, nil
}

// candidateItems lists the project items, or only the requested one when a
// dataset item id is given. A missing item yields no candidates.
func (s *Service) candidateItems(ctx context.Context, projectID, datasetItemID string) ([]dataset.DatasetItem, error) {
	if datasetItemID == "" {
		return s.config.Repository.ListDatasetItems(ctx, projectID)
	}
	d, err := s.config.Repository.GetDatasetItem(ctx, projectID, datasetItemID)
	if errors.Is(err, dataset.ErrDatasetItemNotFound) {
		return []dataset.DatasetItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []dataset.DatasetItem{*d}, nil
}

func adjudicationCacheKey(projectID string, q adjudication.Query) string {
	return "adjudication:" + projectID +
		":skip=" + strconv.Itoa(q.Skip) +
		":sort=" + strconv.Itoa(int(q.Sort)) +
		":min=" + strconv.Itoa(q.Filters.MinAgreement) +
		":flags=" + q.Filters.Flags.String() +
		":item=" + strconv.Quote(q.Filters.DatasetItemID) +
		":search=" + strconv.Quote(q.Filters.SearchTerm)
}

func (s *Service) cachedCandidate(ctx context.Context, key string) (adjudication.Candidate, bool) {
	if s.config.CacheTTL <= 0 {
		return adjudication.Candidate{}, false
	}
	raw, err := s.config.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.config.Logger.Warn("adjudication cache read failed", "error", err)
		}
		s.config.Metrics.IncCache("miss")
		return adjudication.Candidate{}, false
	}
	var c adjudication.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		s.config.Logger.Warn("adjudication cache entry unreadable", "error", err)
		s.config.Metrics.IncCache("miss")
		return adjudication.Candidate{}, false
	}
	s.config.Metrics.IncCache("hit")
	tracing.AddEvent(ctx, "cache.hit", attribute.String("cache.key", key))
	return c, true
}

func (s *Service) storeCandidate(ctx context.Context, key string, c adjudication.Candidate) {
	if s.config.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		s.config.Logger.Warn("adjudication cache encode failed", "error", err)
		return
	}
	if err := s.config.Cache.Set(ctx, key, raw, s.config.CacheTTL); err != nil {
		s.config.Logger.Warn("adjudication cache write failed", "error", err)
	}
}

// ontologyIndex builds an index over the ontologies of the given
// classifications.
func (s *Service) ontologyIndex(ctx context.Context, projectID string, classes ...dataset.Classification) (*ontology.Index, error) {
	var all []ontology.Item
	for _, c := range classes {
		items, err := s.config.Repository.ListOntology(ctx, projectID, c)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s ontology: %w", c, err)
		}
		all = append(all, items...)
	}
	return ontology.NewIndex(all)
}

// projectClasses returns the classifications annotated in a project.
func projectClasses(project *dataset.Project) []dataset.Classification {
	classes := []dataset.Classification{}
	if project.Tasks.Entity {
		classes = append(classes, dataset.ClassificationEntity)
	}
	if project.Tasks.Relation {
		classes = append(classes, dataset.ClassificationRelation)
	}
	return classes
}

// BuildExport reshapes markup into per-annotator records for every item
// of the project.
func (s *Service) BuildExport(ctx context.Context, projectID string, usernames []string) (res export.Result, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "dashboard.build_export", tracing.ProjectID(projectID))
	defer func() { endSpan(err) }()
	defer s.observe("export", time.Now(), &err)

	if len(usernames) == 0 {
		return export.Result{}, ErrNoUsernames
	}

	var (
		project *dataset.Project
		items   []dataset.DatasetItem
		markup  []dataset.Markup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.config.Repository.GetProject(gctx, projectID)
		project = p
		return err
	})
	g.Go(func() error {
		d, err := s.config.Repository.ListDatasetItems(gctx, projectID)
		items = d
		return err
	})
	g.Go(func() error {
		m, err := s.config.Repository.ListMarkup(gctx, dataset.MarkupQuery{
			ProjectID: projectID,
			CreatedBy: usernames,
		})
		markup = m
		return err
	})
	if err := g.Wait(); err != nil {
		return export.Result{}, err
	}

	idx, err := s.ontologyIndex(ctx, projectID, projectClasses(project)...)
	if err != nil {
		return export.Result{}, err
	}

	res = export.Builder{Ontology: idx}.Build(items, markup, usernames)
	for _, e := range res.Errors {
		s.config.Logger.Warn("export record skipped",
			"project_id", projectID,
			"username", e.Username,
			"dataset_item_id", e.DatasetItemID,
			"relation_id", e.RelationID,
			"endpoint", e.Endpoint,
			"missing_entity_id", e.MissingEntityID)
	}
	s.config.Metrics.AddExportRecords(res.Stats)
	s.config.Logger.Info("export built",
		"project_id", projectID,
		"usernames", len(usernames),
		"built", res.Stats.Built,
		"failed", res.Stats.Failed)
	return res, nil
}

// ArchiveExport builds an export and stores it in the archive sink.
func (s *Service) ArchiveExport(ctx context.Context, projectID string, usernames []string, format export.Format) (*archive.Object, export.Stats, error) {
	if s.config.Archive == nil {
		return nil, export.Stats{}, archive.ErrNotConfigured
	}
	res, err := s.BuildExport(ctx, projectID, usernames)
	if err != nil {
		return nil, export.Stats{}, err
	}

	var buf bytes.Buffer
	if err := export.Encode(&buf, format, res); err != nil {
		return nil, res.Stats, err
	}
	obj, err := s.config.Archive.Put(ctx, projectID, format.Extension(), format.ContentType(), buf.Bytes())
	if err != nil {
		return nil, res.Stats, err
	}
	tracing.AddEvent(ctx, "export.archived", attribute.String("archive.key", obj.Key))
	s.config.Logger.Info("export archived",
		"project_id", projectID,
		"key", obj.Key,
		"size_bytes", obj.SizeBytes)
	return obj, res.Stats, nil
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	status := "ok"
	if *errp != nil {
		status = "error"
		if errors.Is(*errp, dataset.ErrProjectNotFound) {
			status = "not_found"
		}
	}
	s.config.Metrics.ObserveOperation(op, status, time.Since(start).Seconds())
}
