package dashboard

import (
	"fmt"
	"sort"

	"github.com/onnwee/quickgraph/internal/dataset"
)

// MetricKind identifies one overview metric.
type MetricKind string

const (
	MetricProjectProgress   MetricKind = "project_progress"
	MetricOverallAgreement  MetricKind = "overall_agreement"
	MetricEntityAgreement   MetricKind = "entity_agreement"
	MetricRelationAgreement MetricKind = "relation_agreement"
	MetricEntitiesCreated   MetricKind = "entities_created"
	MetricTriplesCreated    MetricKind = "triples_created"
)

// Metric is one display record of the overview. Value is the formatted
// display string and is nil when the underlying score is undefined.
type Metric struct {
	Index int        `json:"index"`
	Kind  MetricKind `json:"kind"`
	Name  string     `json:"name"`
	Title string     `json:"title"`
	Value *string    `json:"value"`
	Raw   *float64   `json:"raw"`
}

// Overview is the ordered set of project metrics.
type Overview struct {
	ProjectID string   `json:"project_id"`
	Metrics   []Metric `json:"metrics"`
	Plots     Plots    `json:"plots"`
}

func buildOverview(project *dataset.Project, progress Progress, m AgreementMetrics) Overview {
	pct := progress.Percentage
	metrics := []Metric{
		{
			Index: 0,
			Kind:  MetricProjectProgress,
			Name:  "Project Progress",
			Title: "Progress made to date (only counts documents saved by the minimum number of annotators)",
			Value: formatPercent(&pct, 1),
			Raw:   &pct,
		},
		{
			Index: 2,
			Kind:  MetricEntityAgreement,
			Name:  "Average Entity Agreement",
			Title: "Average entity inter-annotator agreement",
			Value: formatPercent(m.OverallEntityAgreement, 100),
			Raw:   m.OverallEntityAgreement,
		},
		countMetric(4, MetricEntitiesCreated, "Entities Created",
			"Count of agreed upon entities (silver and weak) created by annotators",
			m.AgreedEntityCount),
	}

	if project.Tasks.Relation {
		metrics = append(metrics,
			Metric{
				Index: 1,
				Kind:  MetricOverallAgreement,
				Name:  "Overall Agreement",
				Title: "Weighted average overall inter-annotator agreement",
				Value: formatPercent(m.OverallAgreement, 100),
				Raw:   m.OverallAgreement,
			},
			Metric{
				Index: 3,
				Kind:  MetricRelationAgreement,
				Name:  "Average Relation Agreement",
				Title: "Average relation inter-annotator agreement",
				Value: formatPercent(m.OverallRelationAgreement, 100),
				Raw:   m.OverallRelationAgreement,
			},
		)
		relations := 0
		if m.AgreedRelationCount != nil {
			relations = *m.AgreedRelationCount
		}
		metrics = append(metrics, countMetric(5, MetricTriplesCreated, "Triples Created",
			"Count of agreed upon triples (silver and weak) created by annotators",
			relations))
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Index < metrics[j].Index })
	return Overview{ProjectID: project.ID, Metrics: metrics}
}

// formatPercent renders v*scale as a whole percentage.
func formatPercent(v *float64, scale float64) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprintf("%0.0f%%", *v*scale)
	return &s
}

func countMetric(index int, kind MetricKind, name, title string, n int) Metric {
	raw := float64(n)
	value := fmt.Sprintf("%d", n)
	return Metric{Index: index, Kind: kind, Name: name, Title: title, Value: &value, Raw: &raw}
}
