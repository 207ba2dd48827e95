package dashboard

import (
	"sort"

	"github.com/onnwee/quickgraph/internal/dataset"
	"github.com/onnwee/quickgraph/internal/ontology"
)

// TopTriples is the number of triple structures reported in the overview.
const TopTriples = 10

const dayLayout = "2006-01-02"

// plotFlagStates fixes the order of the flag distribution.
var plotFlagStates = []dataset.FlagState{
	dataset.FlagIssue,
	dataset.FlagUncertain,
	dataset.FlagQuality,
	dataset.FlagDiscussion,
}

// DayCount is the number of events on one UTC day (YYYY-MM-DD).
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// LabelCount splits the markup of one label into accepted (silver) and
// suggested (weak) annotations.
type LabelCount struct {
	Label  string `json:"label"`
	Silver int    `json:"silver"`
	Weak   int    `json:"weak"`
}

func (c LabelCount) total() int { return c.Silver + c.Weak }

// TripleCount is how often a (head, relation, tail) label structure was
// annotated.
type TripleCount struct {
	Head     string `json:"head"`
	Relation string `json:"relation"`
	Tail     string `json:"tail"`
	Count    int    `json:"count"`
}

// FlagCount is the number of flags raised with one state.
type FlagCount struct {
	State dataset.FlagState `json:"state"`
	Count int               `json:"count"`
}

// AnnotatorActivity totals the contributions of one annotator.
type AnnotatorActivity struct {
	Username  string `json:"username"`
	Saves     int    `json:"saves"`
	Entities  int    `json:"entities"`
	Relations int    `json:"relations"`
	Flags     int    `json:"flags"`
	Comments  int    `json:"comments"`
}

// Plots is the data behind the overview charts. Relations and Triples are
// nil for projects without the relation task.
type Plots struct {
	SavesPerDay  []DayCount          `json:"saves_per_day"`
	Entities     []LabelCount        `json:"entities"`
	Relations    []LabelCount        `json:"relations"`
	Triples      []TripleCount       `json:"triples"`
	Flags        []FlagCount         `json:"flags"`
	SocialPerDay []DayCount          `json:"social_per_day"`
	Annotators   []AnnotatorActivity `json:"annotators"`
}

// buildPlots aggregates every item, markup record (suggested included) and
// social of a project.
func buildPlots(p *dataset.Project, items []dataset.DatasetItem, markup []dataset.Markup, social []dataset.Social, idx *ontology.Index) Plots {
	activity := newActivity(p.AcceptedAnnotators())
	saves := map[string]int{}
	flags := map[dataset.FlagState]int{}
	for i := range items {
		for _, s := range items[i].SaveStates {
			saves[s.CreatedAt.UTC().Format(dayLayout)]++
			activity.get(s.CreatedBy).Saves++
		}
		for _, f := range items[i].Flags {
			flags[f.State]++
			activity.get(f.CreatedBy).Flags++
		}
	}

	comments := map[string]int{}
	for _, s := range social {
		comments[s.CreatedAt.UTC().Format(dayLayout)]++
		activity.get(s.CreatedBy).Comments++
	}

	entities := map[string]*LabelCount{}
	relations := map[string]*LabelCount{}
	byID := make(map[string]*dataset.Markup, len(markup))
	for i := range markup {
		m := &markup[i]
		byID[m.ID] = m
		counts := entities
		if m.Classification == dataset.ClassificationRelation {
			if !p.Tasks.Relation {
				continue
			}
			counts = relations
			activity.get(m.CreatedBy).Relations++
		} else {
			activity.get(m.CreatedBy).Entities++
		}
		countLabel(counts, labelOf(idx, m.OntologyItemID), m.Suggested)
	}

	out := Plots{
		SavesPerDay:  perDay(saves),
		Entities:     sortedLabels(entities),
		SocialPerDay: perDay(comments),
		Annotators:   activity.sorted(),
	}
	for _, state := range plotFlagStates {
		out.Flags = append(out.Flags, FlagCount{State: state, Count: flags[state]})
	}
	if p.Tasks.Relation {
		out.Relations = sortedLabels(relations)
		out.Triples = topTriples(markup, byID, idx, TopTriples)
	}
	return out
}

// labelOf prefers the ontology fullname and falls back to the raw id.
func labelOf(idx *ontology.Index, id string) string {
	if name := idx.Fullname(id); name != "" {
		return name
	}
	return id
}

func countLabel(counts map[string]*LabelCount, label string, suggested bool) {
	c, ok := counts[label]
	if !ok {
		c = &LabelCount{Label: label}
		counts[label] = c
	}
	if suggested {
		c.Weak++
	} else {
		c.Silver++
	}
}

// sortedLabels orders by total count descending, then label.
func sortedLabels(counts map[string]*LabelCount) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].total() != out[j].total() {
			return out[i].total() > out[j].total()
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func perDay(counts map[string]int) []DayCount {
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// topTriples counts relation structures whose endpoints both resolve and
// returns the n most frequent.
func topTriples(markup []dataset.Markup, byID map[string]*dataset.Markup, idx *ontology.Index, n int) []TripleCount {
	type triple struct{ head, rel, tail string }
	counts := map[triple]int{}
	for i := range markup {
		m := &markup[i]
		if m.Classification != dataset.ClassificationRelation || m.SourceID == nil || m.TargetID == nil {
			continue
		}
		src, okSrc := byID[*m.SourceID]
		dst, okDst := byID[*m.TargetID]
		if !okSrc || !okDst {
			continue
		}
		counts[triple{
			head: labelOf(idx, src.OntologyItemID),
			rel:  labelOf(idx, m.OntologyItemID),
			tail: labelOf(idx, dst.OntologyItemID),
		}]++
	}

	out := make([]TripleCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TripleCount{Head: t.head, Relation: t.rel, Tail: t.tail, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Count != b.Count:
			return a.Count > b.Count
		case a.Head != b.Head:
			return a.Head < b.Head
		case a.Relation != b.Relation:
			return a.Relation < b.Relation
		default:
			return a.Tail < b.Tail
		}
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type activityTable map[string]*AnnotatorActivity

func newActivity(usernames []string) activityTable {
	t := activityTable{}
	for _, u := range usernames {
		t.get(u)
	}
	return t
}

func (t activityTable) get(username string) *AnnotatorActivity {
	a, ok := t[username]
	if !ok {
		a = &AnnotatorActivity{Username: username}
		t[username] = a
	}
	return a
}

func (t activityTable) sorted() []AnnotatorActivity {
	out := make([]AnnotatorActivity, 0, len(t))
	for _, a := range t {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
