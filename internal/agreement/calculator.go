package agreement

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PairSeparator joins two usernames in a pairwise score key.
const PairSeparator = "|"

// annotations is the deduplicated view of one kind: doc -> user -> keys.
// count tracks raw records per doc so duplicates still carry weight.
type annotations struct {
	docs  map[string]map[string]map[key]struct{}
	count map[string]int
}

func newAnnotations() *annotations {
	return &annotations{
		docs:  make(map[string]map[string]map[key]struct{}),
		count: make(map[string]int),
	}
}

func (a *annotations) add(doc, user string, k key) {
	users, ok := a.docs[doc]
	if !ok {
		users = make(map[string]map[key]struct{})
		a.docs[doc] = users
	}
	keys, ok := users[user]
	if !ok {
		keys = make(map[key]struct{})
		users[user] = keys
	}
	keys[k] = struct{}{}
	a.count[doc]++
}

func (a *annotations) sortedDocs() []string {
	docs := make([]string, 0, len(a.docs))
	for d := range a.docs {
		docs = append(docs, d)
	}
	sort.Strings(docs)
	return docs
}

// Calculator aggregates pairwise matches into agreement scores. It holds no
// mutable state after construction and is safe for concurrent use.
type Calculator struct {
	entities     *annotations
	relations    *annotations
	relationTask bool
}

// NewCalculator indexes the flat records. relationTask reports whether the
// project runs the relation task; without it the combined score is the
// entity score.
func NewCalculator(entities []EntityRecord, relations []RelationRecord, relationTask bool) *Calculator {
	c := &Calculator{
		entities:     newAnnotations(),
		relations:    newAnnotations(),
		relationTask: relationTask,
	}
	var sm SpanMatcher
	for _, e := range entities {
		c.entities.add(e.DocID, e.Username, sm.key(e.Span))
	}
	var rm RelationMatcher
	for _, r := range relations {
		c.relations.add(r.DocID, r.Username, rm.key(r))
	}
	return c
}

func (c *Calculator) of(kind Kind) *annotations {
	if kind == KindRelation {
		return c.relations
	}
	return c.entities
}

// PairScore is the agreement between two annotators on one document.
type PairScore struct {
	DocID string  `json:"doc_id"`
	Pair  string  `json:"pair"`
	Score float64 `json:"score"`
}

// pairScores returns one sample per document and annotator pair, plus the
// number of raw records on documents that produced samples.
func (c *Calculator) pairScores(kind Kind) ([]PairScore, int) {
	ann := c.of(kind)
	var samples []PairScore
	contributing := 0
	for _, doc := range ann.sortedDocs() {
		users := ann.docs[doc]
		if len(users) < 2 {
			continue
		}
		names := make([]string, 0, len(users))
		for u := range users {
			names = append(names, u)
		}
		sort.Strings(names)

		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				samples = append(samples, PairScore{
					DocID: doc,
					Pair:  names[i] + PairSeparator + names[j],
					Score: jaccard(users[names[i]], users[names[j]]),
				})
			}
		}
		contributing += ann.count[doc]
	}
	return samples, contributing
}

// jaccard returns |a ∩ b| / |a ∪ b|. Both sets are non-empty here.
func jaccard(a, b map[key]struct{}) float64 {
	matched := 0
	for k := range a {
		if _, ok := b[k]; ok {
			matched++
		}
	}
	union := len(a) + len(b) - matched
	if union == 0 {
		return 0
	}
	return float64(matched) / float64(union)
}

// OverallAgreement averages the pairwise agreement over every document and
// annotator pair. Returns nil when no document has two annotators
// contributing the kind.
func (c *Calculator) OverallAgreement(kind Kind) *float64 {
	score, _ := c.overallWithCount(kind)
	return score
}

// OverallAverageAgreement combines entity and relation agreement weighted by
// the number of annotations that contributed to each. It is the entity
// score when the project has no relation task or no relation score exists.
func (c *Calculator) OverallAverageAgreement() *float64 {
	entity, entityN := c.overallWithCount(KindEntity)
	if !c.relationTask {
		return entity
	}
	relation, relationN := c.overallWithCount(KindRelation)
	if relation == nil {
		return entity
	}
	if entity == nil {
		return relation
	}
	avg := stat.Mean(
		[]float64{*entity, *relation},
		[]float64{float64(entityN), float64(relationN)},
	)
	return &avg
}

func (c *Calculator) overallWithCount(kind Kind) (*float64, int) {
	samples, n := c.pairScores(kind)
	if len(samples) == 0 {
		return nil, 0
	}
	mean := stat.Mean(sampleScores(samples), nil)
	return &mean, n
}

func sampleScores(samples []PairScore) []float64 {
	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.Score
	}
	return scores
}

// CountMajorityAgreements counts equivalence classes endorsed by at least
// threshold distinct annotators, summed across documents. Thresholds below
// one are treated as one.
func (c *Calculator) CountMajorityAgreements(kind Kind, threshold int) int {
	if threshold < 1 {
		threshold = 1
	}
	ann := c.of(kind)
	total := 0
	for _, users := range ann.docs {
		endorsements := make(map[key]int)
		for _, keys := range users {
			for k := range keys {
				endorsements[k]++
			}
		}
		for _, n := range endorsements {
			if n >= threshold {
				total++
			}
		}
	}
	return total
}

// PairwiseAgreement returns the per-pair scores of every document ordered
// by document then pair. Pairs are keyed "userA|userB" with the names
// sorted.
func (c *Calculator) PairwiseAgreement(kind Kind) []PairScore {
	samples, _ := c.pairScores(kind)
	if samples == nil {
		return []PairScore{}
	}
	return samples
}

// Summary describes the spread of pairwise samples behind a score.
type Summary struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Summarize returns the distribution of pairwise samples, or nil when no
// sample exists.
func (c *Calculator) Summarize(kind Kind) *Summary {
	samples, _ := c.pairScores(kind)
	if len(samples) == 0 {
		return nil
	}
	scores := sampleScores(samples)
	s := &Summary{
		Samples: len(scores),
		Min:     floats.Min(scores),
		Max:     floats.Max(scores),
	}
	if len(scores) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(scores, nil)
	} else {
		s.Mean = scores[0]
	}
	return s
}
