package exposure

import "github.com/rxlens/rxlens/internal/vocab"

// ConceptLookup resolves a concept id against the loaded vocabulary.
// *vocab.Service satisfies it.
type ConceptLookup interface {
	Concept(id int64) *vocab.Concept
}

// conceptJoin is one enrich-by-key step: where the key comes from and
// where the matched concept goes. The full join plan is the declarative
// list below; adding an enrichment column is a list edit, not new join
// code.
type conceptJoin struct {
	key    func(*DrugExposure) int64
	assign func(*EnrichedExposure, *vocab.Concept)
}

var conceptJoins = []conceptJoin{
	{
		key:    func(e *DrugExposure) int64 { return e.DrugConceptID },
		assign: func(e *EnrichedExposure, c *vocab.Concept) { e.Drug = c },
	},
	{
		key:    func(e *DrugExposure) int64 { return e.DrugTypeConceptID },
		assign: func(e *EnrichedExposure, c *vocab.Concept) { e.DrugType = c },
	},
	{
		key:    func(e *DrugExposure) int64 { return e.RouteConceptID },
		assign: func(e *EnrichedExposure, c *vocab.Concept) { e.Route = c },
	},
}

// Enrich left-joins each exposure row against the full concept table,
// once per join spec. Output cardinality equals input cardinality; a
// missed key leaves the concept field nil.
func Enrich(rows []DrugExposure, lookup ConceptLookup) []EnrichedExposure {
	out := make([]EnrichedExposure, len(rows))
	for i := range rows {
		out[i] = EnrichedExposure{DrugExposure: rows[i]}
		for _, join := range conceptJoins {
			if id := join.key(&rows[i]); id != 0 {
				join.assign(&out[i], lookup.Concept(id))
			}
		}
	}
	return out
}
