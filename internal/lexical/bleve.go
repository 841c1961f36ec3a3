package lexical

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Bleve compiles the query into a bleve query over the given text fields.
// Fields must be indexed with a whitespace analyzer over Representation.String,
// so terms are matched exactly. It returns nil for an empty query.
func (q *Query) Bleve(fields ...string) query.Query {
	if q.Empty() || len(fields) == 0 {
		return nil
	}

	groups := make([]query.Query, 0, len(q.Groups))
	for _, g := range q.Groups {
		bq := bleve.NewBooleanQuery()
		for _, c := range g.Positive() {
			bq.AddMust(bleveClause(c, fields))
		}
		for _, c := range g.Negative() {
			bq.AddMustNot(bleveClause(c, fields))
		}
		groups = append(groups, bq)
	}

	if len(groups) == 1 {
		return groups[0]
	}
	return bleve.NewDisjunctionQuery(groups...)
}

// bleveClause matches a term or phrase in any of fields.
func bleveClause(c Clause, fields []string) query.Query {
	perField := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		if c.Phrase() {
			perField = append(perField, bleve.NewPhraseQuery(c.Terms, f))
			continue
		}
		tq := bleve.NewTermQuery(c.Terms[0])
		tq.SetField(f)
		perField = append(perField, tq)
	}
	if len(perField) == 1 {
		return perField[0]
	}
	return bleve.NewDisjunctionQuery(perField...)
}
