package storage

import (
	"fmt"
	"strings"

	"github.com/poiesic/assetpipe/core"
)

// Query selects documents by a predicate evaluated inside the store.
type Query interface {
	Match(doc core.Document) bool
}

type matchAll struct{}

func (matchAll) Match(core.Document) bool { return true }

func (matchAll) String() string { return "match_all" }

// MatchAll selects every document.
func MatchAll() Query {
	return matchAll{}
}

type term struct {
	field string
	value string
}

func (q term) Match(doc core.Document) bool {
	v, ok := doc[q.field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s == q.value
	}
	return fmt.Sprint(v) == q.value
}

func (q term) String() string { return fmt.Sprintf("term(%s=%q)", q.field, q.value) }

// Term selects documents whose field equals value exactly, as keyword fields
// compare: no case folding, no trimming.
func Term(field, value string) Query {
	return term{field: field, value: value}
}

type present struct {
	field string
}

func (q present) Match(doc core.Document) bool {
	v, ok := doc[q.field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func (q present) String() string { return fmt.Sprintf("present(%s)", q.field) }

// Present selects documents holding a usable value in field. Null values and
// strings that are blank after trimming do not count.
func Present(field string) Query {
	return present{field: field}
}

// Bool combines queries. A document matches when it matches every Must query,
// none of the MustNot queries, and at least MinimumShouldMatch of the Should
// queries. With no Must queries and no explicit minimum, one Should match is
// required when Should is non-empty.
type Bool struct {
	Must               []Query
	Should             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

// Match implements Query.
func (q Bool) Match(doc core.Document) bool {
	for _, m := range q.Must {
		if !m.Match(doc) {
			return false
		}
	}
	for _, m := range q.MustNot {
		if m.Match(doc) {
			return false
		}
	}
	if len(q.Should) == 0 {
		return true
	}
	required := q.MinimumShouldMatch
	if required == 0 && len(q.Must) == 0 {
		required = 1
	}
	matched := 0
	for _, m := range q.Should {
		if m.Match(doc) {
			matched++
		}
	}
	return matched >= required
}

// Not selects documents the inner query does not select.
func Not(q Query) Query {
	return Bool{MustNot: []Query{q}}
}

// Any selects documents matching at least one of the queries.
func Any(queries ...Query) Query {
	return Bool{Should: queries, MinimumShouldMatch: 1}
}

// ValidateQuery rejects queries the store cannot evaluate.
func ValidateQuery(q Query) error {
	if q == nil {
		return fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	b, ok := q.(Bool)
	if !ok {
		return nil
	}
	if b.MinimumShouldMatch < 0 || b.MinimumShouldMatch > len(b.Should) {
		return fmt.Errorf("%w: minimum_should_match %d with %d should clauses",
			ErrInvalidQuery, b.MinimumShouldMatch, len(b.Should))
	}
	for _, group := range [][]Query{b.Must, b.Should, b.MustNot} {
		for _, inner := range group {
			if err := ValidateQuery(inner); err != nil {
				return err
			}
		}
	}
	return nil
}
