package lexical

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError reports a malformed query. No partial query is produced.
type SyntaxError struct {
	Query  string
	Pos    int // byte offset into Query
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at position %d: %s", e.Pos, e.Reason)
}

// Clause is one matchable unit: a single term or a phrase.
type Clause struct {
	Terms   []string
	Negated bool
}

// Phrase reports whether the clause needs consecutive terms.
func (c Clause) Phrase() bool {
	return len(c.Terms) > 1
}

// Group is a conjunction of clauses. At least one clause is positive.
type Group struct {
	Clauses []Clause
}

// Positive returns the non-negated clauses.
func (g Group) Positive() []Clause {
	var out []Clause
	for _, c := range g.Clauses {
		if !c.Negated {
			out = append(out, c)
		}
	}
	return out
}

// Negative returns the negated clauses.
func (g Group) Negative() []Clause {
	var out []Clause
	for _, c := range g.Clauses {
		if c.Negated {
			out = append(out, c)
		}
	}
	return out
}

// Query is a parsed web-search query: a disjunction of conjunctive groups.
type Query struct {
	Raw    string
	Groups []Group
}

// Empty reports whether nothing searchable survived analysis.
// Searching an empty query yields no results rather than an error.
func (q *Query) Empty() bool {
	return q == nil || len(q.Groups) == 0
}

// Terms returns the distinct positive terms in first-seen order.
func (q *Query) Terms() []string {
	if q.Empty() {
		return []string{}
	}
	seen := make(map[string]struct{})
	terms := []string{}
	for _, g := range q.Groups {
		for _, c := range g.Positive() {
			for _, t := range c.Terms {
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	return terms
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokOr
)

type token struct {
	kind    tokenKind
	text    string
	pos     int
	negated bool
}

// Parse parses raw with the default analyzer.
func Parse(raw string) (*Query, error) {
	return defaultAnalyzer.Parse(raw)
}

// Parse parses a web-search style query:
//
//	foo bar          both terms (implicit AND)
//	"foo bar"        phrase
//	foo OR bar       either side; AND binds tighter than OR
//	-foo, -"foo bar" exclusion
//
// Stop words and punctuation are removed by the analyzer. A word that analyzes
// to several terms ("e-mail") becomes a phrase.
func (a *Analyzer) Parse(raw string) (*Query, error) {
	tokens, err := lex(raw)
	if err != nil {
		return nil, err
	}

	q := &Query{Raw: raw}
	var current []token
	sawClause := false

	closeGroup := func(orPos int) error {
		if len(current) == 0 {
			if !sawClause {
				return &SyntaxError{Query: raw, Pos: orPos, Reason: "OR needs a term on its left"}
			}
			return &SyntaxError{Query: raw, Pos: orPos, Reason: "OR needs a term on its right"}
		}
		g, err := a.buildGroup(raw, current)
		if err != nil {
			return err
		}
		if g != nil {
			q.Groups = append(q.Groups, *g)
		}
		current = nil
		return nil
	}

	lastOr := -1
	for _, tok := range tokens {
		if tok.kind == tokOr {
			if err := closeGroup(tok.pos); err != nil {
				return nil, err
			}
			lastOr = tok.pos
			continue
		}
		sawClause = true
		current = append(current, tok)
	}

	if len(current) == 0 {
		if lastOr >= 0 {
			return nil, &SyntaxError{Query: raw, Pos: lastOr, Reason: "OR needs a term on its right"}
		}
		return q, nil
	}
	if err := closeGroup(len(raw)); err != nil {
		return nil, err
	}
	return q, nil
}

// buildGroup analyzes the tokens of one conjunction. It returns nil when every
// positive clause was a stop word.
func (a *Analyzer) buildGroup(raw string, tokens []token) (*Group, error) {
	hasPositive := false
	for _, tok := range tokens {
		if !tok.negated {
			hasPositive = true
			break
		}
	}
	if !hasPositive {
		return nil, &SyntaxError{Query: raw, Pos: tokens[0].pos, Reason: "negation needs at least one positive term"}
	}

	g := &Group{}
	positives := 0
	for _, tok := range tokens {
		terms := a.Terms(tok.text)
		if len(terms) == 0 {
			continue
		}
		g.Clauses = append(g.Clauses, Clause{Terms: terms, Negated: tok.negated})
		if !tok.negated {
			positives++
		}
	}
	if positives == 0 {
		return nil, nil
	}
	return g, nil
}

func lex(raw string) ([]token, error) {
	var tokens []token
	runes := []rune(raw)
	// byte offsets for error positions
	offsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offsets[i] = off
		off += len(string(r))
	}
	offsets[len(runes)] = off

	i := 0
	for i < len(runes) {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}

		start := i
		negated := false
		if runes[i] == '-' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				return nil, &SyntaxError{Query: raw, Pos: offsets[i], Reason: "'-' must be followed by a term"}
			}
			negated = true
			i++
		}

		if runes[i] == '"' {
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				return nil, &SyntaxError{Query: raw, Pos: offsets[i], Reason: "unterminated quote"}
			}
			tokens = append(tokens, token{
				kind:    tokPhrase,
				text:    string(runes[i+1 : end]),
				pos:     offsets[start],
				negated: negated,
			})
			i = end + 1
			continue
		}

		end := i
		for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '"' {
			end++
		}
		word := string(runes[i:end])
		kind := tokWord
		if word == "OR" && !negated {
			kind = tokOr
		}
		tokens = append(tokens, token{kind: kind, text: word, pos: offsets[start], negated: negated})
		i = end
	}

	return tokens, nil
}

// FTS5 compiles the query into an SQLite FTS5 MATCH expression over every
// indexed column. It returns "" for an empty query.
func (q *Query) FTS5() string {
	if q.Empty() {
		return ""
	}
	groups := make([]string, 0, len(q.Groups))
	for _, g := range q.Groups {
		pos := g.Positive()
		parts := make([]string, 0, len(pos))
		for _, c := range pos {
			parts = append(parts, ftsClause(c))
		}
		expr := strings.Join(parts, " AND ")
		if len(parts) > 1 {
			expr = "(" + expr + ")"
		}
		for _, c := range g.Negative() {
			expr = "(" + expr + " NOT " + ftsClause(c) + ")"
		}
		groups = append(groups, expr)
	}
	return strings.Join(groups, " OR ")
}

// ftsClause quotes a term or phrase as an FTS5 string literal.
func ftsClause(c Clause) string {
	return `"` + strings.ReplaceAll(strings.Join(c.Terms, " "), `"`, `""`) + `"`
}
