// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extractor recovers the join structure of a query from its text. It
// recognizes a bounded set of shapes (a FROM table followed by JOIN ... ON
// clauses with alias.column = alias.column predicates) and ignores the rest.
package extractor

import (
	"regexp"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/joingraph"
	"github.com/pingcap/tuplereduce/pkg/util/sqltext"
)

// Placeholder replaces the contents of every top-level parenthesized group in
// a flattened query.
const Placeholder = "_sq_"

var reservedWords = map[string]struct{}{
	"JOIN": {}, "WHERE": {}, "GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {},
	"ON": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {}, "OUTER": {},
	"CROSS": {}, "SELECT": {}, "FROM": {}, "AS": {}, "SET": {}, "AND": {},
	"OR": {}, "NOT": {},
	"NATURAL": {}, "USING": {}, "UNION": {}, "WINDOW": {}, "QUALIFY": {},
}

// IsReserved reports whether word is a keyword that can never be an alias.
func IsReserved(word string) bool {
	_, ok := reservedWords[strings.ToUpper(word)]
	return ok
}

// ExtractBaseQuery peels `SELECT ... FROM (subquery) alias` wrappers. It
// descends into the subquery after the top-level FROM as long as no JOIN
// follows it at the same depth, so sibling joins are never hidden.
func ExtractBaseQuery(query string) string {
	for {
		from := sqltext.IndexKeyword(query, "FROM", 0)
		if from < 0 {
			return query
		}
		open := sqltext.SkipSpace(query, from+len("FROM"))
		if open >= len(query) || query[open] != '(' {
			return query
		}
		closing := sqltext.MatchParen(query, open)
		if closing < 0 {
			return query
		}
		if sqltext.IndexKeyword(query, "JOIN", closing+1) >= 0 {
			return query
		}
		inner := strings.TrimSpace(query[open+1 : closing])
		if !sqltext.HasWordAt(inner, 0, "SELECT") && !sqltext.HasWordAt(inner, 0, "WITH") {
			return query
		}
		query = inner
	}
}

// FlattenSubqueries replaces the contents of every top-level parenthesized
// group with Placeholder, keeping the parentheses. Text outside parentheses
// is left untouched; an unbalanced group is kept as is.
func FlattenSubqueries(query string) string {
	flat, _ := flatten(query, false)
	return flat
}

// flatten is FlattenSubqueries. With subqueriesOnly set, only groups opening
// with SELECT or WITH are replaced and the others are scanned into. The
// second result maps every byte of the output, and its end, to a position in
// query.
func flatten(query string, subqueriesOnly bool) (string, []int) {
	var sb strings.Builder
	sb.Grow(len(query))
	offsets := make([]int, 0, len(query)+1)
	copyRange := func(from, to int) {
		sb.WriteString(query[from:to])
		for k := from; k < to; k++ {
			offsets = append(offsets, k)
		}
	}
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := sqltext.SkipQuoted(query, i)
			copyRange(i, end)
			i = end
		case c == '(':
			closing := sqltext.MatchParen(query, i)
			if closing < 0 {
				copyRange(i, len(query))
				i = len(query)
				continue
			}
			if subqueriesOnly && !isSubquery(query[i+1:closing]) {
				copyRange(i, i+1)
				i++
				continue
			}
			sb.WriteString("(" + Placeholder + ")")
			offsets = append(offsets, i)
			for range len(Placeholder) {
				offsets = append(offsets, i+1)
			}
			offsets = append(offsets, closing)
			i = closing + 1
		default:
			copyRange(i, i+1)
			i++
		}
	}
	return sb.String(), append(offsets, len(query))
}

func isSubquery(inner string) bool {
	inner = strings.TrimSpace(inner)
	return sqltext.HasWordAt(inner, 0, "SELECT") || sqltext.HasWordAt(inner, 0, "WITH")
}

var (
	reFrom       = regexp.MustCompile(`(?i)\bFROM\s+(\w+)`)
	reJoin       = regexp.MustCompile(`(?i)\bJOIN\s+(\w+)`)
	reJoinType   = regexp.MustCompile(`(?i)\b(NATURAL|CROSS|INNER|LEFT|RIGHT|FULL)(?:\s+OUTER)?\s*$`)
	reEquality   = regexp.MustCompile(`(\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)`)
	joinBoundary = []string{"JOIN", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT",
		"INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL", "UNION", "WINDOW", "QUALIFY"}
)

// JoinClause is one JOIN of the FROM clause as written in the query.
type JoinClause struct {
	// Type is the join keyword preceding JOIN in upper case, "" for a plain
	// JOIN.
	Type  string
	Table string
	Alias string
	// On is the ON condition as written, with subqueries flattened.
	On string
}

// Outer reports whether the clause is a LEFT, RIGHT or FULL join.
func (j JoinClause) Outer() bool {
	return j.Type == "LEFT" || j.Type == "RIGHT" || j.Type == "FULL"
}

// Structure is what the extractor recovers from one query.
type Structure struct {
	Base  string
	Flat  string
	Graph *joingraph.Graph
	Joins []JoinClause
}

// Extract unwraps and flattens query and builds its join graph. Table
// references are read from the flattened text with literals masked; ON
// conditions are read from the base query with only subqueries flattened.
func Extract(query string) *Structure {
	base := ExtractBaseQuery(query)
	flat, offsets := flatten(base, false)
	g, joins := buildGraph(base, flat, offsets)
	return &Structure{Base: base, Flat: flat, Graph: g, Joins: joins}
}

// ExtractGraph returns the join graph of query.
func ExtractGraph(query string) *joingraph.Graph {
	return Extract(query).Graph
}

// readAlias reads the optional `[AS] alias` following a table reference that
// ends at pos. It returns the alias, or table itself, and the end of the
// reference.
func readAlias(flat, table string, pos int) (string, int) {
	i := sqltext.SkipSpace(flat, pos)
	if sqltext.HasWordAt(flat, i, "AS") {
		i = sqltext.SkipSpace(flat, i+len("AS"))
	}
	word, end := sqltext.ReadWord(flat, i)
	if word == "" || IsReserved(word) {
		return table, pos
	}
	return word, end
}

// buildGraph reads the join structure of flat, the flattened form of base.
// offsets maps positions of flat to base.
func buildGraph(base, flat string, offsets []int) (*joingraph.Graph, []JoinClause) {
	g := joingraph.New()
	masked := sqltext.MaskLiterals(flat)
	if loc := reFrom.FindStringSubmatchIndex(masked); loc != nil {
		table := masked[loc[2]:loc[3]]
		alias, _ := readAlias(masked, table, loc[3])
		g.AddTable(table, alias)
	}

	var joins []JoinClause
	for _, loc := range reJoin.FindAllStringSubmatchIndex(masked, -1) {
		clause := JoinClause{Table: masked[loc[2]:loc[3]]}
		var refEnd int
		clause.Alias, refEnd = readAlias(masked, clause.Table, loc[3])
		if t := reJoinType.FindStringSubmatch(masked[:loc[0]]); t != nil {
			clause.Type = strings.ToUpper(t[1])
		}
		if start, end, ok := onCondition(masked, refEnd); ok {
			on, _ := flatten(base[offsets[start]:offsets[end]], true)
			clause.On = strings.TrimSpace(on)
		}
		joins = append(joins, clause)
		g.AddTable(clause.Table, clause.Alias)
		for _, eq := range reEquality.FindAllStringSubmatch(sqltext.StripLiterals(clause.On), -1) {
			left, ok1 := g.ResolveAlias(eq[1])
			right, ok2 := g.ResolveAlias(eq[3])
			if !ok1 || !ok2 || left == right {
				continue
			}
			g.AddEdge(left, right, left+"."+eq[2]+" = "+right+"."+eq[4])
		}
	}
	return g, joins
}

// onCondition returns the bounds of the ON text of the join whose table
// reference ends at pos, up to the next clause keyword. ok is false when
// there is no ON.
func onCondition(flat string, pos int) (start, end int, ok bool) {
	on := sqltext.SkipSpace(flat, pos)
	if !sqltext.HasWordAt(flat, on, "ON") {
		return 0, 0, false
	}
	start = on + len("ON")
	end, _ = sqltext.IndexAnyKeyword(flat, start, joinBoundary...)
	if end < 0 {
		end = len(flat)
	}
	return start, end, true
}
