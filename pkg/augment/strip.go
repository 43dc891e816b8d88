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

// Package augment removes augmented (LLM-backed) function calls from SQL text
// and repairs the surrounding clause grammar, leaving a plain-SQL baseline.
package augment

import (
	"regexp"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/util/sqltext"
)

// Call is one augmented-function invocation found in a query.
type Call struct {
	Name  string
	Kind  Kind
	Start int
	End   int
}

// Stripper removes the calls of a Catalog. It holds no mutable state.
type Stripper struct {
	funcs map[string]Kind
}

// NewStripper returns a stripper recognizing the functions of c.
func NewStripper(c Catalog) *Stripper {
	return &Stripper{funcs: c.index()}
}

var defaultStripper = NewStripper(DefaultCatalog())

// Strip removes augmented calls using the default catalog.
func Strip(query string) string {
	return defaultStripper.Strip(query)
}

var (
	reAndBefore    = regexp.MustCompile(`(?i)\s+AND\s*$`)
	reNotBefore    = regexp.MustCompile(`(?i)\bNOT\s*$`)
	reClauseBefore = regexp.MustCompile(`(?i)\s*\b(?:WHERE|HAVING)\s*$`)
	reAndAfter     = regexp.MustCompile(`(?i)^\s*AND\b\s*`)
	reClauseEnd    = regexp.MustCompile(`(?i)^\s*(?:$|;|\)|\b(?:GROUP|ORDER|HAVING|LIMIT|WINDOW|QUALIFY|UNION|EXCEPT|INTERSECT)\b)`)
	reTermEnd      = regexp.MustCompile(`(?i)^\s*(?:$|;|\)|\b(?:AND|OR|WHERE|JOIN|INNER|LEFT|RIGHT|FULL|CROSS|GROUP|ORDER|HAVING|LIMIT|WINDOW|QUALIFY|UNION|EXCEPT|INTERSECT)\b)`)

	reAsAlias     = regexp.MustCompile("(?i)^\\s+AS\\s+(?:\\w+|\"[^\"]*\"|`[^`]*`)")
	reBareAlias   = regexp.MustCompile(`^\s+(\w+)`)
	reListEnd     = regexp.MustCompile(`(?i)^\s*(?:$|,|\)|\bFROM\b)`)
	reCommaBefore = regexp.MustCompile(`\s*,\s*$`)
	reSelectHead  = regexp.MustCompile(`(?i)\bSELECT(?:\s+DISTINCT)?\s*$`)
	reCommaAfter  = regexp.MustCompile(`^\s*,\s*`)

	reDanglingComma = regexp.MustCompile(`(?i),\s*(FROM|GROUP\s+BY|ORDER\s+BY)\b`)
	reEmptySelect   = regexp.MustCompile(`(?i)\bSELECT(\s+DISTINCT)?\s+FROM\b`)
)

// words that end a SELECT-list expression instead of naming it
var notAlias = map[string]struct{}{
	"FROM": {}, "WHERE": {}, "GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {},
	"UNION": {}, "EXCEPT": {}, "INTERSECT": {}, "AND": {}, "OR": {}, "AS": {},
	"INTO": {}, "WINDOW": {}, "QUALIFY": {},
}

// Calls lists the augmented calls of query in textual order. A call is a
// catalog function whose argument list carries at least two brace-delimited
// template groups; calls nested inside another call's arguments are part of
// the outer one.
func (s *Stripper) Calls(query string) []Call {
	var calls []Call
	for from := 0; ; {
		c, ok := s.next(query, from)
		if !ok {
			return calls
		}
		calls = append(calls, c)
		from = c.End
	}
}

// HasCalls reports whether query contains any augmented call.
func (s *Stripper) HasCalls(query string) bool {
	_, ok := s.next(query, 0)
	return ok
}

// Strip returns query with every augmented call removed. Filters that are a
// whole WHERE/HAVING condition or one conjunct drop together with their
// connective; SELECT-list expressions drop with their alias and separating
// comma. Calls in other positions are replaced by TRUE (filters) or NULL
// (projections). The result is a fixed point of Strip.
func (s *Stripper) Strip(query string) string {
	for {
		c, ok := s.next(query, 0)
		if !ok {
			break
		}
		query = s.remove(query, c)
	}
	query = reDanglingComma.ReplaceAllString(query, " $1")
	return reEmptySelect.ReplaceAllString(query, "SELECT$1 * FROM")
}

func (s *Stripper) next(query string, from int) (Call, bool) {
	for i := from; i < len(query); {
		b := query[i]
		if b == '\'' || b == '"' || b == '`' {
			i = sqltext.SkipQuoted(query, i)
			continue
		}
		if !sqltext.IsWordByte(b) || (i > 0 && (sqltext.IsWordByte(query[i-1]) || query[i-1] == '.')) {
			i++
			continue
		}
		word, end := sqltext.ReadWord(query, i)
		kind, ok := s.funcs[strings.ToLower(word)]
		if !ok {
			i = end
			continue
		}
		open := sqltext.SkipSpace(query, end)
		if open >= len(query) || query[open] != '(' {
			i = end
			continue
		}
		closing := sqltext.MatchParen(query, open)
		if closing < 0 || braceGroups(query[open+1:closing]) < 2 {
			i = end
			continue
		}
		return Call{Name: word, Kind: kind, Start: i, End: closing + 1}, true
	}
	return Call{}, false
}

func braceGroups(args string) int {
	depth, groups := 0, 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					groups++
				}
			}
		}
	}
	return groups
}

func (s *Stripper) remove(query string, c Call) string {
	if c.Kind == KindFilter {
		if out, ok := removeFilter(query, c); ok {
			return out
		}
	}
	if out, ok := removeProjection(query, c); ok {
		return out
	}
	literal := "NULL"
	if c.Kind == KindFilter {
		literal = "TRUE"
	}
	return query[:c.Start] + literal + query[c.End:]
}

func removeFilter(query string, c Call) (string, bool) {
	after := query[c.End:]
	if !reTermEnd.MatchString(after) {
		return "", false
	}
	before := query[:c.Start]
	if loc := reNotBefore.FindStringIndex(before); loc != nil {
		before = before[:loc[0]]
	}
	if loc := reAndBefore.FindStringIndex(before); loc != nil {
		return before[:loc[0]] + after, true
	}
	loc := reClauseBefore.FindStringIndex(before)
	if loc == nil {
		return "", false
	}
	if m := reAndAfter.FindStringIndex(after); m != nil {
		return before + after[m[1]:], true
	}
	if reClauseEnd.MatchString(after) {
		return before[:loc[0]] + after, true
	}
	return "", false
}

func removeProjection(query string, c Call) (string, bool) {
	end := c.End
	if m := reAsAlias.FindStringIndex(query[end:]); m != nil {
		end += m[1]
	} else if m := reBareAlias.FindStringSubmatchIndex(query[end:]); m != nil {
		if _, kw := notAlias[strings.ToUpper(query[end+m[2]:end+m[3]])]; !kw {
			end += m[1]
		}
	}
	after := query[end:]
	if !reListEnd.MatchString(after) {
		return "", false
	}
	before := query[:c.Start]
	if loc := reCommaBefore.FindStringIndex(before); loc != nil {
		return before[:loc[0]] + after, true
	}
	if !reSelectHead.MatchString(before) {
		return "", false
	}
	if m := reCommaAfter.FindStringIndex(after); m != nil {
		return before + after[m[1]:], true
	}
	return before + after, true
}
