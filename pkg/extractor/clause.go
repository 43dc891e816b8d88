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

package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/util/sqltext"
)

var (
	whereEnd  = []string{"GROUP", "ORDER", "HAVING", "LIMIT", "WINDOW", "QUALIFY", "UNION"}
	groupEnd  = []string{"HAVING", "ORDER", "LIMIT", "WINDOW", "QUALIFY", "UNION"}
	havingEnd = []string{"ORDER", "LIMIT", "WINDOW", "QUALIFY", "UNION"}

	reLimit     = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	reCrossJoin = regexp.MustCompile(`(?i)\bCROSS\s+JOIN\b`)
)

// clauseBody returns the text after the keyword sequence (found at depth 0) up
// to the first of the end keywords, a semicolon or the end of the query.
func clauseBody(query string, keyword []string, end []string) (string, bool) {
	start := sqltext.IndexKeyword(query, keyword[0], 0)
	for start >= 0 {
		pos := start + len(keyword[0])
		ok := true
		for _, kw := range keyword[1:] {
			pos = sqltext.SkipSpace(query, pos)
			if !sqltext.HasWordAt(query, pos, kw) {
				ok = false
				break
			}
			pos += len(kw)
		}
		if ok {
			stop, _ := sqltext.IndexAnyKeyword(query, pos, end...)
			if stop < 0 {
				stop = len(query)
			}
			if p := strings.IndexByte(query[pos:stop], ';'); p >= 0 {
				stop = pos + p
			}
			return strings.TrimSpace(query[pos:stop]), true
		}
		start = sqltext.IndexKeyword(query, keyword[0], pos)
	}
	return "", false
}

// WhereBody returns the top-level WHERE predicate of query, bounded by
// GROUP/ORDER/HAVING/LIMIT or the end of the text.
func WhereBody(query string) (string, bool) {
	return clauseBody(query, []string{"WHERE"}, whereEnd)
}

// GroupByClause returns the top-level GROUP BY column list.
func GroupByClause(query string) (string, bool) {
	return clauseBody(query, []string{"GROUP", "BY"}, groupEnd)
}

// HavingClause returns the top-level HAVING predicate.
func HavingClause(query string) (string, bool) {
	return clauseBody(query, []string{"HAVING"}, havingEnd)
}

// HasLimit reports the first LIMIT found anywhere in query, nested queries
// included, together with its row count.
func HasLimit(query string) (int64, bool) {
	m := reLimit.FindStringSubmatch(sqltext.StripLiterals(query))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasCrossJoin reports whether query contains a CROSS JOIN.
func HasCrossJoin(query string) bool {
	return reCrossJoin.MatchString(sqltext.StripLiterals(query))
}

// CrossJoinedTables lists the tables brought in by CROSS JOIN.
func (s *Structure) CrossJoinedTables() []string {
	var tables []string
	for _, j := range s.Joins {
		if j.Type == "CROSS" {
			tables = append(tables, j.Table)
		}
	}
	return tables
}

// OuterJoinedTables lists the tables brought in by LEFT, RIGHT or FULL joins.
func (s *Structure) OuterJoinedTables() []string {
	var tables []string
	for _, j := range s.Joins {
		if j.Outer() {
			tables = append(tables, j.Table)
		}
	}
	return tables
}
