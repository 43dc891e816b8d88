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

// Package estimator holds reduction strategies for query shapes that
// semi-join reduction cannot see through, such as a GROUP BY whose HAVING
// filter drops whole groups.
package estimator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/extractor"
	"github.com/pingcap/tuplereduce/pkg/reducer"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// Estimator computes the reduction of a query by evaluating part of it
// against the backend. It must not modify backend tables.
type Estimator interface {
	// Name identifies the strategy in reports and logs.
	Name() string
	// Estimate returns false when query does not have the shape the
	// estimator handles.
	Estimate(ctx context.Context, b backend.Backend, query string) (reducer.Result, bool)
}

// Default returns the estimators tried, in order, before falling back to
// semi-join reduction.
func Default() []Estimator {
	return []Estimator{HavingCount{}}
}

var (
	reHavingCount = regexp.MustCompile(`(?i)^(COUNT\s*\(\s*(?:\*|DISTINCT\s+[\w.]+)\s*\))\s*(>=|>)\s*(\d+)$`)
	reEdgeCond    = regexp.MustCompile(`^(\w+)\.(\w+) = (\w+)\.(\w+)$`)
)

// HavingCount handles a two-table equi-join grouped by one side, the parent,
// with a `HAVING COUNT(*) >= N` or `HAVING COUNT(DISTINCT col) >= N` filter:
//
//	SELECT ... FROM child c JOIN parent p ON c.fk = p.pk
//	GROUP BY p.pk, ...
//	HAVING COUNT(*) >= N
//
// The parent keeps the keys whose group passes the threshold, the child keeps
// the rows referencing one of them. `>` is accepted as well as `>=`. A WHERE
// clause filters the joined rows before grouping, so a child row must also
// pass it together with its parent row.
type HavingCount struct{}

// Name implements Estimator.
func (HavingCount) Name() string { return "having-count" }

type groupJoin struct {
	parent, parentAlias, parentKey string
	child, childAlias, childKey    string
	aggregate, op                  string
	threshold                      int64
	where                          string
}

// Estimate implements Estimator.
func (h HavingCount) Estimate(ctx context.Context, b backend.Backend, query string) (reducer.Result, bool) {
	gj, ok := matchGroupJoin(query)
	if !ok {
		return nil, false
	}
	logger := logutil.Logger(ctx).With(zap.String("estimator", h.Name()))
	keys := gj.survivingKeys()
	res := make(reducer.Result, 2)

	parentQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) t", keys)
	res.Add(estimate(ctx, logger, b, gj.parent, parentQuery))

	res.Add(estimate(ctx, logger, b, gj.child, gj.childCount(keys)))
	return res, true
}

func estimate(ctx context.Context, logger *zap.Logger, b backend.Backend, table, query string) reducer.Reduction {
	original, _ := b.OriginalSize(table)
	reduced, err := b.QueryInt64(ctx, query)
	if err != nil {
		logger.Warn("estimate failed, keeping original size",
			zap.String("table", table), zap.String("sql", query), zap.Error(err))
		reduced = original
	}
	return reducer.NewReduction(table, original, reduced)
}

// survivingKeys is the query listing the parent keys whose group passes the
// HAVING filter.
func (gj *groupJoin) survivingKeys() string {
	var where string
	if gj.where != "" {
		where = fmt.Sprintf(" WHERE (%s)", gj.where)
	}
	return fmt.Sprintf("SELECT %[3]s.%[4]s FROM %[1]s JOIN %[2]s ON %[5]s.%[6]s = %[3]s.%[4]s%[10]s GROUP BY %[3]s.%[4]s HAVING %[7]s %[8]s %[9]d",
		tableRef(gj.child, gj.childAlias), tableRef(gj.parent, gj.parentAlias),
		gj.parentAlias, gj.parentKey, gj.childAlias, gj.childKey,
		gj.aggregate, gj.op, gj.threshold, where)
}

// childCount is the query counting the child rows that reference one of keys.
func (gj *groupJoin) childCount(keys string) string {
	if gj.where == "" {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (%s)", gj.child, gj.childKey, keys)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %[1]s WHERE EXISTS (SELECT 1 FROM %[2]s WHERE %[3]s.%[4]s = %[5]s.%[6]s AND (%[7]s) AND %[5]s.%[6]s IN (%[8]s))",
		tableRef(gj.child, gj.childAlias), tableRef(gj.parent, gj.parentAlias),
		gj.childAlias, gj.childKey, gj.parentAlias, gj.parentKey, gj.where, keys)
}

func tableRef(table, alias string) string {
	if alias == table {
		return table
	}
	return table + " " + alias
}

func matchGroupJoin(query string) (*groupJoin, bool) {
	s := extractor.Extract(query)
	having, ok := extractor.HavingClause(s.Base)
	if !ok {
		return nil, false
	}
	m := reHavingCount.FindStringSubmatch(strings.TrimSpace(having))
	if m == nil {
		return nil, false
	}
	threshold, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, false
	}
	group, ok := extractor.GroupByClause(s.Base)
	if !ok || len(s.Joins) != 1 || s.Joins[0].Outer() {
		return nil, false
	}
	g := s.Graph
	edges := g.Edges()
	if g.Len() != 2 || len(edges) != 1 {
		return nil, false
	}
	cond := reEdgeCond.FindStringSubmatch(edges[0].Cond)
	if cond == nil {
		return nil, false
	}
	joined := s.Joins[0].Table
	from := edges[0].Other(joined)

	gj := &groupJoin{aggregate: m[1], op: m[2], threshold: threshold}
	gj.where, _ = extractor.WhereBody(s.Base)
	switch {
	case groupedBy(group, g.Alias(from)):
		gj.parent, gj.child = from, joined
	case groupedBy(group, g.Alias(joined)):
		gj.parent, gj.child = joined, from
	default:
		return nil, false
	}
	gj.parentAlias, gj.childAlias = g.Alias(gj.parent), g.Alias(gj.child)
	if cond[1] == gj.parent {
		gj.parentKey, gj.childKey = cond[2], cond[4]
	} else {
		gj.parentKey, gj.childKey = cond[4], cond[2]
	}
	return gj, true
}

// groupedBy reports whether the GROUP BY list qualifies a column with alias.
func groupedBy(group, alias string) bool {
	for _, item := range strings.Split(group, ",") {
		item = strings.TrimSpace(item)
		if len(item) > len(alias) && strings.EqualFold(item[:len(alias)+1], alias+".") {
			return true
		}
	}
	return false
}
