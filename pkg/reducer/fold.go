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

package reducer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/joingraph"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// CompositeSeparator joins the two node names of a composite table.
const CompositeSeparator = "_JOIN_"

// Composite is a table materialized from the join of two graph nodes.
type Composite struct {
	Name  string
	Left  string
	Right string
	Cond  string
	// Members are the base tables folded into the composite.
	Members []string
	// Columns maps each member to the qualified names its columns carry in
	// the composite.
	Columns map[string][]string
	// Rows is the row count at materialization time.
	Rows int64
}

// Folding records the composites created while making a graph acyclic.
type Folding struct {
	Composites []*Composite

	byName map[string]*Composite
	// base table -> outermost composite holding it
	owner map[string]string
	// base table -> alias it had before folding
	aliases map[string]string
}

// NewFolding returns an empty Folding.
func NewFolding() *Folding {
	return &Folding{
		byName:  make(map[string]*Composite),
		owner:   make(map[string]string),
		aliases: make(map[string]string),
	}
}

// Composite returns the composite named name.
func (f *Folding) Composite(name string) (*Composite, bool) {
	if f == nil {
		return nil, false
	}
	c, ok := f.byName[name]
	return c, ok
}

// Owner returns the composite currently holding the base table.
func (f *Folding) Owner(table string) (string, bool) {
	if f == nil {
		return "", false
	}
	c, ok := f.owner[table]
	return c, ok
}

// BaseTables expands the nodes of g into base tables, replacing each
// composite by its members. The result maps every base table to the alias
// the query gives it.
func (f *Folding) BaseTables(g *joingraph.Graph) map[string]string {
	tables := make(map[string]string, g.Len())
	for _, node := range g.Tables() {
		c, ok := f.Composite(node)
		if !ok {
			tables[node] = g.Alias(node)
			continue
		}
		for _, m := range c.Members {
			tables[m] = f.aliases[m]
		}
	}
	return tables
}

// Folded reports whether any composite was created.
func (f *Folding) Folded() bool {
	return f != nil && len(f.Composites) > 0
}

// Fold joins pairs of nodes into composite tables until g is acyclic. Each
// step picks the highest-degree node and its highest-degree neighbour, ties
// going to the lexicographically smallest name. A failing step is logged and
// ends folding with g left as it is.
func Fold(ctx context.Context, b backend.Backend, g *joingraph.Graph) *Folding {
	f := NewFolding()
	logger := logutil.Logger(ctx)
	for g.IsCyclic() {
		t1, _ := g.MaxDegree(g.Tables())
		neighbors := g.Neighbors(t1)
		if len(neighbors) == 0 {
			logger.Warn("cyclic graph has no foldable pair", zap.String("table", t1))
			break
		}
		t2, _ := g.MaxDegree(neighbors)
		conds := g.Conditions(t1, t2)
		if len(conds) == 0 {
			logger.Warn("no join condition to fold on", zap.String("left", t1), zap.String("right", t2))
			break
		}
		c, err := f.materialize(ctx, b, t1, t2, conds)
		if err != nil {
			logger.Warn("fold failed", zap.String("left", t1), zap.String("right", t2),
				zap.Strings("conditions", conds), zap.Error(err))
			metrics.FoldCounter.WithLabelValues(metrics.LblFailed).Inc()
			break
		}
		metrics.FoldCounter.WithLabelValues(metrics.LblOK).Inc()
		f.rewire(g, c)
		logger.Info("folded join pair", zap.String("composite", c.Name), zap.Int64("rows", c.Rows),
			zap.Int("nodes", g.Len()), zap.Int("edges", g.EdgeCount()))
	}
	return f
}

// selectList returns the projection of node under alias inside a composite,
// with the members and qualified columns node contributes.
func (f *Folding) selectList(ctx context.Context, b backend.Backend, node, alias string) (string, map[string][]string, error) {
	if c, ok := f.byName[node]; ok {
		return alias + ".*", c.Columns, nil
	}
	cols, err := b.Columns(ctx, node)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	exprs := make([]string, len(cols))
	qualified := make([]string, len(cols))
	for i, col := range cols {
		qualified[i] = qualifiedColumn(node, col)
		exprs[i] = fmt.Sprintf("%s.%s AS %s", alias, col, qualified[i])
	}
	return strings.Join(exprs, ", "), map[string][]string{node: qualified}, nil
}

func (f *Folding) materialize(ctx context.Context, b backend.Backend, t1, t2 string, conds []string) (*Composite, error) {
	leftList, leftCols, err := f.selectList(ctx, b, t1, leftAlias)
	if err != nil {
		return nil, err
	}
	rightList, rightCols, err := f.selectList(ctx, b, t2, rightAlias)
	if err != nil {
		return nil, err
	}
	c := &Composite{
		Name:    t1 + CompositeSeparator + t2,
		Left:    t1,
		Right:   t2,
		Cond:    strings.Join(conds, " AND "),
		Columns: make(map[string][]string, len(leftCols)+len(rightCols)),
	}
	for _, cols := range []map[string][]string{leftCols, rightCols} {
		for member, qualified := range cols {
			c.Members = append(c.Members, member)
			c.Columns[member] = qualified
		}
	}
	slices.Sort(c.Members)

	on := renamePrefixes(c.Cond, map[string]string{t1: leftAlias, t2: rightAlias})
	query := fmt.Sprintf("SELECT %s, %s FROM %s %s JOIN %s %s ON %s",
		leftList, rightList, t1, leftAlias, t2, rightAlias, on)
	if err := b.CreateTableAs(ctx, c.Name, query); err != nil {
		return nil, err
	}
	rows, err := b.RowCount(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	c.Rows = rows
	b.SetOriginalSize(c.Name, rows)
	return c, nil
}

// qualify rewrites column references of t1 and t2 to the names they carry in
// the composite target. Base-table columns become `<table>__<column>`;
// columns of a composite are already qualified.
func (f *Folding) qualify(cond, t1, t2, target string) string {
	return rewriteColumns(cond, []string{t1, t2}, func(prefix, column string) string {
		if _, ok := f.byName[prefix]; ok {
			return target + "." + column
		}
		return target + "." + qualifiedColumn(prefix, column)
	})
}

// rewire replaces c.Left and c.Right by c in g. Edges between them become
// internal to c and are dropped; every other edge touching them is redirected
// to c with its condition rewritten onto the composite's columns.
func (f *Folding) rewire(g *joingraph.Graph, c *Composite) {
	var edges []joingraph.Edge
	for _, e := range g.Edges() {
		if e.Connects(c.Left, c.Right) {
			continue
		}
		if !e.Touches(c.Left) && !e.Touches(c.Right) {
			edges = append(edges, e)
			continue
		}
		ne := joingraph.Edge{Left: e.Left, Right: e.Right, Cond: f.qualify(e.Cond, c.Left, c.Right, c.Name)}
		if ne.Left == c.Left || ne.Left == c.Right {
			ne.Left = c.Name
		}
		if ne.Right == c.Left || ne.Right == c.Right {
			ne.Right = c.Name
		}
		edges = append(edges, ne)
	}
	for _, t := range []string{c.Left, c.Right} {
		if _, ok := f.byName[t]; !ok {
			f.aliases[t] = g.Alias(t)
		}
	}
	g.RemoveTable(c.Left)
	g.RemoveTable(c.Right)
	g.AddTable(c.Name, "")
	g.ReplaceEdges(edges)

	f.Composites = append(f.Composites, c)
	f.byName[c.Name] = c
	for _, m := range c.Members {
		f.owner[m] = c.Name
	}
}
