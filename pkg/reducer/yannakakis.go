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

// Package reducer runs Yannakakis' full reducer over a join graph: tables are
// replaced in place by semi-joins until each one only holds rows taking part
// in the join. It also makes cyclic graphs acyclic by folding, and pushes
// single-table selections down before the semi-joins run.
package reducer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/joingraph"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// JoinTree is a BFS spanning tree of one connected component.
type JoinTree struct {
	Root string
	// Order lists the nodes in BFS order, Root first.
	Order  []string
	Parent map[string]string
}

// SpanningForest builds one BFS tree per connected component of g. Each tree
// is rooted at the highest-degree node not covered yet, ties going to the
// lexicographically smallest name; neighbours are visited in name order.
func SpanningForest(g *joingraph.Graph) []JoinTree {
	visited := make(map[string]bool, g.Len())
	var forest []JoinTree
	for {
		var remaining []string
		for _, t := range g.Tables() {
			if !visited[t] {
				remaining = append(remaining, t)
			}
		}
		root, ok := g.MaxDegree(remaining)
		if !ok {
			return forest
		}
		tree := JoinTree{Root: root, Parent: make(map[string]string)}
		visited[root] = true
		queue := []string{root}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			tree.Order = append(tree.Order, node)
			for _, n := range g.Neighbors(node) {
				if visited[n] {
					continue
				}
				visited[n] = true
				tree.Parent[n] = node
				queue = append(queue, n)
			}
		}
		forest = append(forest, tree)
	}
}

// Reduce runs the full reducer over the acyclic graph g and returns the
// reduction of every base table. For each tree, the bottom-up pass visits
// nodes in reverse BFS order and semi-joins each parent with the node; the
// top-down pass visits them in BFS order and semi-joins each node with its
// parent. A failing semi-join is logged and skipped. Composite nodes of f are
// reported through their base members.
func Reduce(ctx context.Context, b backend.Backend, g *joingraph.Graph, f *Folding) Result {
	if g.Empty() {
		return Result{}
	}
	for _, tree := range SpanningForest(g) {
		for _, node := range slices.Backward(tree.Order[1:]) {
			parent := tree.Parent[node]
			semiJoinStep(ctx, b, g, parent, node)
		}
		for _, node := range tree.Order[1:] {
			semiJoinStep(ctx, b, g, node, tree.Parent[node])
		}
	}
	return Statistics(ctx, b, g, f)
}

func semiJoinStep(ctx context.Context, b backend.Backend, g *joingraph.Graph, left, right string) {
	logger := logutil.Logger(ctx)
	conds := g.Conditions(left, right)
	if len(conds) == 0 {
		logger.Warn("no join condition, semi-join skipped", zap.String("left", left), zap.String("right", right))
		metrics.SemiJoinCounter.WithLabelValues(metrics.LblSkipped).Inc()
		return
	}
	if err := SemiJoin(ctx, b, left, right, conds); err != nil {
		logger.Warn("semi-join failed", zap.String("left", left), zap.String("right", right),
			zap.Strings("conditions", conds), zap.Error(err))
		metrics.SemiJoinCounter.WithLabelValues(metrics.LblFailed).Inc()
		return
	}
	metrics.SemiJoinCounter.WithLabelValues(metrics.LblOK).Inc()
	logger.Debug("semi-join", zap.String("left", left), zap.String("right", right))
}

// Statistics compares the current size of every node of g against its size at
// load time. A composite contributes one entry per base member, sized by the
// distinct member rows it still holds. A count that fails is logged and read
// as 0.
func Statistics(ctx context.Context, b backend.Backend, g *joingraph.Graph, f *Folding) Result {
	res := make(Result, g.Len())
	for _, node := range g.Tables() {
		c, ok := f.Composite(node)
		if !ok {
			original, _ := b.OriginalSize(node)
			res.Add(NewReduction(node, original, countRows(ctx, b, node, fmt.Sprintf("SELECT COUNT(*) FROM %s", node))))
			continue
		}
		for _, m := range c.Members {
			original, _ := b.OriginalSize(m)
			query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s) t",
				strings.Join(c.Columns[m], ", "), node)
			res.Add(NewReduction(m, original, countRows(ctx, b, m, query)))
		}
	}
	return res
}

func countRows(ctx context.Context, b backend.Backend, table, query string) int64 {
	n, err := b.QueryInt64(ctx, query)
	if err != nil {
		logutil.Logger(ctx).Warn("failed to count reduced rows", zap.String("table", table), zap.Error(err))
		return 0
	}
	return n
}
