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
	"maps"
	"slices"

	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/extractor"
	"github.com/pingcap/tuplereduce/pkg/joingraph"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// Pushdown applies the WHERE predicate of query as a filter on the one table
// it references, before any semi-join runs. g may already be folded by f, in
// which case a predicate on a folded table filters its composite. A
// predicate referencing several tables, or none, is left alone. It returns
// the tables filtered.
func Pushdown(ctx context.Context, b backend.Backend, query string, g *joingraph.Graph, f *Folding) []string {
	logger := logutil.Logger(ctx)
	body, ok := extractor.WhereBody(query)
	if !ok || body == "" {
		return nil
	}

	tables := f.BaseTables(g)
	var referenced []string
	for _, t := range slices.Sorted(maps.Keys(tables)) {
		if mentions(body, tables[t], t) {
			referenced = append(referenced, t)
		}
	}
	if len(referenced) != 1 {
		if len(referenced) > 1 {
			logger.Debug("predicate spans several tables, not pushed down",
				zap.Strings("tables", referenced), zap.String("predicate", body))
			metrics.PushdownCounter.WithLabelValues(metrics.LblSkipped).Inc()
		}
		return nil
	}

	table := referenced[0]
	prefixes := []string{tables[table], table}
	target := table
	if owner, ok := f.Owner(table); ok {
		target = owner
	}
	pred := rewriteColumns(body, prefixes, func(_, column string) string {
		if target != table {
			return target + "." + qualifiedColumn(table, column)
		}
		return table + "." + column
	})

	filter := fmt.Sprintf("SELECT * FROM %s WHERE %s", target, pred)
	if err := b.ReplaceTable(ctx, target, filter); err != nil {
		logger.Warn("selection pushdown failed", zap.String("table", table),
			zap.String("target", target), zap.String("predicate", pred), zap.Error(err))
		metrics.PushdownCounter.WithLabelValues(metrics.LblFailed).Inc()
		return nil
	}
	metrics.PushdownCounter.WithLabelValues(metrics.LblOK).Inc()
	logger.Info("pushed down selection", zap.String("table", table),
		zap.String("target", target), zap.String("predicate", pred))
	return []string{table}
}
