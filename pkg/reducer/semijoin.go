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
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/backend"
)

// Aliases the semi-join query binds its two sides to.
const (
	leftAlias  = "l"
	rightAlias = "r"
)

// SemiJoinQuery builds left ⋉ right: the distinct rows of left having a match
// in right under every condition. Conditions use table-name prefixes.
func SemiJoinQuery(left, right string, conds []string) string {
	cond := renamePrefixes(strings.Join(conds, " AND "), map[string]string{
		left:  leftAlias,
		right: rightAlias,
	})
	return fmt.Sprintf("SELECT DISTINCT %s.* FROM %s %s WHERE EXISTS (SELECT 1 FROM %s %s WHERE %s)",
		leftAlias, left, leftAlias, right, rightAlias, cond)
}

// SemiJoin replaces left by left ⋉ right. The column set of left is kept.
func SemiJoin(ctx context.Context, b backend.Backend, left, right string, conds []string) error {
	if len(conds) == 0 {
		return errors.Errorf("no join condition between %s and %s", left, right)
	}
	return b.ReplaceTable(ctx, left, SemiJoinQuery(left, right, conds))
}
