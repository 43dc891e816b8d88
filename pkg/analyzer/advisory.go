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

package analyzer

import (
	"fmt"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/extractor"
)

// AdvisoryKind classifies the query features that make the reported
// reduction differ from what the augmented operators would actually see.
type AdvisoryKind int

// Advisory kinds.
const (
	AdvisoryLimit AdvisoryKind = iota
	AdvisoryCrossJoin
	AdvisoryOuterJoin
	AdvisoryNoTables
)

// String implements fmt.Stringer.
func (k AdvisoryKind) String() string {
	switch k {
	case AdvisoryLimit:
		return "limit"
	case AdvisoryCrossJoin:
		return "cross-join"
	case AdvisoryOuterJoin:
		return "outer-join"
	case AdvisoryNoTables:
		return "no-tables"
	}
	return fmt.Sprintf("AdvisoryKind(%d)", int(k))
}

// Advisory is a warning attached to an Analysis.
type Advisory struct {
	Kind    AdvisoryKind
	Message string
}

func advisories(baseline string, s *extractor.Structure) []Advisory {
	var out []Advisory
	if n, ok := extractor.HasLimit(baseline); ok {
		out = append(out, Advisory{
			Kind: AdvisoryLimit,
			Message: fmt.Sprintf("query has LIMIT %d: augmented operators only process rows up to the limit, "+
				"whatever the table-level reduction", n),
		})
	}
	if extractor.HasCrossJoin(baseline) {
		msg := "query has a CROSS JOIN: Cartesian products cannot be reduced by semi-joins"
		if tables := s.CrossJoinedTables(); len(tables) > 0 {
			msg += fmt.Sprintf(", %s reported at full size", strings.Join(tables, ", "))
		}
		out = append(out, Advisory{Kind: AdvisoryCrossJoin, Message: msg})
	}
	if tables := s.OuterJoinedTables(); len(tables) > 0 {
		out = append(out, Advisory{
			Kind: AdvisoryOuterJoin,
			Message: fmt.Sprintf("outer join on %s is reduced as an inner join, the reduction is an upper bound",
				strings.Join(tables, ", ")),
		})
	}
	return out
}
