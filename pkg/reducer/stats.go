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
	"maps"
	"slices"
)

// OverallName labels the aggregate row of a Result.
const OverallName = "OVERALL"

// Reduction is the size change of one table.
type Reduction struct {
	Table    string
	Original int64
	Reduced  int64
	Percent  float64
}

// NewReduction computes the reduction percentage of a table. The percentage
// is 0 when original is not positive and is clamped to [0, 100].
func NewReduction(table string, original, reduced int64) Reduction {
	return Reduction{
		Table:    table,
		Original: original,
		Reduced:  reduced,
		Percent:  percent(original, reduced),
	}
}

func percent(original, reduced int64) float64 {
	if original <= 0 {
		return 0
	}
	p := float64(original-reduced) / float64(original) * 100
	return min(max(p, 0), 100)
}

// Result maps table names to their reduction.
type Result map[string]Reduction

// Add records a reduction under its table name.
func (r Result) Add(red Reduction) {
	r[red.Table] = red
}

// Sorted returns the reductions ordered by table name.
func (r Result) Sorted() []Reduction {
	out := make([]Reduction, 0, len(r))
	for _, t := range slices.Sorted(maps.Keys(r)) {
		out = append(out, r[t])
	}
	return out
}

// Overall sums original and reduced sizes over all tables and recomputes the
// percentage from the sums.
func (r Result) Overall() Reduction {
	var original, reduced int64
	for _, red := range r {
		original += red.Original
		reduced += red.Reduced
	}
	return NewReduction(OverallName, original, reduced)
}
