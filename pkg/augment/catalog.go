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

package augment

import "strings"

// Kind tells how an augmented function is used inside a query.
type Kind int

const (
	// KindFilter functions are boolean predicates used in WHERE/HAVING/ON.
	KindFilter Kind = iota
	// KindProjection functions produce a value bound to a SELECT-list alias,
	// aggregates included.
	KindProjection
)

func (k Kind) String() string {
	switch k {
	case KindFilter:
		return "filter"
	case KindProjection:
		return "projection"
	}
	return "unknown"
}

// Catalog lists the augmented function names the stripper recognizes.
type Catalog struct {
	Filters     []string `toml:"filter-functions" json:"filter-functions"`
	Projections []string `toml:"projection-functions" json:"projection-functions"`
}

// DefaultCatalog returns the Flock LLM function set.
func DefaultCatalog() Catalog {
	return Catalog{
		Filters: []string{"llm_filter"},
		Projections: []string{
			"llm_complete",
			"llm_complete_json",
			"llm_reduce",
			"llm_reduce_json",
			"llm_rerank",
			"llm_first",
			"llm_last",
			"llm_embedding",
		},
	}
}

func (c Catalog) index() map[string]Kind {
	m := make(map[string]Kind, len(c.Filters)+len(c.Projections))
	for _, name := range c.Projections {
		m[strings.ToLower(name)] = KindProjection
	}
	for _, name := range c.Filters {
		m[strings.ToLower(name)] = KindFilter
	}
	return m
}
