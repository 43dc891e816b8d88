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

// Package joingraph holds the join graph recovered from a query: the tables it
// reads, the aliases they are referenced by and the equi-join predicates that
// connect them.
package joingraph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Edge is a join predicate between two tables. Cond keeps the raw predicate
// text with table-name prefixes.
type Edge struct {
	Left  string
	Right string
	Cond  string
}

// Touches reports whether the edge has table as one of its endpoints.
func (e Edge) Touches(table string) bool {
	return e.Left == table || e.Right == table
}

// Other returns the endpoint opposite to table.
func (e Edge) Other(table string) string {
	if e.Left == table {
		return e.Right
	}
	return e.Left
}

// Connects reports whether the edge joins a and b, in either orientation.
func (e Edge) Connects(a, b string) bool {
	return (e.Left == a && e.Right == b) || (e.Left == b && e.Right == a)
}

// Graph is an undirected multigraph of tables. Multiple edges between the same
// pair are allowed: a join may carry several predicates, and folding can leave
// parallel edges behind.
//
// A Graph is built for a single query and is not safe for concurrent use.
type Graph struct {
	nodes   map[string]struct{}
	edges   []Edge
	aliases map[string]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		aliases: make(map[string]string),
	}
}

// AddTable registers table as a node. The alias is only recorded when it is
// non-empty and differs from the table name.
func (g *Graph) AddTable(table, alias string) {
	g.nodes[table] = struct{}{}
	if alias != "" && alias != table {
		g.aliases[table] = alias
	}
}

// AddEdge registers a join predicate between two tables. Both endpoints are
// added as nodes if they are not known yet.
func (g *Graph) AddEdge(a, b, cond string) {
	g.nodes[a] = struct{}{}
	g.nodes[b] = struct{}{}
	g.edges = append(g.edges, Edge{Left: a, Right: b, Cond: cond})
}

// HasTable reports whether table is a node of the graph.
func (g *Graph) HasTable(table string) bool {
	_, ok := g.nodes[table]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges, parallel edges included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Empty reports whether the graph has no nodes.
func (g *Graph) Empty() bool { return len(g.nodes) == 0 }

// Tables returns the nodes in lexicographic order.
func (g *Graph) Tables() []string {
	return slices.Sorted(maps.Keys(g.nodes))
}

// Edges returns a copy of the edge list in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Alias returns the alias registered for table, or the table name itself.
func (g *Graph) Alias(table string) string {
	if alias, ok := g.aliases[table]; ok {
		return alias
	}
	return table
}

// Aliases returns a copy of the table -> alias mapping.
func (g *Graph) Aliases() map[string]string {
	return maps.Clone(g.aliases)
}

// ResolveAlias maps a qualifier used in the query text back to a table name.
// An alias wins over a table of the same name; a bare table name resolves to
// itself. It returns false when the token is neither.
func (g *Graph) ResolveAlias(token string) (string, bool) {
	for _, table := range g.Tables() {
		if g.aliases[table] == token {
			return table, true
		}
	}
	if g.HasTable(token) {
		return token, true
	}
	return "", false
}

// IsCyclic reports whether the graph contains a cycle, using the tree counting
// rule: a connected acyclic graph on N nodes has exactly N-1 edges, so E >= N
// implies a cycle or a redundant parallel edge. An empty graph is not cyclic.
func (g *Graph) IsCyclic() bool {
	if len(g.nodes) == 0 {
		return false
	}
	return len(g.edges) >= len(g.nodes)
}

// Neighbors returns the distinct tables joined with table, sorted.
func (g *Graph) Neighbors(table string) []string {
	seen := make(map[string]struct{})
	for _, e := range g.edges {
		if e.Touches(table) && e.Other(table) != table {
			seen[e.Other(table)] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Degree is the number of distinct neighbours of table.
func (g *Graph) Degree(table string) int {
	return len(g.Neighbors(table))
}

// Condition returns the first predicate joining a and b in either orientation.
func (g *Graph) Condition(a, b string) (string, bool) {
	for _, e := range g.edges {
		if e.Connects(a, b) {
			return e.Cond, true
		}
	}
	return "", false
}

// Conditions returns every predicate joining a and b, in insertion order.
func (g *Graph) Conditions(a, b string) []string {
	var conds []string
	for _, e := range g.edges {
		if e.Connects(a, b) {
			conds = append(conds, e.Cond)
		}
	}
	return conds
}

// MaxDegree picks the table with the highest degree among candidates. Ties are
// broken by the lexicographically smallest name so that root and fold choices
// do not depend on map iteration order.
func (g *Graph) MaxDegree(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sorted := slices.Sorted(slices.Values(candidates))
	best, bestDeg := sorted[0], g.Degree(sorted[0])
	for _, t := range sorted[1:] {
		if d := g.Degree(t); d > bestDeg {
			best, bestDeg = t, d
		}
	}
	return best, true
}

// RemoveTable drops a node together with its alias. Edges are left untouched;
// callers rewrite them with ReplaceEdges.
func (g *Graph) RemoveTable(table string) {
	delete(g.nodes, table)
	delete(g.aliases, table)
}

// ReplaceEdges swaps the edge list. Endpoints that are not nodes yet are
// added.
func (g *Graph) ReplaceEdges(edges []Edge) {
	g.edges = g.edges[:0:0]
	for _, e := range edges {
		g.AddEdge(e.Left, e.Right, e.Cond)
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	return &Graph{
		nodes:   maps.Clone(g.nodes),
		edges:   slices.Clone(g.edges),
		aliases: maps.Clone(g.aliases),
	}
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("nodes: ")
	for i, t := range g.Tables() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t)
		if alias, ok := g.aliases[t]; ok {
			fmt.Fprintf(&sb, " (%s)", alias)
		}
	}
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "\n  %s -- %s: %s", e.Left, e.Right, e.Cond)
	}
	return sb.String()
}
