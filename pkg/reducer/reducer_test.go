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

package reducer_test

import (
	"context"
	"testing"

	"github.com/pingcap/tuplereduce/pkg/extractor"
	"github.com/pingcap/tuplereduce/pkg/joingraph"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/pingcap/tuplereduce/pkg/reducer"
	"github.com/pingcap/tuplereduce/pkg/testkit"
	"github.com/stretchr/testify/require"
)

func newTestKit(t *testing.T) *testkit.TestKit {
	return testkit.NewTestKit(t, testkit.CreateMockBackend(t))
}

func prepareOrders(tk *testkit.TestKit) *joingraph.Graph {
	tk.MustCreateTable("customers", "id INT, name VARCHAR",
		"(1, 'Alice'), (2, 'Bob'), (3, 'Charlie'), (4, 'Diana')")
	tk.MustCreateTable("orders", "id INT, customer_id INT, amount DOUBLE",
		"(10, 1, 100.0), (11, 1, 200.0), (12, 2, 50.0), (13, 5, 75.0), (14, 6, 300.0)")
	g := joingraph.New()
	g.AddTable("orders", "")
	g.AddTable("customers", "")
	g.AddEdge("orders", "customers", "orders.customer_id = customers.id")
	return g
}

func requireReduced(t *testing.T, res reducer.Result, table string, original, reduced int64) {
	r, ok := res[table]
	require.True(t, ok, "missing %s in %v", table, res)
	require.Equal(t, original, r.Original, table)
	require.Equal(t, reduced, r.Reduced, table)
}

func TestSemiJoin(t *testing.T) {
	tk := newTestKit(t)
	prepareOrders(tk)
	ctx := context.Background()

	require.NoError(t, reducer.SemiJoin(ctx, tk.Backend(), "orders", "customers",
		[]string{"orders.customer_id = customers.id"}))
	tk.MustQuery("SELECT id FROM orders ORDER BY id").Check(testkit.Rows("10", "11", "12"))
	// the left schema is kept
	tk.MustQuery("SELECT * FROM orders ORDER BY id LIMIT 1").Check(testkit.Rows("10 1 100"))

	require.NoError(t, reducer.SemiJoin(ctx, tk.Backend(), "customers", "orders",
		[]string{"orders.customer_id = customers.id"}))
	tk.MustQuery("SELECT name FROM customers ORDER BY id").Check(testkit.Rows("Alice", "Bob"))

	// idempotent once reduced
	require.NoError(t, reducer.SemiJoin(ctx, tk.Backend(), "orders", "customers",
		[]string{"orders.customer_id = customers.id"}))
	require.Equal(t, int64(3), tk.MustCount("orders"))

	require.Error(t, reducer.SemiJoin(ctx, tk.Backend(), "orders", "customers", nil))
}

func TestSemiJoinEdgeCases(t *testing.T) {
	tk := newTestKit(t)
	ctx := context.Background()
	tk.MustCreateTable("left_t", "id INT, val INT", "(1, 10), (1, 10), (2, 20)")
	tk.MustCreateTable("right_t", "id INT", "(1), (3)")
	tk.MustCreateTable("none_t", "id INT", "(99)")

	require.NoError(t, reducer.SemiJoin(ctx, tk.Backend(), "left_t", "right_t", []string{"left_t.id = right_t.id"}))
	// duplicates collapse
	tk.MustQuery("SELECT * FROM left_t").Check(testkit.Rows("1 10"))

	require.NoError(t, reducer.SemiJoin(ctx, tk.Backend(), "left_t", "none_t", []string{"left_t.id = none_t.id"}))
	require.Equal(t, int64(0), tk.MustCount("left_t"))
}

func TestReduceTwoTables(t *testing.T) {
	tk := newTestKit(t)
	g := prepareOrders(tk)

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	require.Len(t, res, 2)
	requireReduced(t, res, "orders", 5, 3)
	requireReduced(t, res, "customers", 4, 2)
	require.InDelta(t, 40.0, res["orders"].Percent, 1e-9)
	require.InDelta(t, 50.0, res["customers"].Percent, 1e-9)
}

func TestReduceMixedCaseTableNames(t *testing.T) {
	tk := newTestKit(t)
	prepareOrders(tk)
	g := extractor.ExtractGraph("SELECT * FROM Orders o JOIN CUSTOMERS c ON o.customer_id = c.id")

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	require.Len(t, res, 2)
	requireReduced(t, res, "Orders", 5, 3)
	requireReduced(t, res, "CUSTOMERS", 4, 2)
	require.InDelta(t, 40.0, res["Orders"].Percent, 1e-9)
}

func TestReduceChain(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("c", "id INT", "(1), (2)")
	tk.MustCreateTable("b", "id INT, c_id INT", "(10, 1), (11, 2), (12, 3), (13, 999)")
	tk.MustCreateTable("a", "id INT, b_id INT", "(100, 10), (101, 11), (102, 12), (103, 13), (104, 777), (105, 888)")
	g := joingraph.New()
	for _, name := range []string{"a", "b", "c"} {
		g.AddTable(name, "")
	}
	g.AddEdge("a", "b", "a.b_id = b.id")
	g.AddEdge("b", "c", "b.c_id = c.id")

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	requireReduced(t, res, "a", 6, 2)
	requireReduced(t, res, "b", 4, 2)
	requireReduced(t, res, "c", 2, 2)
	tk.MustQuery("SELECT id FROM a ORDER BY id").Check(testkit.Rows("100", "101"))
}

func TestReduceStarWithoutCommonSurvivor(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("center", "id INT", "(1), (2), (3), (4), (5)")
	tk.MustCreateTable("leaf1", "id INT, center_id INT", "(10, 1), (11, 2), (12, 99)")
	tk.MustCreateTable("leaf2", "id INT, center_id INT", "(20, 2), (21, 3), (22, 88)")
	tk.MustCreateTable("leaf3", "id INT, center_id INT", "(30, 1), (31, 77)")
	g := joingraph.New()
	g.AddTable("center", "")
	for _, leaf := range []string{"leaf1", "leaf2", "leaf3"} {
		g.AddTable(leaf, "")
		g.AddEdge("center", leaf, "center.id = "+leaf+".center_id")
	}

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	require.Len(t, res, 4)
	for _, r := range res {
		require.Equal(t, int64(0), r.Reduced, r.Table)
	}
	require.InDelta(t, 100.0, res.Overall().Percent, 1e-9)
}

func TestReduceFullyJoined(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("parents", "id INT", "(1), (2)")
	tk.MustCreateTable("children", "id INT, parent_id INT", "(10, 1), (11, 2)")
	g := joingraph.New()
	g.AddTable("parents", "")
	g.AddTable("children", "")
	g.AddEdge("parents", "children", "parents.id = children.parent_id")

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	requireReduced(t, res, "parents", 2, 2)
	requireReduced(t, res, "children", 2, 2)
	require.Equal(t, 0.0, res["parents"].Percent)
	require.Equal(t, 0.0, res["children"].Percent)
}

func TestReduceSingleAndEmpty(t *testing.T) {
	tk := newTestKit(t)
	ctx := context.Background()
	require.Empty(t, reducer.Reduce(ctx, tk.Backend(), joingraph.New(), nil))

	tk.MustCreateTable("solo", "id INT", "(1), (2), (3)")
	tk.MustCreateTable("nothing", "id INT", "")
	g := joingraph.New()
	g.AddTable("solo", "")
	res := reducer.Reduce(ctx, tk.Backend(), g, nil)
	require.Equal(t, reducer.Reduction{Table: "solo", Original: 3, Reduced: 3}, res["solo"])

	g = joingraph.New()
	g.AddTable("nothing", "")
	g.AddTable("solo", "")
	g.AddEdge("solo", "nothing", "solo.id = nothing.id")
	res = reducer.Reduce(ctx, tk.Backend(), g, nil)
	require.Equal(t, reducer.Reduction{Table: "nothing"}, res["nothing"])
	requireReduced(t, res, "solo", 3, 0)
}

func TestReduceForest(t *testing.T) {
	tk := newTestKit(t)
	g := prepareOrders(tk)
	tk.MustCreateTable("regions", "id INT", "(1), (2)")
	g.AddTable("regions", "")

	forest := reducer.SpanningForest(g)
	require.Len(t, forest, 2)
	require.Equal(t, "customers", forest[0].Root)
	require.Equal(t, []string{"customers", "orders"}, forest[0].Order)
	require.Equal(t, "customers", forest[0].Parent["orders"])
	require.Equal(t, "regions", forest[1].Root)

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	requireReduced(t, res, "orders", 5, 3)
	requireReduced(t, res, "regions", 2, 2)
}

func TestSpanningForestPicksHub(t *testing.T) {
	g := joingraph.New()
	g.AddEdge("a", "hub", "a.id = hub.a_id")
	g.AddEdge("b", "hub", "b.id = hub.b_id")
	g.AddEdge("b", "c", "b.id = c.b_id")

	forest := reducer.SpanningForest(g)
	require.Len(t, forest, 1)
	// b and hub both have degree 2
	require.Equal(t, "b", forest[0].Root)
	require.Equal(t, []string{"b", "c", "hub", "a"}, forest[0].Order)
	require.Equal(t, "hub", forest[0].Parent["a"])
}

func TestFoldAcyclicGraphUnchanged(t *testing.T) {
	tk := newTestKit(t)
	g := prepareOrders(tk)
	f := reducer.Fold(context.Background(), tk.Backend(), g)
	require.False(t, f.Folded())
	require.Equal(t, []string{"customers", "orders"}, g.Tables())
	require.Equal(t, 1, g.EdgeCount())
}

func TestFoldTriangle(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("x", "id INT, y_id INT, z_id INT", "(1, 1, 1)")
	tk.MustCreateTable("y", "id INT, z_id INT", "(1, 1)")
	tk.MustCreateTable("z", "id INT", "(1)")
	g := joingraph.New()
	for _, name := range []string{"x", "y", "z"} {
		g.AddTable(name, "")
	}
	g.AddEdge("x", "y", "x.y_id = y.id")
	g.AddEdge("y", "z", "y.z_id = z.id")
	g.AddEdge("x", "z", "x.z_id = z.id")
	require.True(t, g.IsCyclic())

	ctx := context.Background()
	f := reducer.Fold(ctx, tk.Backend(), g)
	require.False(t, g.IsCyclic())
	require.True(t, f.Folded())

	first, ok := f.Composite("x_JOIN_y")
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, first.Members)
	require.Equal(t, []string{"y__id", "y__z_id"}, first.Columns["y"])
	require.Equal(t, int64(1), first.Rows)

	owner, ok := f.Owner("z")
	require.True(t, ok)
	require.Equal(t, "x_JOIN_y_JOIN_z", owner)
	owner, _ = f.Owner("x")
	require.Equal(t, "x_JOIN_y_JOIN_z", owner)
	require.Equal(t, []string{"x_JOIN_y_JOIN_z"}, g.Tables())

	res := reducer.Reduce(ctx, tk.Backend(), g, f)
	require.Len(t, res, 3)
	for _, name := range []string{"x", "y", "z"} {
		requireReduced(t, res, name, 1, 1)
	}
}

func TestFoldTriangleReducesMembers(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("departments", "id INT, name VARCHAR", "(1, 'eng'), (2, 'ops'), (3, 'hr')")
	tk.MustCreateTable("employees", "id INT, dept_id INT", "(10, 1), (11, 1), (12, 2)")
	tk.MustCreateTable("projects", "id INT, dept_id INT, lead_id INT", "(100, 1, 10), (101, 2, 99)")
	query := `SELECT p.id FROM employees e
JOIN departments d ON e.dept_id = d.id
JOIN projects p ON p.dept_id = d.id AND p.lead_id = e.id`
	g := extractor.ExtractGraph(query)
	require.True(t, g.IsCyclic())

	ctx := context.Background()
	f := reducer.Fold(ctx, tk.Backend(), g)
	require.Len(t, f.Composites, 2)
	require.Equal(t, "departments_JOIN_employees", f.Composites[0].Name)
	require.Equal(t, int64(3), f.Composites[0].Rows)
	require.Equal(t, "departments_JOIN_employees_JOIN_projects", f.Composites[1].Name)
	require.Equal(t, int64(1), f.Composites[1].Rows)
	orig, ok := tk.Backend().OriginalSize("departments_JOIN_employees_JOIN_projects")
	require.True(t, ok)
	require.Equal(t, int64(1), orig)

	res := reducer.Reduce(ctx, tk.Backend(), g, f)
	requireReduced(t, res, "departments", 3, 1)
	requireReduced(t, res, "employees", 3, 1)
	requireReduced(t, res, "projects", 2, 1)
	require.NotContains(t, res, "departments_JOIN_employees_JOIN_projects")
}

func TestPushdownSingleTable(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("tags", "id INT, tag_name VARCHAR",
		"(1, 'mystery'), (2, 'romance'), (3, 'sci-fi'), (4, 'mystery-thriller')")
	tk.MustCreateTable("books", "id INT, title VARCHAR", "(10, 'Book A'), (11, 'Book B')")
	g := joingraph.New()
	g.AddTable("tags", "t")
	g.AddTable("books", "b")
	g.AddEdge("tags", "books", "tags.id = books.id")

	pushedBefore := metrics.ReadCounter(metrics.PushdownCounter.WithLabelValues(metrics.LblOK))
	query := "SELECT * FROM tags t JOIN books b ON t.id = b.id WHERE lower(t.tag_name) LIKE '%mystery%'"
	pushed := reducer.Pushdown(context.Background(), tk.Backend(), query, g, nil)
	require.Equal(t, []string{"tags"}, pushed)
	require.Equal(t, pushedBefore+1, metrics.ReadCounter(metrics.PushdownCounter.WithLabelValues(metrics.LblOK)))
	require.Equal(t, int64(2), tk.MustCount("tags"))
	require.Equal(t, int64(2), tk.MustCount("books"))
}

func TestPushdownSkipsMultiTablePredicate(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("aa", "id INT, val INT", "(1, 10), (2, 20)")
	tk.MustCreateTable("bb", "id INT, val INT", "(1, 10), (2, 20)")
	g := joingraph.New()
	g.AddTable("aa", "a")
	g.AddTable("bb", "b")
	g.AddEdge("aa", "bb", "aa.id = bb.id")

	skippedBefore := metrics.ReadCounter(metrics.PushdownCounter.WithLabelValues(metrics.LblSkipped))
	query := "SELECT * FROM aa a JOIN bb b ON a.id = b.id WHERE a.val = b.val"
	require.Empty(t, reducer.Pushdown(context.Background(), tk.Backend(), query, g, nil))
	require.Equal(t, skippedBefore+1, metrics.ReadCounter(metrics.PushdownCounter.WithLabelValues(metrics.LblSkipped)))
	require.Equal(t, int64(2), tk.MustCount("aa"))
	require.Equal(t, int64(2), tk.MustCount("bb"))
}

func TestPushdownWithoutAlias(t *testing.T) {
	tk := newTestKit(t)
	ctx := context.Background()
	tk.MustCreateTable("items", "id INT, price DOUBLE", "(1, 5.0), (2, 15.0), (3, 25.0)")
	g := joingraph.New()
	g.AddTable("items", "")

	require.Empty(t, reducer.Pushdown(ctx, tk.Backend(), "SELECT * FROM items", g, nil))
	require.Equal(t, int64(3), tk.MustCount("items"))

	pushed := reducer.Pushdown(ctx, tk.Backend(), "SELECT * FROM items WHERE items.price > 10 ORDER BY id", g, nil)
	require.Equal(t, []string{"items"}, pushed)
	require.Equal(t, int64(2), tk.MustCount("items"))
}

func TestPushdownBadPredicateIsNoop(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("items", "id INT", "(1), (2)")
	g := joingraph.New()
	g.AddTable("items", "")

	query := "SELECT * FROM items WHERE items.missing_column > 10"
	require.Empty(t, reducer.Pushdown(context.Background(), tk.Backend(), query, g, nil))
	require.Equal(t, int64(2), tk.MustCount("items"))
	tk.MustQuery("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'items_reduced'").
		Check(testkit.Rows("0"))
}

func TestPushdownCascades(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("tags", "id INT, tag_name VARCHAR",
		"(1, 'mystery'), (2, 'romance'), (3, 'sci-fi'), (4, 'horror'), (5, 'poetry')")
	tk.MustCreateTable("book_tags", "book_id INT, tag_id INT", "(10, 1), (11, 2), (12, 3)")
	tk.MustCreateTable("books", "id INT", "(10), (11), (12), (13)")
	query := `SELECT b.id FROM books b
JOIN book_tags bt ON b.id = bt.book_id
JOIN tags t ON bt.tag_id = t.id
WHERE t.tag_name = 'mystery'`
	ctx := context.Background()
	g := extractor.ExtractGraph(query)

	require.Equal(t, []string{"tags"}, reducer.Pushdown(ctx, tk.Backend(), query, g, nil))
	res := reducer.Reduce(ctx, tk.Backend(), g, nil)
	requireReduced(t, res, "tags", 5, 1)
	requireReduced(t, res, "book_tags", 3, 1)
	requireReduced(t, res, "books", 4, 1)
}

func TestPushdownWordBoundary(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("tags", "id INT, tag_name VARCHAR", "(1, 'a'), (2, 'b'), (3, 'c')")
	tk.MustCreateTable("book_tags", "book_id INT, tag_id INT", "(10, 1), (11, 2), (12, 3)")
	g := joingraph.New()
	g.AddTable("book_tags", "")
	g.AddTable("tags", "")
	g.AddEdge("book_tags", "tags", "book_tags.tag_id = tags.id")

	query := "SELECT * FROM book_tags JOIN tags ON book_tags.tag_id = tags.id WHERE book_tags.book_id < 12"
	require.Equal(t, []string{"book_tags"}, reducer.Pushdown(context.Background(), tk.Backend(), query, g, nil))
	require.Equal(t, int64(2), tk.MustCount("book_tags"))
	require.Equal(t, int64(3), tk.MustCount("tags"))

	res := reducer.Reduce(context.Background(), tk.Backend(), g, nil)
	requireReduced(t, res, "book_tags", 3, 2)
	requireReduced(t, res, "tags", 3, 2)
}

func TestPushdownIntoComposite(t *testing.T) {
	tk := newTestKit(t)
	tk.MustCreateTable("x", "id INT, y_id INT, z_id INT", "(1, 1, 1), (2, 2, 2)")
	tk.MustCreateTable("y", "id INT, z_id INT", "(1, 1), (2, 2)")
	tk.MustCreateTable("z", "id INT, label VARCHAR", "(1, 'keep'), (2, 'drop')")
	query := `SELECT * FROM x JOIN y ON x.y_id = y.id JOIN z ON y.z_id = z.id AND x.z_id = z.id WHERE z.label = 'keep'`
	ctx := context.Background()
	g := extractor.ExtractGraph(query)
	f := reducer.Fold(ctx, tk.Backend(), g)
	require.True(t, f.Folded())

	require.Equal(t, []string{"z"}, reducer.Pushdown(ctx, tk.Backend(), query, g, f))
	res := reducer.Reduce(ctx, tk.Backend(), g, f)
	requireReduced(t, res, "x", 2, 1)
	requireReduced(t, res, "y", 2, 1)
	requireReduced(t, res, "z", 2, 1)
}
