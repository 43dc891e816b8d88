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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripFilter(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{
			"SELECT * FROM t WHERE llm_filter('{prompt}', '{model}')",
			"SELECT * FROM t",
		},
		{
			"SELECT * FROM t WHERE x = 1 AND llm_filter('{p}', '{m}')",
			"SELECT * FROM t WHERE x = 1",
		},
		{
			"SELECT * FROM t WHERE llm_filter('{p}', '{m}') AND x = 1",
			"SELECT * FROM t WHERE x = 1",
		},
		{
			"SELECT * FROM t WHERE llm_filter('{p}', '{m}') GROUP BY a",
			"SELECT * FROM t GROUP BY a",
		},
		{
			"SELECT * FROM t WHERE x = 1 AND NOT llm_filter('{p}', '{m}') AND y = 2",
			"SELECT * FROM t WHERE x = 1 AND y = 2",
		},
		{
			"SELECT * FROM t WHERE llm_filter('{p}', '{m}') OR x = 1",
			"SELECT * FROM t WHERE TRUE OR x = 1",
		},
		{
			"SELECT * FROM a JOIN b ON a.id = b.id AND llm_filter({'model_name': 'gpt-4o'}, {'prompt': 'Is it good?'}, {'t': b.title}) WHERE a.x = 1",
			"SELECT * FROM a JOIN b ON a.id = b.id WHERE a.x = 1",
		},
	}
	for _, c := range cases {
		require.Equal(t, c.out, Strip(c.in), c.in)
	}
}

func TestStripProjection(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{
			"SELECT name, llm_complete('{p}', '{m}') AS summary FROM t",
			"SELECT name FROM t",
		},
		{
			"SELECT llm_complete('{p}', '{m}') AS out FROM t",
			"SELECT * FROM t",
		},
		{
			"SELECT llm_complete('{p}', '{m}') AS out, name FROM t",
			"SELECT name FROM t",
		},
		{
			"SELECT a, llm_complete('{p}', '{m}') summary, b FROM t",
			"SELECT a, b FROM t",
		},
		{
			"SELECT DISTINCT llm_reduce('{p}', '{m}') AS r FROM t GROUP BY a",
			"SELECT DISTINCT * FROM t GROUP BY a",
		},
		{
			"SELECT upper(llm_complete('{p}', '{m}')) AS s FROM t",
			"SELECT upper(NULL) AS s FROM t",
		},
	}
	for _, c := range cases {
		require.Equal(t, c.out, Strip(c.in), c.in)
	}
}

func TestStripLeavesPlainQueries(t *testing.T) {
	for _, q := range []string{
		"SELECT a, b FROM t WHERE x = 1",
		"SELECT * FROM t WHERE llm_filter(x, y)",
		"SELECT 'llm_filter({a}, {b})' AS s FROM t",
		"SELECT my_llm_filter('{a}', '{b}') FROM t",
	} {
		require.Equal(t, q, Strip(q))
	}
}

func TestStripQuoteAwareArguments(t *testing.T) {
	q := "SELECT * FROM t WHERE x = 1 AND llm_filter('{is it (really) good?}', '{model}')"
	require.Equal(t, "SELECT * FROM t WHERE x = 1", Strip(q))
}

func TestStripMultiLine(t *testing.T) {
	q := `SELECT b.title, llm_complete('{summarize}', '{gpt4}') AS summary
FROM books b JOIN authors a ON b.author_id = a.id
WHERE llm_filter('{is_good}', '{gpt4}')
  AND a.country = 'FR'
ORDER BY b.title`
	expected := `SELECT b.title
FROM books b JOIN authors a ON b.author_id = a.id
WHERE a.country = 'FR'
ORDER BY b.title`
	require.Equal(t, expected, Strip(q))
}

func TestStripFixedPoint(t *testing.T) {
	for _, q := range []string{
		"SELECT name, llm_complete('{p}', '{m}') AS summary FROM t WHERE llm_filter('{p}', '{m}')",
		"SELECT llm_first('{p}', '{m}') AS f FROM t WHERE llm_filter('{p}', '{m}') OR x = 1",
		"SELECT * FROM (SELECT a, llm_complete('{p}', '{m}') AS c FROM t WHERE llm_filter('{p}', '{m}')) s",
	} {
		once := Strip(q)
		require.False(t, defaultStripper.HasCalls(once), once)
		require.Equal(t, once, Strip(once))
	}
}

func TestCalls(t *testing.T) {
	q := "SELECT LLM_COMPLETE('{p}', '{m}') AS c FROM t WHERE llm_filter('{p}', '{m}')"
	calls := defaultStripper.Calls(q)
	require.Len(t, calls, 2)
	require.Equal(t, "LLM_COMPLETE", calls[0].Name)
	require.Equal(t, KindProjection, calls[0].Kind)
	require.Equal(t, "llm_filter", calls[1].Name)
	require.Equal(t, KindFilter, calls[1].Kind)
	require.Equal(t, "llm_filter('{p}', '{m}')", q[calls[1].Start:calls[1].End])
}

func TestCustomCatalog(t *testing.T) {
	s := NewStripper(Catalog{Filters: []string{"ai_check"}, Projections: []string{"ai_gen"}})
	q := "SELECT a, ai_gen('{p}', '{m}') AS g FROM t WHERE ai_check('{p}', '{m}') AND a > 1"
	require.Equal(t, "SELECT a FROM t WHERE a > 1", s.Strip(q))
	require.Equal(t, "SELECT * FROM t WHERE llm_filter('{p}', '{m}')",
		s.Strip("SELECT * FROM t WHERE llm_filter('{p}', '{m}')"))
}
