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

package sqltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchParen(t *testing.T) {
	s := "f(a, (b), ')(', \"x)\") tail"
	require.Equal(t, 20, MatchParen(s, 1))
	require.Equal(t, 7, MatchParen(s, 5))
	require.Equal(t, -1, MatchParen("(a (b)", 0))
}

func TestSkipQuoted(t *testing.T) {
	s := "'it''s' rest"
	require.Equal(t, 7, SkipQuoted(s, 0))
	require.Equal(t, len("'open"), SkipQuoted("'open", 0))
}

func TestIndexKeyword(t *testing.T) {
	s := "SELECT x FROM (SELECT y FROM z) t JOIN u ON t.a = u.b"
	require.Equal(t, 9, IndexKeyword(s, "from", 0))
	require.Equal(t, -1, IndexKeyword(s, "FROM", 10))
	require.Equal(t, 34, IndexKeyword(s, "JOIN", 0))
	require.Equal(t, -1, IndexKeyword("SELECT fromage, 'FROM' FROM_x", "FROM", 0))

	pos, kw := IndexAnyKeyword(s, 0, "WHERE", "JOIN", "ON")
	require.Equal(t, 34, pos)
	require.Equal(t, "JOIN", kw)
	pos, kw = IndexAnyKeyword(s, 0, "WHERE")
	require.Equal(t, -1, pos)
	require.Equal(t, "", kw)
}

func TestWords(t *testing.T) {
	require.True(t, HasWordAt("a.FROM b", 2, "from"))
	require.False(t, HasWordAt("xfrom", 1, "from"))
	w, end := ReadWord("  abc_1.x", SkipSpace("  abc_1.x", 0))
	require.Equal(t, "abc_1", w)
	require.Equal(t, 7, end)
}

func TestMapUnquoted(t *testing.T) {
	upper := func(s string) string { return strings.ToUpper(s) }
	require.Equal(t, "A.X = 'a.x' AND B = \"b\"", MapUnquoted("a.x = 'a.x' and b = \"b\"", upper))
	require.Equal(t, "", MapUnquoted("", upper))
	require.Equal(t, "X 'open", MapUnquoted("x 'open", upper))
}

func TestStripLiterals(t *testing.T) {
	require.Equal(t, "t.a LIKE '' AND u = ''", StripLiterals("t.a LIKE '%b.c%' AND u = 'it''s'"))
	require.Equal(t, "x '", StripLiterals("x 'open"))
}

func TestMaskLiterals(t *testing.T) {
	in := "SELECT 'shipped from x' AS n, \"a\"\"b\" FROM t WHERE u = 'it''s'"
	out := MaskLiterals(in)
	require.Len(t, out, len(in))
	require.Equal(t, "SELECT '              ' AS n, \"    \" FROM t WHERE u = '     '", out)
	require.Equal(t, strings.Index(in, "FROM t"), strings.Index(out, "FROM"))
	require.Equal(t, "x '    ", MaskLiterals("x 'open"))
	require.Equal(t, "x ''", MaskLiterals("x ''"))
	require.Equal(t, "", MaskLiterals(""))
}
