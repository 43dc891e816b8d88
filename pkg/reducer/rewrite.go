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
	"regexp"
	"slices"
	"strings"

	"github.com/pingcap/tuplereduce/pkg/util/sqltext"
)

// prefixPattern matches `name.column` for any of names, with a word boundary
// before the name so that `tags.` never matches inside `book_tags.`.
func prefixPattern(names ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(quoted, regexp.QuoteMeta(n)) {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\.(\w+)`)
}

// rewriteColumns replaces every `prefix.column` reference outside literals
// whose prefix is one of names. fn receives the prefix and the column and
// returns the replacement.
func rewriteColumns(text string, names []string, fn func(prefix, column string) string) string {
	if len(names) == 0 {
		return text
	}
	re := prefixPattern(names...)
	return sqltext.MapUnquoted(text, func(seg string) string {
		return re.ReplaceAllStringFunc(seg, func(m string) string {
			sub := re.FindStringSubmatch(m)
			return fn(sub[1], sub[2])
		})
	})
}

// renamePrefixes rewrites table prefixes by mapping, in a single pass so that
// chained renames do not interfere.
func renamePrefixes(text string, mapping map[string]string) string {
	names := make([]string, 0, len(mapping))
	for from := range mapping {
		names = append(names, from)
	}
	slices.Sort(names)
	return rewriteColumns(text, names, func(prefix, column string) string {
		return mapping[prefix] + "." + column
	})
}

// mentions reports whether text references any of names as a column prefix
// outside literals.
func mentions(text string, names ...string) bool {
	return prefixPattern(names...).MatchString(sqltext.StripLiterals(text))
}

// qualifiedColumn is the name a base table's column takes inside a composite.
func qualifiedColumn(table, column string) string {
	return table + "__" + column
}
