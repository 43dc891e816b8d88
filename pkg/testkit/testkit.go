// Copyright 2021 PingCAP, Inc.
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

package testkit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateMockBackend opens an in-memory DuckDB backend that is closed when the
// test finishes.
func CreateMockBackend(t testing.TB) *backend.SQLBackend {
	dialect, err := backend.DialectByName(backend.DialectDuckDB)
	require.NoError(t, err)
	b, err := backend.Open(context.Background(), dialect, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}

// TestKit is a utility to run sql test.
type TestKit struct {
	require *require.Assertions
	assert  *assert.Assertions
	t       testing.TB
	backend *backend.SQLBackend
}

// NewTestKit returns a new *TestKit.
func NewTestKit(t testing.TB, b *backend.SQLBackend) *TestKit {
	return &TestKit{
		require: require.New(t),
		assert:  assert.New(t),
		t:       t,
		backend: b,
	}
}

// Backend returns the backend under test.
func (tk *TestKit) Backend() *backend.SQLBackend {
	return tk.backend
}

// MustExec executes a sql statement and asserts nil error.
func (tk *TestKit) MustExec(sql string, args ...any) {
	_, err := tk.backend.DB().ExecContext(context.Background(), sql, args...)
	comment := fmt.Sprintf("sql:%s, %v, error stack %v", sql, args, errors.ErrorStack(err))
	tk.require.NoError(err, comment)
}

// MustCreateTable creates table with the given column definitions, inserts
// the VALUES list and registers the table, so its current row count becomes
// its original size.
func (tk *TestKit) MustCreateTable(table, columns, values string) {
	tk.MustExec(fmt.Sprintf("CREATE TABLE %s (%s)", table, columns))
	if values != "" {
		tk.MustExec(fmt.Sprintf("INSERT INTO %s VALUES %s", table, values))
	}
	_, err := tk.backend.Register(context.Background(), table)
	tk.require.NoError(err)
}

// MustCount returns the number of rows of table.
func (tk *TestKit) MustCount(table string) int64 {
	n, err := tk.backend.RowCount(context.Background(), table)
	tk.require.NoError(err, "count %s", table)
	return n
}

// MustQuery query the statements and returns result rows.
func (tk *TestKit) MustQuery(sql string, args ...any) *Result {
	comment := fmt.Sprintf("sql:%s, args:%v", sql, args)
	rows, err := tk.backend.DB().QueryContext(context.Background(), sql, args...)
	tk.require.NoError(err, comment)
	defer rows.Close()
	res, err := resultFromRows(rows)
	tk.require.NoError(err, comment)
	res.comment = comment
	res.require = tk.require
	res.assert = tk.assert
	return res
}

// MustWriteCSV writes content to dir/<name>.csv and returns the path.
func (tk *TestKit) MustWriteCSV(dir, name, content string) string {
	path := filepath.Join(dir, name+".csv")
	tk.require.NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resultFromRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Trace(err)
	}
	res := &Result{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Trace(err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			switch x := v.(type) {
			case nil:
				row[i] = "<nil>"
			case []byte:
				row[i] = string(x)
			default:
				row[i] = fmt.Sprintf("%v", x)
			}
		}
		res.rows = append(res.rows, row)
	}
	return res, errors.Trace(rows.Err())
}
