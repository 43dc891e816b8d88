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

// Package backend is the SQL engine the analyzer drives. The analyzer never
// holds row data: it creates, replaces, counts and drops tables by name.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// Backend is the contract the reduction core consumes. Implementations assume
// a single writer: reduction renames tables in place.
type Backend interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string) error
	// QueryInt64 runs a query returning a single integer; NULL reads as 0.
	QueryInt64(ctx context.Context, query string) (int64, error)
	// RowCount returns the current number of rows of table.
	RowCount(ctx context.Context, table string) (int64, error)
	// Columns lists the columns of table in definition order.
	Columns(ctx context.Context, table string) ([]string, error)
	// CreateTableAs materializes query under name, replacing any table of
	// that name.
	CreateTableAs(ctx context.Context, name, query string) error
	// ReplaceTable swaps the content of name for the result of query. The
	// query may read name itself.
	ReplaceTable(ctx context.Context, name, query string) error
	// DropTable drops name if it exists.
	DropTable(ctx context.Context, name string) error
	// OriginalSize returns the row count captured when table was created.
	OriginalSize(table string) (int64, bool)
	// SetOriginalSize records the baseline row count of table.
	SetOriginalSize(table string, rows int64)
}

const (
	reducedSuffix  = "_reduced"
	snapshotPrefix = "__pristine_"
)

// SQLBackend implements Backend over database/sql.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect

	// original row counts keyed by sizeKey
	sizes map[string]int64
	// loaded tables in load order, they survive Restore
	loaded []string
	// tables created by CreateTableAs that are not loaded tables
	scratch map[string]struct{}
	snapped bool
}

// NewSQLBackend wraps an open database. Callers keep ownership of db only
// until Close is called on the backend.
func NewSQLBackend(db *sql.DB, dialect Dialect) *SQLBackend {
	return &SQLBackend{
		db:      db,
		dialect: dialect,
		sizes:   make(map[string]int64),
		scratch: make(map[string]struct{}),
	}
}

// Open connects to the backend described by dialect and dsn. The pool is
// limited to one connection so that every statement sees the tables created
// by the previous one.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLBackend, error) {
	dsn, err := dialect.NormalizeDSN(dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Annotatef(err, "connect to %s backend", dialect.Name())
	}
	return NewSQLBackend(db, dialect), nil
}

// DB returns the underlying database handle.
func (b *SQLBackend) DB() *sql.DB { return b.db }

// Dialect returns the dialect of the backend.
func (b *SQLBackend) Dialect() Dialect { return b.dialect }

// Close closes the database.
func (b *SQLBackend) Close() error {
	return errors.Trace(b.db.Close())
}

// Exec implements Backend.
func (b *SQLBackend) Exec(ctx context.Context, query string) error {
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return errors.Annotate(err, query)
	}
	return nil
}

// QueryInt64 implements Backend.
func (b *SQLBackend) QueryInt64(ctx context.Context, query string) (int64, error) {
	var n sql.NullInt64
	if err := b.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.Annotate(err, query)
	}
	return n.Int64, nil
}

// RowCount implements Backend.
func (b *SQLBackend) RowCount(ctx context.Context, table string) (int64, error) {
	return b.QueryInt64(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
}

// Columns implements Backend.
func (b *SQLBackend) Columns(ctx context.Context, table string) ([]string, error) {
	var cols oneStrColumnTable
	query := b.dialect.ColumnsQuery()
	if err := simpleQuery(ctx, b.db, cols.handleOneRow, query, table); err != nil {
		return nil, errors.Annotate(err, query)
	}
	if len(cols.data) == 0 {
		return nil, errors.Errorf("table %s has no columns or does not exist", table)
	}
	return cols.data, nil
}

// CreateTableAs implements Backend. Tables created this way are dropped by
// Restore unless they are loaded tables.
func (b *SQLBackend) CreateTableAs(ctx context.Context, name, query string) error {
	if err := b.DropTable(ctx, name); err != nil {
		return err
	}
	if err := b.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", name, query)); err != nil {
		return err
	}
	if !slices.Contains(b.loaded, name) {
		b.scratch[name] = struct{}{}
	}
	return nil
}

// ReplaceTable implements Backend: the result is built in a temporary table,
// the original is dropped and the temporary one renamed.
func (b *SQLBackend) ReplaceTable(ctx context.Context, name, query string) error {
	tmp := name + reducedSuffix
	if err := b.DropTable(ctx, tmp); err != nil {
		return err
	}
	if err := b.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", tmp, query)); err != nil {
		return err
	}
	if err := b.Exec(ctx, fmt.Sprintf("DROP TABLE %s", name)); err != nil {
		if dropErr := b.DropTable(ctx, tmp); dropErr != nil {
			logutil.Logger(ctx).Warn("failed to clean up temporary table",
				zap.String("table", tmp), zap.Error(dropErr))
		}
		return err
	}
	return b.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, name))
}

// DropTable implements Backend.
func (b *SQLBackend) DropTable(ctx context.Context, name string) error {
	return b.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name))
}

// OriginalSize implements Backend. Table names are matched case-insensitively,
// as unquoted identifiers are.
func (b *SQLBackend) OriginalSize(table string) (int64, bool) {
	n, ok := b.sizes[sizeKey(table)]
	return n, ok
}

// SetOriginalSize implements Backend.
func (b *SQLBackend) SetOriginalSize(table string, rows int64) {
	b.sizes[sizeKey(table)] = rows
}

func sizeKey(table string) string {
	return strings.ToLower(table)
}

// LoadedTables returns the tables created by Load or Register, in load order.
func (b *SQLBackend) LoadedTables() []string {
	return slices.Clone(b.loaded)
}

// Register marks an existing table as a loaded table and captures its current
// row count as the baseline.
func (b *SQLBackend) Register(ctx context.Context, table string) (int64, error) {
	n, err := b.RowCount(ctx, table)
	if err != nil {
		return 0, err
	}
	b.SetOriginalSize(table, n)
	if !slices.Contains(b.loaded, table) {
		b.loaded = append(b.loaded, table)
	}
	delete(b.scratch, table)
	return n, nil
}

// Snapshot copies every loaded table so that Restore can bring them back.
func (b *SQLBackend) Snapshot(ctx context.Context) error {
	for _, t := range b.loaded {
		snap := snapshotPrefix + t
		if err := b.DropTable(ctx, snap); err != nil {
			return err
		}
		if err := b.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", snap, t)); err != nil {
			return err
		}
	}
	b.snapped = true
	return nil
}

// Restore drops the tables created since loading and resets every loaded
// table to its snapshot. It is a no-op without a prior Snapshot.
func (b *SQLBackend) Restore(ctx context.Context) error {
	if !b.snapped {
		return nil
	}
	for _, t := range slices.Sorted(maps.Keys(b.scratch)) {
		if err := b.DropTable(ctx, t); err != nil {
			return err
		}
		delete(b.scratch, t)
		delete(b.sizes, sizeKey(t))
	}
	for _, t := range b.loaded {
		if err := b.DropTable(ctx, t+reducedSuffix); err != nil {
			return err
		}
		if err := b.DropTable(ctx, t); err != nil {
			return err
		}
		if err := b.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", t, snapshotPrefix+t)); err != nil {
			return err
		}
	}
	logutil.Logger(ctx).Debug("restored loaded tables", zap.Int("tables", len(b.loaded)))
	return nil
}

func simpleQuery(ctx context.Context, db *sql.DB, handleOneRow func(*sql.Rows) error, query string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := handleOneRow(rows); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(rows.Err())
}

type oneStrColumnTable struct {
	data []string
}

func (o *oneStrColumnTable) handleOneRow(rows *sql.Rows) error {
	var str string
	if err := rows.Scan(&str); err != nil {
		return errors.Trace(err)
	}
	o.data = append(o.data, str)
	return nil
}
