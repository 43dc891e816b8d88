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

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"

	// register the "duckdb" database/sql driver
	_ "github.com/marcboeker/go-duckdb"
)

// Supported dialect names.
const (
	DialectDuckDB = "duckdb"
	DialectMySQL  = "mysql"
)

// Dialect holds what differs between SQL engines: the driver, the catalog
// query and how a CSV file becomes a table.
type Dialect interface {
	Name() string
	DriverName() string
	// NormalizeDSN validates dsn and fills in defaults.
	NormalizeDSN(dsn string) (string, error)
	// ColumnsQuery lists the column names of the table given as the only
	// argument, in definition order.
	ColumnsQuery() string
	// LoadCSV creates table from the CSV file at path. The table must not
	// exist.
	LoadCSV(ctx context.Context, db *sql.DB, table, path string) error
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectDuckDB, "":
		return duckDBDialect{}, nil
	case DialectMySQL, "tidb":
		return mysqlDialect{}, nil
	}
	return nil, ErrUnknownDialect.GenWithStackByArgs(name)
}

type duckDBDialect struct{}

func (duckDBDialect) Name() string       { return DialectDuckDB }
func (duckDBDialect) DriverName() string { return "duckdb" }

// NormalizeDSN keeps dsn as is: an empty one opens an in-memory database.
func (duckDBDialect) NormalizeDSN(dsn string) (string, error) { return dsn, nil }

func (duckDBDialect) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_name = ? AND table_schema = current_schema() ORDER BY ordinal_position"
}

func (duckDBDialect) LoadCSV(ctx context.Context, db *sql.DB, table, path string) error {
	query := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_csv_auto('%s')",
		table, strings.ReplaceAll(path, "'", "''"))
	_, err := db.ExecContext(ctx, query)
	return errors.Annotate(err, query)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return DialectMySQL }
func (mysqlDialect) DriverName() string { return "mysql" }

// NormalizeDSN requires a DSN naming the database the tables are loaded in.
func (mysqlDialect) NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("mysql backend requires a DSN")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.DBName == "" {
		return "", errors.Errorf("mysql DSN %q does not name a database", cfg.FormatDSN())
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_name = ? AND table_schema = DATABASE() ORDER BY ordinal_position"
}

func (mysqlDialect) LoadCSV(ctx context.Context, db *sql.DB, table, path string) error {
	return loadDataLocal(ctx, db, table, path)
}
