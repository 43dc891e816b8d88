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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// Table is one loaded source file.
type Table struct {
	Name string
	Path string
	Rows int64
}

var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load creates one table per *.csv file of dir, named after the file's base
// name, and records each table's row count as its original size. A file that
// fails to load is logged and skipped.
func (b *SQLBackend) Load(ctx context.Context, dir string) ([]Table, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Trace(err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(paths) == 0 {
		return nil, ErrNoSourceFiles.GenWithStackByArgs(dir)
	}
	slices.Sort(paths)

	logger := logutil.Logger(ctx)
	tables := make([]Table, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		rows, err := b.loadOne(ctx, name, path)
		if err != nil {
			logger.Warn("failed to load table", zap.String("table", name),
				zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Info("loaded table", zap.String("table", name), zap.Int64("rows", rows))
		tables = append(tables, Table{Name: name, Path: path, Rows: rows})
	}
	return tables, nil
}

func (b *SQLBackend) loadOne(ctx context.Context, name, path string) (int64, error) {
	if !reIdentifier.MatchString(name) {
		return 0, ErrInvalidTableName.GenWithStackByArgs(name, path)
	}
	if err := b.DropTable(ctx, name); err != nil {
		return 0, err
	}
	if err := b.dialect.LoadCSV(ctx, b.db, name, path); err != nil {
		return 0, errors.Trace(err)
	}
	return b.Register(ctx, name)
}

const inferSampleRows = 1000

type columnKind int

const (
	kindUnknown columnKind = iota
	kindInt
	kindFloat
	kindText
)

func (k columnKind) sqlType() string {
	switch k {
	case kindInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE"
	}
	return "TEXT"
}

func classify(k columnKind, v string) columnKind {
	if v == "" || k == kindText {
		return k
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		if k == kindUnknown {
			return kindInt
		}
		return k
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return kindFloat
	}
	return kindText
}

// inferSchema reads the header and a sample of rows and picks BIGINT, DOUBLE
// or TEXT for every column.
func inferSchema(r io.Reader) ([]string, []columnKind, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Annotate(err, "read CSV header")
	}
	kinds := make([]columnKind, len(header))
	for i := 0; i < inferSampleRows; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		for j := range min(len(record), len(kinds)) {
			kinds[j] = classify(kinds[j], record[j])
		}
	}
	return header, kinds, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func createTableSQL(table string, header []string, kinds []columnKind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", table)
	for i, col := range header {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", quoteIdent(col), kinds[i].sqlType())
	}
	sb.WriteString(")")
	return sb.String()
}

func loadDataSQL(table, handler string, header []string) string {
	vars := make([]string, len(header))
	sets := make([]string, len(header))
	for i, col := range header {
		vars[i] = fmt.Sprintf("@v%d", i)
		sets[i] = fmt.Sprintf("%s = NULLIF(@v%d, '')", quoteIdent(col), i)
	}
	return fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s "+
		`FIELDS TERMINATED BY ',' OPTIONALLY ENCLOSED BY '"' ESCAPED BY '' `+
		`LINES TERMINATED BY '\n' (%s) SET %s`,
		handler, table, strings.Join(vars, ", "), strings.Join(sets, ", "))
}

// copyRecords re-encodes the data rows of a CSV file without its header, so
// the server sees uniform quoting and line endings.
func copyRecords(w io.Writer, r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		return errors.Trace(err)
	}
	cw := csv.NewWriter(w)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Trace(err)
		}
		if err := cw.Write(record); err != nil {
			return errors.Trace(err)
		}
	}
	cw.Flush()
	return errors.Trace(cw.Error())
}

// loadDataLocal creates table from an inferred schema and streams the file
// through LOAD DATA LOCAL INFILE with a registered reader handler.
func loadDataLocal(ctx context.Context, db *sql.DB, table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	header, kinds, err := inferSchema(f)
	_ = f.Close()
	if err != nil {
		return errors.Annotatef(err, "infer schema of %s", path)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(table, header, kinds)); err != nil {
		return errors.Trace(err)
	}

	src, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer src.Close()
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(copyRecords(pw, src))
	}()

	handler := "tuplereduce_" + table
	mysql.RegisterReaderHandler(handler, func() io.Reader { return pr })
	defer mysql.DeregisterReaderHandler(handler)

	query := loadDataSQL(table, handler, header)
	_, err = db.ExecContext(ctx, query)
	_ = pr.Close()
	<-done
	return errors.Annotate(err, query)
}
