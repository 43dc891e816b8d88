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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/sqltocsv"
	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap"
)

// ExportTable writes the current rows of table to w as CSV with a header.
func (b *SQLBackend) ExportTable(ctx context.Context, table string, w io.Writer) error {
	query := fmt.Sprintf("SELECT * FROM %s", table)
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return errors.Annotate(err, query)
	}
	defer rows.Close()
	if err := sqltocsv.Write(w, rows); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(rows.Err())
}

// ExportTables writes every table to dir/<table>.csv and returns the files
// written.
func (b *SQLBackend) ExportTables(ctx context.Context, dir string, tables []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Trace(err)
	}
	files := make([]string, 0, len(tables))
	for _, table := range tables {
		path := filepath.Join(dir, table+".csv")
		if err := b.exportFile(ctx, table, path); err != nil {
			return files, errors.Annotatef(err, "export %s", table)
		}
		logutil.Logger(ctx).Debug("exported reduced table", zap.String("table", table), zap.String("path", path))
		files = append(files, path)
	}
	return files, nil
}

func (b *SQLBackend) exportFile(ctx context.Context, table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err := b.ExportTable(ctx, table, f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Trace(f.Close())
}
