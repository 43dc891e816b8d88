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
	"github.com/pingcap/errors"
)

var (
	// ErrNoSourceFiles is returned when a data directory holds no CSV file.
	ErrNoSourceFiles = errors.Normalize("no CSV files found in %s",
		errors.RFCCodeText("Reduction:Backend:ErrNoSourceFiles"))
	// ErrUnknownDialect is returned for an unsupported backend dialect name.
	ErrUnknownDialect = errors.Normalize("unknown backend dialect %q, expect one of duckdb, mysql",
		errors.RFCCodeText("Reduction:Backend:ErrUnknownDialect"))
	// ErrInvalidTableName is returned when a source file name is not a plain
	// SQL identifier.
	ErrInvalidTableName = errors.Normalize("invalid table name %q derived from %s",
		errors.RFCCodeText("Reduction:Backend:ErrInvalidTableName"))
)
