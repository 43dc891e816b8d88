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

// Package report renders analyses for people and tools.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/analyzer"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/reducer"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format is an output format.
type Format string

// Output formats.
const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.Normalize("unknown output format %q, expect one of table, markdown, csv, html",
	errors.RFCCodeText("Reduction:Report:ErrUnknownFormat"))

// ParseFormat parses a format name, case-insensitively. An empty name is
// FormatTable.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatMarkdown, FormatCSV, FormatHTML:
		return f, nil
	}
	return "", ErrUnknownFormat.GenWithStackByArgs(s)
}

const rule = "======================================================================"

var (
	header     = table.Row{"Table", "Original", "Reduced", "Reduction %"}
	csvHeader  = table.Row{"Query", "Table", "Original", "Reduced", "Reduction %"}
	numberCols = []table.ColumnConfig{
		{Name: "Original", Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Name: "Reduced", Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Name: "Reduction %", Align: text.AlignRight, AlignFooter: text.AlignRight},
	}
)

// Writer writes one report section per analysis. CSV output is one table
// with a row per query and table, headed once.
type Writer struct {
	w           io.Writer
	format      Format
	showQueries bool
	printer     *message.Printer

	csvHeaded bool
}

// NewWriter returns a Writer rendering to w. showQueries echoes the original
// and baseline query text, it is ignored for CSV.
func NewWriter(w io.Writer, format Format, showQueries bool) *Writer {
	return &Writer{
		w:           w,
		format:      format,
		showQueries: showQueries,
		printer:     message.NewPrinter(language.English),
	}
}

// WriteAnalysis renders an.
func (w *Writer) WriteAnalysis(an *analyzer.Analysis) error {
	if w.format == FormatCSV {
		return w.writeCSV(an)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nQuery: %s\n%s\n\n", rule, an.Name, rule)
	if w.showQueries {
		section(&sb, "ORIGINAL QUERY:", an.Original)
		section(&sb, fmt.Sprintf("BASELINE QUERY (%d augmented calls removed):", len(an.Calls)), an.Baseline)
	}
	for _, adv := range an.Advisories {
		fmt.Fprintf(&sb, "WARNING [%s]: %s\n", adv.Kind, adv.Message)
	}
	if an.Cyclic {
		fmt.Fprintf(&sb, "Join graph is CYCLIC, folded into %s\n", strings.Join(an.Composites, ", "))
	}
	if len(an.PushedDown) > 0 {
		fmt.Fprintf(&sb, "Selection pushed down to %s\n", strings.Join(an.PushedDown, ", "))
	}
	if an.Strategy != analyzer.StrategySemiJoin && an.Strategy != analyzer.StrategyNone {
		fmt.Fprintf(&sb, "Estimated with %s\n", an.Strategy)
	}
	if len(an.Advisories) > 0 || an.Cyclic || len(an.PushedDown) > 0 {
		sb.WriteString("\n")
	}
	if len(an.Result) > 0 {
		sb.WriteString("TUPLE REDUCTION ANALYSIS:\n")
		sb.WriteString(w.render(w.ReductionTable(an.Result)))
		sb.WriteString("\n\n")
	}
	_, err := io.WriteString(w.w, sb.String())
	return errors.Trace(err)
}

// WriteLoaded lists the tables loaded from the data directory. Only the plain
// table format prints it.
func (w *Writer) WriteLoaded(tables []backend.Table) error {
	if w.format != FormatTable || len(tables) == 0 {
		return nil
	}
	if _, err := io.WriteString(w.w, "LOADED TABLES:\n"); err != nil {
		return errors.Trace(err)
	}
	t := tabby.NewCustom(tabwriter.NewWriter(w.w, 0, 0, 2, ' ', 0))
	t.AddHeader("TABLE", "ROWS", "FILE")
	for _, tbl := range tables {
		t.AddLine(tbl.Name, w.printer.Sprintf("%d", tbl.Rows), tbl.Path)
	}
	t.Print()
	_, err := io.WriteString(w.w, "\n")
	return errors.Trace(err)
}

// WriteError reports a query that could not be analyzed.
func (w *Writer) WriteError(path string, err error) error {
	if w.format == FormatCSV {
		return nil
	}
	_, werr := fmt.Fprintf(w.w, "%s\nQuery: %s\n%s\n\nERROR: %v\n\n", rule, path, rule, err)
	return errors.Trace(werr)
}

func section(sb *strings.Builder, title, body string) {
	fmt.Fprintf(sb, "%s\n%s\n%s\n\n", title, strings.Repeat("-", len(rule)), strings.TrimSpace(body))
}

func (w *Writer) render(t table.Writer) string {
	switch w.format {
	case FormatMarkdown:
		return t.RenderMarkdown()
	case FormatHTML:
		return t.RenderHTML()
	default:
		return t.Render()
	}
}

// ReductionTable lays res out one row per table, sorted by name, with an
// OVERALL footer summing both counts. The footer is left out when no table
// had any row.
func (w *Writer) ReductionTable(res reducer.Result) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.SetColumnConfigs(numberCols)
	for _, r := range res.Sorted() {
		t.AppendRow(w.row(r))
	}
	if overall := res.Overall(); overall.Original > 0 {
		t.AppendFooter(w.row(overall))
	}
	return t
}

func (w *Writer) row(r reducer.Reduction) table.Row {
	return table.Row{
		r.Table,
		w.printer.Sprintf("%d", r.Original),
		w.printer.Sprintf("%d", r.Reduced),
		fmt.Sprintf("%.2f%%", r.Percent),
	}
}

func (w *Writer) writeCSV(an *analyzer.Analysis) error {
	if len(an.Result) == 0 {
		return nil
	}
	t := table.NewWriter()
	if !w.csvHeaded {
		t.AppendHeader(csvHeader)
		w.csvHeaded = true
	}
	rows := an.Result.Sorted()
	if overall := an.Result.Overall(); overall.Original > 0 {
		rows = append(rows, overall)
	}
	for _, r := range rows {
		t.AppendRow(table.Row{an.Name, r.Table, r.Original, r.Reduced, fmt.Sprintf("%.2f", r.Percent)})
	}
	_, err := fmt.Fprintln(w.w, t.RenderCSV())
	return errors.Trace(err)
}
