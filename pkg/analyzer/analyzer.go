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

// Package analyzer sequences the reduction of one query: augmented operators
// are stripped, the join graph is extracted and folded when cyclic, and the
// tables are reduced either by an estimator or by selection pushdown followed
// by semi-join reduction.
package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/augment"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/estimator"
	"github.com/pingcap/tuplereduce/pkg/extractor"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/pingcap/tuplereduce/pkg/reducer"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// StrategyNone is used when the query has no table to reduce.
	StrategyNone = "none"
	// StrategySemiJoin is the pushdown and Yannakakis path.
	StrategySemiJoin = "semi-join"
)

// Isolator resets a backend to its state right after loading.
type Isolator interface {
	Snapshot(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Exporter writes tables out of a backend.
type Exporter interface {
	ExportTables(ctx context.Context, dir string, tables []string) ([]string, error)
}

var (
	_ Isolator = (*backend.SQLBackend)(nil)
	_ Exporter = (*backend.SQLBackend)(nil)
)

// Analysis is the outcome of analyzing one query.
type Analysis struct {
	Name string
	// Original is the query as written, Baseline the query without
	// augmented operators and Base the baseline unwrapped from its outer
	// SELECT layers.
	Original string
	Baseline string
	Base     string
	Calls    []augment.Call

	Advisories []Advisory
	Cyclic     bool
	Composites []string
	PushedDown []string
	// Strategy is StrategyNone, StrategySemiJoin or the name of the
	// estimator used.
	Strategy string
	Result   reducer.Result
	Exported []string
}

// Analyzer runs analyses against one backend. It is not safe for concurrent
// use: reductions replace backend tables in place.
type Analyzer struct {
	backend    backend.Backend
	stripper   *augment.Stripper
	estimators []estimator.Estimator
	isolate    bool
	exportDir  string

	snapped bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStripper sets the stripper used to compute the baseline query.
func WithStripper(s *augment.Stripper) Option {
	return func(a *Analyzer) { a.stripper = s }
}

// WithEstimators replaces the estimators tried before semi-join reduction.
func WithEstimators(est ...estimator.Estimator) Option {
	return func(a *Analyzer) { a.estimators = est }
}

// WithIsolation makes every query start from the tables as loaded. It needs a
// backend implementing Isolator.
func WithIsolation(isolate bool) Option {
	return func(a *Analyzer) { a.isolate = isolate }
}

// WithExportDir writes the reduced tables of every query to
// dir/<query name>/<table>.csv. It needs a backend implementing Exporter.
func WithExportDir(dir string) Option {
	return func(a *Analyzer) { a.exportDir = dir }
}

// New creates an Analyzer over b. By default it strips the built-in
// augmented functions, uses estimator.Default and isolates queries.
func New(b backend.Backend, opts ...Option) *Analyzer {
	a := &Analyzer{
		backend:    b,
		stripper:   augment.NewStripper(augment.DefaultCatalog()),
		estimators: estimator.Default(),
		isolate:    true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeFile analyzes the query stored in path; the analysis is named after
// the file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return a.AnalyzeQuery(ctx, filepath.Base(path), string(data))
}

// AnalyzeQuery analyzes query. Backend failures of single reduction steps are
// logged and skipped; the returned error is reserved for failures that leave
// nothing to report.
func (a *Analyzer) AnalyzeQuery(ctx context.Context, name, query string) (*Analysis, error) {
	start := time.Now()
	an, err := a.analyze(ctx, name, query)
	if an != nil {
		metrics.AnalyzeDuration.WithLabelValues(an.Strategy).Observe(time.Since(start).Seconds())
	}
	return an, err
}

func (a *Analyzer) analyze(ctx context.Context, name, query string) (*Analysis, error) {
	ctx = logutil.WithQuery(ctx, name)
	logger := logutil.Logger(ctx)
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery.GenWithStackByArgs(name)
	}
	if err := a.reset(ctx); err != nil {
		return nil, errors.Annotate(err, "reset backend tables")
	}

	an := &Analysis{
		Name:     name,
		Original: query,
		Calls:    a.stripper.Calls(query),
		Baseline: a.stripper.Strip(query),
		Result:   reducer.Result{},
	}
	logutil.Logger(logutil.WithStage(ctx, logutil.StageStrip)).Debug("augmented calls removed",
		zap.Int("calls", len(an.Calls)), zap.String("baseline", an.Baseline))
	s := extractor.Extract(an.Baseline)
	an.Base = s.Base
	an.Advisories = advisories(an.Baseline, s)
	for _, adv := range an.Advisories {
		logger.Warn(adv.Message, zap.Stringer("advisory", adv.Kind))
	}
	if s.Graph.Empty() {
		an.Strategy = StrategyNone
		an.Advisories = append(an.Advisories, Advisory{Kind: AdvisoryNoTables, Message: "no tables found in query"})
		logger.Warn("no tables found in query")
		return an, nil
	}

	g := s.Graph.Clone()
	var folding *reducer.Folding
	if g.IsCyclic() {
		an.Cyclic = true
		logger.Info("join graph is cyclic, folding", zap.Int("nodes", g.Len()), zap.Int("edges", g.EdgeCount()))
		folding = reducer.Fold(logutil.WithStage(ctx, logutil.StageFold), a.backend, g)
		for _, c := range folding.Composites {
			an.Composites = append(an.Composites, c.Name)
		}
	}

	for _, est := range a.estimators {
		if res, ok := est.Estimate(logutil.WithStage(ctx, logutil.StageEstimate), a.backend, an.Baseline); ok {
			logger.Info("reduction estimated", zap.String("estimator", est.Name()))
			an.Strategy = est.Name()
			an.Result = res
			return an, nil
		}
	}

	an.Strategy = StrategySemiJoin
	an.PushedDown = reducer.Pushdown(logutil.WithStage(ctx, logutil.StagePushdown), a.backend, s.Base, g, folding)
	an.Result = reducer.Reduce(logutil.WithStage(ctx, logutil.StageReduce), a.backend, g, folding)
	if a.exportDir != "" {
		files, err := a.export(logutil.WithStage(ctx, logutil.StageExport), name, g.Tables())
		if err != nil {
			return an, err
		}
		an.Exported = files
	}
	return an, nil
}

// reset restores the loaded tables before a query. The first call only takes
// the snapshot.
func (a *Analyzer) reset(ctx context.Context) error {
	if !a.isolate {
		return nil
	}
	iso, ok := a.backend.(Isolator)
	if !ok {
		return errors.Errorf("backend %T does not support query isolation", a.backend)
	}
	if !a.snapped {
		if err := iso.Snapshot(ctx); err != nil {
			return err
		}
		a.snapped = true
		return nil
	}
	return iso.Restore(ctx)
}

func (a *Analyzer) export(ctx context.Context, name string, tables []string) ([]string, error) {
	exp, ok := a.backend.(Exporter)
	if !ok {
		return nil, errors.Errorf("backend %T does not support export", a.backend)
	}
	dir := filepath.Join(a.exportDir, strings.TrimSuffix(name, filepath.Ext(name)))
	files, err := exp.ExportTables(ctx, dir, tables)
	return files, errors.Annotatef(err, "export reduced tables of %s", name)
}

// Sink receives the outcome of every file of a batch, in order. Exactly one
// of an and err is set.
type Sink func(path string, an *Analysis, err error)

// RunBatch analyzes paths one after the other. A failing file is reported to
// sink and does not stop the batch; the errors of all failed files are
// returned combined. Cancelling ctx stops before the next file.
func (a *Analyzer) RunBatch(ctx context.Context, paths []string, sink Sink) error {
	var errs error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		an, err := a.AnalyzeFile(ctx, path)
		if err != nil {
			err = errors.Annotatef(err, "analyze %s", path)
			logutil.Logger(ctx).Error("query analysis failed", zap.String("file", path), zap.Error(err))
			errs = multierr.Append(errs, err)
			metrics.QueryCounter.WithLabelValues(metrics.LblFailed).Inc()
			an = nil
		} else {
			metrics.QueryCounter.WithLabelValues(metrics.LblOK).Inc()
		}
		if sink != nil {
			sink(path, an, err)
		}
	}
	return errs
}
