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

// Package metrics holds the Prometheus collectors of the analyzer.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Label values.
const (
	LblOK      = "ok"
	LblFailed  = "failed"
	LblSkipped = "skipped"
)

var (
	// QueryCounter counts analyzed query files by outcome.
	QueryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuplereduce",
			Subsystem: "analyzer",
			Name:      "queries_total",
			Help:      "Counter of analyzed query files.",
		}, []string{"result"})
	// AnalyzeDuration observes the time spent on one query, by strategy.
	AnalyzeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tuplereduce",
			Subsystem: "analyzer",
			Name:      "analyze_duration_seconds",
			Help:      "Bucketed histogram of the time (s) spent analyzing a query.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
		}, []string{"strategy"})
	// SemiJoinCounter counts semi-join steps of the full reducer.
	SemiJoinCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuplereduce",
			Subsystem: "reducer",
			Name:      "semi_joins_total",
			Help:      "Counter of semi-join steps.",
		}, []string{"result"})
	// FoldCounter counts join pairs folded into composites.
	FoldCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuplereduce",
			Subsystem: "reducer",
			Name:      "folds_total",
			Help:      "Counter of join pairs folded to break cycles.",
		}, []string{"result"})
	// PushdownCounter counts WHERE predicates considered for pushdown.
	PushdownCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tuplereduce",
			Subsystem: "reducer",
			Name:      "pushdowns_total",
			Help:      "Counter of selection pushdown attempts.",
		}, []string{"result"})
)

// RegisterMetrics registers the collectors to registry.
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(QueryCounter)
	registry.MustRegister(AnalyzeDuration)
	registry.MustRegister(SemiJoinCounter)
	registry.MustRegister(FoldCounter)
	registry.MustRegister(PushdownCounter)
}

// ReadCounter reports the current value of the counter.
func ReadCounter(counter prometheus.Counter) float64 {
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		return math.NaN()
	}
	return metric.Counter.GetValue()
}

// ReadHistogramCount reports how many samples the histogram observed.
func ReadHistogramCount(h prometheus.Observer) uint64 {
	m, ok := h.(prometheus.Metric)
	if !ok {
		return 0
	}
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		return 0
	}
	return metric.Histogram.GetSampleCount()
}
