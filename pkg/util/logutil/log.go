// Copyright 2017 PingCAP, Inc.
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

// Package logutil carries the analyzer's logger through contexts so that
// every line of one analysis is tagged with its query file and stage.
package logutil

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultLogMaxSize is the default size of log files, in MB.
	DefaultLogMaxSize = 300
	// DefaultLogFormat is the default format of the log.
	DefaultLogFormat = "text"
	// DefaultLogLevel is the default level of the log.
	DefaultLogLevel = "info"
)

// Field names attached by the With* helpers.
const (
	LogFieldQuery = "query"
	LogFieldStage = "stage"
)

// Stages of one analysis.
const (
	StageStrip    = "strip"
	StageFold     = "fold"
	StageEstimate = "estimate"
	StagePushdown = "pushdown"
	StageReduce   = "reduce"
	StageExport   = "export"
)

// LogConfig serializes log related config in toml/json.
type LogConfig struct {
	log.Config
}

// NewLogConfig creates a LogConfig. An empty file name logs to stderr.
func NewLogConfig(level, format, file string) *LogConfig {
	return &LogConfig{
		Config: log.Config{
			Level:  level,
			Format: format,
			File: log.FileLogConfig{
				Filename: file,
				MaxSize:  DefaultLogMaxSize,
			},
		},
	}
}

// InitLogger builds the logger described by cfg and installs it as the
// global one.
func InitLogger(cfg *LogConfig, opts ...zap.Option) error {
	opts = append(opts, zap.AddStacktrace(zapcore.FatalLevel))
	gl, props, err := log.InitLogger(&cfg.Config, opts...)
	if err != nil {
		return errors.Annotate(err, "init logger")
	}
	log.ReplaceGlobals(gl, props)
	return nil
}

type ctxLogKeyType struct{}

// CtxLogKey is the context key of the contextual logger. Tests use it to
// inject an observed logger.
var CtxLogKey = ctxLogKeyType{}

// Logger returns the logger carried by ctx, or the global one.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(CtxLogKey).(*zap.Logger); ok {
		return l
	}
	return log.L()
}

// BgLogger returns the global logger. Before InitLogger it prints to stdout.
func BgLogger() *zap.Logger {
	return log.L()
}

// WithQuery tags every line logged through the returned context with the
// analyzed query file.
func WithQuery(ctx context.Context, name string) context.Context {
	return WithFields(ctx, zap.String(LogFieldQuery, name))
}

// WithStage tags every line logged through the returned context with the
// analysis stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return WithFields(ctx, zap.String(LogFieldStage, stage))
}

// WithFields returns a context whose logger carries fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, CtxLogKey, Logger(ctx).With(fields...))
}
