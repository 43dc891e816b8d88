// Copyright 2026 PingCAP, Inc. Licensed under Apache-2.0.

package main

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/analyzer"
	"github.com/pingcap/tuplereduce/pkg/augment"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/config"
	"github.com/pingcap/tuplereduce/pkg/report"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	// FlagLogLevel is the name of log-level flag.
	FlagLogLevel = "log-level"
	// FlagLogFile is the name of log-file flag.
	FlagLogFile = "log-file"
	// FlagLogFormat is the name of log-format flag.
	FlagLogFormat = "log-format"

	flagConfig      = "config"
	flagDataDir     = "data-dir"
	flagDialect     = "dialect"
	flagDSN         = "dsn"
	flagFormat      = "format"
	flagExportDir   = "export-dir"
	flagNoIsolate   = "no-isolate"
	flagHideQueries = "hide-queries"
	// FlagStatusAddr is the name of status-addr flag.
	FlagStatusAddr = "status-addr"
)

func newRootCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reduction-analyzer [query files...]",
		Short: "Estimate how far semi-join reduction shrinks the tables of queries with augmented operators.",
		Long: `reduction-analyzer loads every CSV file of the data directory as a table, removes the
augmented (LLM) operators of each query and reports, per table, how many rows survive
Yannakakis semi-join reduction of the remaining joins and filters.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(ctx, cmd, args)
		},
	}
	defineFlags(cmd.Flags())
	return cmd
}

func defineFlags(flags *pflag.FlagSet) {
	def := config.NewConfig()
	flags.String(flagConfig, "", "Path of the TOML config file")
	flags.String(flagDataDir, def.DataDir, "Directory holding one CSV file per table")
	flags.String(flagDialect, def.Backend.Dialect, "Backend dialect, one of duckdb or mysql")
	flags.String(flagDSN, def.Backend.DSN, "Backend data source name, in-memory DuckDB when empty")
	flags.String(flagFormat, def.Format, "Output format, one of table, markdown, csv or html")
	flags.String(flagExportDir, def.ExportDir, "Write the reduced tables of every query as CSV under this directory")
	flags.Bool(flagNoIsolate, false, "Let reductions of one query carry over to the next")
	flags.Bool(flagHideQueries, false, "Do not echo the original and baseline queries")
	flags.String(FlagStatusAddr, def.StatusAddr, "Set the HTTP listening address for the status report service. Set to empty string to disable")
	flags.StringP(FlagLogLevel, "L", def.Log.Level, "Set the log level")
	flags.String(FlagLogFile, def.Log.File, "Set the log file path, stderr when empty")
	flags.String(FlagLogFormat, def.Log.Format, "Set the log format")
}

// loadConfig builds the config from the defaults, the config file if given
// and the flags set on the command line, in that order.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	conf := config.NewConfig()
	path, err := flags.GetString(flagConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		if err := conf.Load(path); err != nil {
			return nil, err
		}
	}

	strFlags := map[string]*string{
		flagDataDir:    &conf.DataDir,
		flagDialect:    &conf.Backend.Dialect,
		flagDSN:        &conf.Backend.DSN,
		flagFormat:     &conf.Format,
		flagExportDir:  &conf.ExportDir,
		FlagStatusAddr: &conf.StatusAddr,
		FlagLogLevel:   &conf.Log.Level,
		FlagLogFile:    &conf.Log.File,
		FlagLogFormat:  &conf.Log.Format,
	}
	for name, dst := range strFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if flags.Changed(flagNoIsolate) {
		noIsolate, _ := flags.GetBool(flagNoIsolate)
		conf.IsolateQueries = !noIsolate
	}
	if flags.Changed(flagHideQueries) {
		hide, _ := flags.GetBool(flagHideQueries)
		conf.ShowQueries = !hide
	}
	if err := conf.Valid(); err != nil {
		return nil, err
	}
	return conf, nil
}

func runAnalyze(ctx context.Context, cmd *cobra.Command, queries []string) error {
	conf, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if err := logutil.InitLogger(conf.Log.ToLogConfig()); err != nil {
		return err
	}
	config.StoreGlobalConfig(conf)
	logger := logutil.BgLogger()

	if conf.StatusAddr != "" {
		status, err := startStatusServer(ctx, conf.StatusAddr)
		if err != nil {
			return err
		}
		logger.Info("status server started", zap.String("addr", status.Addr()))
		defer func() {
			if err := status.Stop(); err != nil {
				logger.Warn("status server stopped with error", zap.Error(err))
			}
		}()
	}

	dialect, err := backend.DialectByName(conf.Backend.Dialect)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(conf.Format)
	if err != nil {
		return err
	}
	b, err := backend.Open(ctx, dialect, conf.Backend.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close backend", zap.Error(err))
		}
	}()

	tables, err := b.Load(ctx, conf.DataDir)
	if err != nil {
		return err
	}
	logger.Info("data loaded", zap.String("dir", conf.DataDir), zap.Int("tables", len(tables)))

	w := report.NewWriter(cmd.OutOrStdout(), format, conf.ShowQueries)
	if err := w.WriteLoaded(tables); err != nil {
		return err
	}
	a := analyzer.New(b,
		analyzer.WithStripper(augment.NewStripper(conf.Augment)),
		analyzer.WithIsolation(conf.IsolateQueries),
		analyzer.WithExportDir(conf.ExportDir),
	)
	return a.RunBatch(ctx, queries, func(path string, an *analyzer.Analysis, err error) {
		var werr error
		if err != nil {
			werr = w.WriteError(path, err)
		} else {
			werr = w.WriteAnalysis(an)
		}
		if werr != nil {
			logger.Warn("failed to write report", zap.String("file", path), zap.Error(werr))
		}
	})
}
