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

package config

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/augment"
	"github.com/pingcap/tuplereduce/pkg/backend"
	"github.com/pingcap/tuplereduce/pkg/report"
	"github.com/pingcap/tuplereduce/pkg/util/logutil"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrDataDirNotFound is returned when the data directory does not exist.
	ErrDataDirNotFound = errors.Normalize("data directory %s does not exist",
		errors.RFCCodeText("Reduction:Config:ErrDataDirNotFound"))
	// ErrUnknownConfigItems is returned when a config file holds keys that
	// match no option.
	ErrUnknownConfigItems = errors.Normalize("config file %s contained unknown configuration options: %s",
		errors.RFCCodeText("Reduction:Config:ErrUnknownConfigItems"))
)

// Config contains configuration options.
type Config struct {
	DataDir        string `toml:"data-dir" json:"data-dir"`
	IsolateQueries bool   `toml:"isolate-queries" json:"isolate-queries"`
	ShowQueries    bool   `toml:"show-queries" json:"show-queries"`
	ExportDir      string `toml:"export-dir" json:"export-dir"`
	// StatusAddr serves the Prometheus metrics when set.
	StatusAddr string `toml:"status-addr" json:"status-addr"`
	Format     string `toml:"format" json:"format"`

	Backend Backend         `toml:"backend" json:"backend"`
	Log     Log             `toml:"log" json:"log"`
	Augment augment.Catalog `toml:"augment" json:"augment"`
}

// Backend is the backend section of config.
type Backend struct {
	// Dialect is one of duckdb or mysql.
	Dialect string `toml:"dialect" json:"dialect"`
	// DSN is the data source name. An empty DSN runs DuckDB in memory.
	DSN string `toml:"dsn" json:"dsn"`
}

// Log is the log section of config.
type Log struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format. one of json, text, or console.
	Format string `toml:"format" json:"format"`
	// File is the log file, stderr when empty.
	File string `toml:"file" json:"file"`
}

var defaultConf = Config{
	DataDir:        "./data",
	IsolateQueries: true,
	ShowQueries:    true,
	Format:         string(report.FormatTable),
	Backend: Backend{
		Dialect: backend.DialectDuckDB,
	},
	Log: Log{
		Level:  logutil.DefaultLogLevel,
		Format: logutil.DefaultLogFormat,
	},
	Augment: augment.DefaultCatalog(),
}

var globalConf atomic.Pointer[Config]

func init() {
	globalConf.Store(NewConfig())
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	conf.Augment = augment.DefaultCatalog()
	return &conf
}

// GetGlobalConfig returns the global configuration for this process.
// It should store configuration from command line and configuration file.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the globalConf.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// Load loads config options from a toml file. Keys that match no option are
// an error.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		items := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			items = append(items, item.String())
		}
		return ErrUnknownConfigItems.GenWithStackByArgs(confFile, strings.Join(items, ", "))
	}
	return nil
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	info, err := os.Stat(c.DataDir)
	if err != nil || !info.IsDir() {
		return ErrDataDirNotFound.GenWithStackByArgs(c.DataDir)
	}
	if _, err := backend.DialectByName(c.Backend.Dialect); err != nil {
		return err
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		return err
	}
	if len(c.Augment.Filters)+len(c.Augment.Projections) == 0 {
		return errors.New("augment section must name at least one function")
	}
	_, err = zapcore.ParseLevel(c.Log.Level)
	return errors.Annotate(err, "invalid log level")
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	return logutil.NewLogConfig(l.Level, l.Format, l.File)
}
