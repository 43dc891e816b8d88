// Copyright 2026 PingCAP, Inc. Licensed under Apache-2.0.

package main

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/pingcap/tuplereduce/pkg/config"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func TestStatusServer(t *testing.T) {
	s, err := startStatusServer(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	metrics.QueryCounter.WithLabelValues(metrics.LblOK).Inc()

	client := &http.Client{}
	resp, err := client.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `tuplereduce_analyzer_queries_total{result="ok"}`)
	client.CloseIdleConnections()

	require.NoError(t, s.Stop())
	_, err = client.Get("http://" + s.Addr() + "/metrics")
	require.Error(t, err)
}

func TestStatusServerConfig(t *testing.T) {
	orig := config.GetGlobalConfig()
	defer config.StoreGlobalConfig(orig)
	conf := config.NewConfig()
	conf.Format = "csv"
	conf.Backend.DSN = "root:secret@tcp(127.0.0.1:4000)/test"
	config.StoreGlobalConfig(conf)

	s, err := startStatusServer(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	client := &http.Client{}
	resp, err := client.Get("http://" + s.Addr() + "/config")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"format":"csv"`)
	require.NotContains(t, string(body), "secret")
	require.Equal(t, "root:secret@tcp(127.0.0.1:4000)/test", config.GetGlobalConfig().Backend.DSN)
	client.CloseIdleConnections()
	require.NoError(t, s.Stop())
}

func TestStatusServerBadAddress(t *testing.T) {
	_, err := startStatusServer(context.Background(), "not-an-address")
	require.Error(t, err)
}

func TestRunWithStatusAddr(t *testing.T) {
	dataDir, queryDir := prepareData(t)
	q := writeFile(t, queryDir, "q.sql", "SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id")
	out, err := execute("--data-dir", dataDir, "--status-addr", "127.0.0.1:0", "--format", "csv", q)
	require.NoError(t, err)
	require.Contains(t, out, filepath.Base(q))
}
