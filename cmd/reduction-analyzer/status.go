// Copyright 2026 PingCAP, Inc. Licensed under Apache-2.0.

package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tuplereduce/pkg/config"
	"github.com/pingcap/tuplereduce/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// statusServer exposes the analyzer metrics over HTTP for the lifetime of a run.
type statusServer struct {
	ln     net.Listener
	cancel context.CancelFunc
	eg     *errgroup.Group
}

func startStatusServer(ctx context.Context, addr string) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listen on status address %s", addr)
	}
	registry := prometheus.NewRegistry()
	metrics.RegisterMetrics(registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/config", serveConfig)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return errors.Trace(err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		return errors.Trace(srv.Close())
	})
	return &statusServer{ln: ln, cancel: cancel, eg: eg}, nil
}

// serveConfig writes the global config as JSON, with the backend DSN masked.
func serveConfig(w http.ResponseWriter, _ *http.Request) {
	conf, err := config.CloneConf(config.GetGlobalConfig())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conf.Backend.DSN != "" {
		conf.Backend.DSN = "******"
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(conf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Addr is the address the server listens on.
func (s *statusServer) Addr() string {
	return s.ln.Addr().String()
}

// Stop closes the server and waits for it to exit.
func (s *statusServer) Stop() error {
	s.cancel()
	return s.eg.Wait()
}
