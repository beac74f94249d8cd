// Copyright 2024 The cowtree Authors.
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

// btree-bench drives the benchmark workloads against a B-tree or, for
// comparison, a left-leaning red-black tree.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cowtree/btree/internal/bench"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information, set with -ldflags.
var (
	ReleaseVersion = "None"
	GitHash        = "None"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "btree-bench",
		Short:         "Benchmark the copy-on-write B-tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newRunCommand(), newVersionCommand())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "btree-bench: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("Release Version:", ReleaseVersion)
			cmd.Println("Git Commit Hash:", GitHash)
		},
	}
}

func newRunCommand() *cobra.Command {
	cfg := bench.NewConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run benchmark workloads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg)
		},
	}
	cfg.AddFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, cfg *bench.Config) error {
	if err := cfg.Parse(cmd.Flags()); err != nil {
		return err
	}
	lg, props, err := log.InitLogger(&cfg.Log, zap.AddStacktrace(zap.FatalLevel))
	if err != nil {
		return errors.Annotate(err, "init logger")
	}
	log.ReplaceGlobals(lg, props)
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer signal.Stop(sc)
	go func() {
		select {
		case sig := <-sc:
			log.Info("got signal to exit", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics := bench.NewMetrics()
	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, metrics)
		if err != nil {
			return err
		}
		defer stop()
	}
	start := time.Now()
	results, err := bench.NewRunner(cfg, metrics).Run(ctx)
	if err != nil {
		log.Error("benchmark failed", zap.Error(err))
		return err
	}

	cmd.Printf("%-32s %-6s %10s %12s %12s %12s\n", "WORKLOAD", "ENGINE", "OPS", "OPS/SEC", "P50", "P99")
	for _, res := range results {
		cmd.Printf("%-32s %-6s %10d %12s %12s %12s\n",
			res.Workload, res.Engine, res.Ops, rate(res), res.P50, res.P99)
	}

	stats, err := metrics.Snapshot()
	if err != nil {
		return err
	}
	for _, s := range stats {
		log.Info("workload totals",
			zap.String("workload", s.Workload),
			zap.String("engine", s.Engine),
			zap.Uint64("ops", s.Count),
			zap.Duration("total", s.Total))
	}
	log.Info("benchmark finished", zap.String("elapsed", units.HumanDuration(time.Since(start))))
	return nil
}

// rate formats the throughput of res, e.g. "1.25M".
func rate(res bench.Result) string {
	if res.Elapsed <= 0 {
		return "-"
	}
	perSec := float64(res.Ops) / res.Elapsed.Seconds()
	return units.CustomSize("%.4g%s", perSec, 1000.0, []string{"", "k", "M", "G", "T"})
}

// serveMetrics exposes metrics on addr until the returned stop func is called.
func serveMetrics(addr string, metrics *bench.Metrics) (stop func(), err error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", l.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shut down metrics server", zap.Error(err))
		}
	}, nil
}
