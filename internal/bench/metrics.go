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

package bench

import (
	"net/http"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const (
	namespace = "btree"
	subsystem = "bench"
)

// Metrics collects per-operation latencies of every workload run.
type Metrics struct {
	registry   *prometheus.Registry
	opDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics backed by its own prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "op_duration_seconds",
				Help:      "Bucketed histogram of the latency of a single workload operation.",
				Buckets:   prometheus.ExponentialBuckets(1e-8, 2, 24), // 10ns ~ 84ms
			}, []string{"workload", "engine"}),
	}
	m.registry.MustRegister(m.opDuration)
	return m
}

// Handler serves the collected metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OpStats is the aggregate of one workload/engine histogram.
type OpStats struct {
	Workload string
	Engine   string
	Count    uint64
	Total    time.Duration
}

// Snapshot gathers the current totals of every workload/engine pair.
func (m *Metrics) Snapshot() ([]OpStats, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var out []OpStats
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			out = append(out, toOpStats(metric))
		}
	}
	return out, nil
}

func toOpStats(metric *dto.Metric) OpStats {
	var s OpStats
	for _, label := range metric.GetLabel() {
		switch label.GetName() {
		case "workload":
			s.Workload = label.GetValue()
		case "engine":
			s.Engine = label.GetValue()
		}
	}
	h := metric.GetHistogram()
	s.Count = h.GetSampleCount()
	s.Total = time.Duration(h.GetSampleSum() * float64(time.Second))
	return s
}

// recorder times the operations of a single workload run. Elapsed time counts
// from the last begin call, so setup done before it is not reported. It is
// safe for concurrent use.
type recorder struct {
	mu       sync.Mutex
	observer prometheus.Observer
	digest   *tdigest.TDigest
	ops      int
	start    time.Time
}

func (m *Metrics) recorder(workload, engine string) *recorder {
	return &recorder{
		observer: m.opDuration.WithLabelValues(workload, engine),
		digest:   tdigest.New(),
		start:    time.Now(),
	}
}

// begin marks the end of setup and the start of the timed region.
func (r *recorder) begin() {
	r.mu.Lock()
	r.start = time.Now()
	r.mu.Unlock()
}

// observe records one operation that started at begin.
func (r *recorder) observe(begin time.Time) {
	d := time.Since(begin)
	r.observer.Observe(d.Seconds())
	r.mu.Lock()
	r.digest.Add(float64(d.Nanoseconds()), 1)
	r.ops++
	r.mu.Unlock()
}

func (r *recorder) result(workload, engine string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		Workload: workload,
		Engine:   engine,
		Ops:      r.ops,
		Elapsed:  time.Since(r.start),
	}
	if r.ops > 0 {
		res.P50 = time.Duration(r.digest.Quantile(0.5))
		res.P99 = time.Duration(r.digest.Quantile(0.99))
	}
	return res
}

// Result summarizes one workload run.
type Result struct {
	Workload string
	Engine   string
	Ops      int
	Elapsed  time.Duration
	P50      time.Duration
	P99      time.Duration
}
