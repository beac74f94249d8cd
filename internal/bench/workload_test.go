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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cowtree/btree"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T, engine string, workloads ...string) *Config {
	cfg := NewConfig()
	cfg.Engine = engine
	cfg.Degree = 4
	cfg.Size = "500"
	cfg.Seed = 1
	cfg.CloneEvery = 100
	cfg.Workloads = workloads
	require.NoError(t, cfg.Adjust(nil))
	return cfg
}

func TestWorkloadRegistry(t *testing.T) {
	re := require.New(t)
	names := WorkloadNames()
	re.Len(names, len(workloads))
	for _, name := range names {
		_, ok := workloads[name]
		re.True(ok, name)
	}
	re.Equal(names, defaultWorkloads(EngineBTree))
	names[0] = "changed"
	re.Equal("insert", WorkloadNames()[0])
}

func TestRunAllWorkloads(t *testing.T) {
	for _, engine := range []string{EngineBTree, EngineLLRB} {
		t.Run(engine, func(t *testing.T) {
			re := require.New(t)
			cfg := newTestConfig(t, engine)
			results, err := NewRunner(cfg, NewMetrics()).Run(context.Background())
			re.NoError(err)
			re.Len(results, len(cfg.Workloads))
			for i, res := range results {
				re.Equal(cfg.Workloads[i], res.Workload)
				re.Equal(engine, res.Engine)
				re.Positive(res.Ops)
				re.Positive(res.Elapsed)
				re.LessOrEqual(res.P50, res.P99)
			}
		})
	}
}

func TestRunOpCounts(t *testing.T) {
	re := require.New(t)
	cfg := newTestConfig(t, EngineBTree, "insert", "seek", "delete-insert-clone-each-time", "get", "ascend", "descend")
	cfg.Rounds = 2
	metrics := NewMetrics()
	results, err := NewRunner(cfg, metrics).Run(context.Background())
	re.NoError(err)
	re.Len(results, 12)
	want := map[string]int{
		"insert":                        500,
		"seek":                          500,
		"delete-insert-clone-each-time": 500,
		"get":                           500,
		"ascend":                        scanRounds,
		"descend":                       scanRounds,
	}
	for _, res := range results {
		re.Equal(want[res.Workload], res.Ops, res.Workload)
	}

	stats, err := metrics.Snapshot()
	re.NoError(err)
	re.Len(stats, len(want))
	for _, s := range stats {
		re.Equal(EngineBTree, s.Engine)
		re.Equal(uint64(2*want[s.Workload]), s.Count, s.Workload)
	}
}

func TestMetricsHandler(t *testing.T) {
	re := require.New(t)
	cfg := newTestConfig(t, EngineBTree, "insert")
	metrics := NewMetrics()
	_, err := NewRunner(cfg, metrics).Run(context.Background())
	re.NoError(err)

	ts := httptest.NewServer(metrics.Handler())
	defer ts.Close()
	resp, err := ts.Client().Get(ts.URL)
	re.NoError(err)
	defer resp.Body.Close()
	re.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	re.NoError(err)
	re.Contains(string(body), `btree_bench_op_duration_seconds_count{engine="btree",workload="insert"} 500`)
}

func TestCloneStress(t *testing.T) {
	re := require.New(t)
	cfg := newTestConfig(t, EngineBTree, "clone-stress")
	cfg.Size = "2k"
	cfg.CloneEvery = 250
	re.NoError(cfg.Adjust(nil))
	results, err := NewRunner(cfg, NewMetrics()).Run(context.Background())
	re.NoError(err)
	re.Len(results, 1)
	// Every tree inserts at least the keys after the point it was cloned.
	re.GreaterOrEqual(results[0].Ops, cfg.Items())
}

func TestRunCanceled(t *testing.T) {
	re := require.New(t)
	cfg := newTestConfig(t, EngineBTree)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := NewRunner(cfg, NewMetrics()).Run(ctx)
	re.Empty(results)
	re.Equal(context.Canceled, errors.Cause(err))
}

func TestCloneWorkloadNeedsCloner(t *testing.T) {
	re := require.New(t)
	cfg := newTestConfig(t, EngineLLRB, "insert")
	r := NewRunner(cfg, NewMetrics())
	err := runDeleteInsertCloneOnce(context.Background(), r, r.metrics.recorder("delete-insert-clone-once", EngineLLRB))
	re.Error(err)
	re.Contains(err.Error(), "does not support cloning")
}

func TestStoresAgree(t *testing.T) {
	re := require.New(t)
	bt := newStore(EngineBTree, 3, btree.NewFreeList[btree.Int](btree.DefaultFreeListSize))
	lt := newStore(EngineLLRB, 0, nil)
	for _, s := range []store{bt, lt} {
		for i := 0; i < 100; i++ {
			re.False(s.ReplaceOrInsert(i * 2))
		}
		re.True(s.ReplaceOrInsert(10))
		re.True(s.Delete(10))
		re.False(s.Delete(10))
		re.False(s.Get(10))
		re.True(s.Get(12))
		re.Equal(99, s.Len())
	}
	collect := func(scan func(func(int) bool)) []int {
		var out []int
		scan(func(k int) bool {
			out = append(out, k)
			return len(out) < 5
		})
		return out
	}
	re.Equal(collect(bt.Ascend), collect(lt.Ascend))
	re.Equal(collect(bt.Descend), collect(lt.Descend))
	re.Equal([]int{0, 2, 4, 6, 8}, collect(bt.Ascend))
	re.Equal([]int{198, 196, 194, 192, 190}, collect(lt.Descend))
	from := func(s store) func(func(int) bool) {
		return func(iter func(int) bool) { s.AscendGreaterOrEqual(9, iter) }
	}
	re.Equal([]int{12, 14, 16, 18, 20}, collect(from(bt)))
	re.Equal(collect(from(bt)), collect(from(lt)))
}

// fillTracker remembers when the last insert happened.
type fillTracker struct {
	store
	first, last time.Time
}

func (s *fillTracker) ReplaceOrInsert(key int) bool {
	now := time.Now()
	if s.first.IsZero() {
		s.first = now
	}
	s.last = now
	return s.store.ReplaceOrInsert(key)
}

func TestElapsedExcludesSetup(t *testing.T) {
	runs := map[string]func(context.Context, *Runner, *recorder) error{
		"seek":    runSeek,
		"get":     runGet,
		"ascend":  runAscend,
		"descend": runDescend,
	}
	for name, run := range runs {
		name, run := name, run
		t.Run(name, func(t *testing.T) {
			re := require.New(t)
			cfg := newTestConfig(t, EngineBTree)
			cfg.Size = "20k"
			re.NoError(cfg.Adjust(nil))
			r := NewRunner(cfg, NewMetrics())
			var tracked *fillTracker
			r.newStore = func() store {
				tracked = &fillTracker{store: newStore(cfg.Engine, cfg.Degree, r.freelist)}
				return tracked
			}
			rec := r.metrics.recorder(name, cfg.Engine)
			re.NoError(run(context.Background(), r, rec))
			res := rec.result(name, cfg.Engine)

			re.Equal(cfg.Items(), tracked.Len())
			re.False(rec.start.Before(tracked.last), "timed region starts before the fill ends")
			re.LessOrEqual(res.Elapsed, time.Since(tracked.last))
			re.Positive(res.Ops)
		})
	}
}
