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
	"math/rand"
	"sync"
	"time"

	"github.com/cowtree/btree"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// ctxCheckInterval is how many operations run between context checks.
	ctxCheckInterval = 1024
	// scanRounds is how many full scans the ascend and descend workloads do.
	scanRounds = 10
	// maxCloneTrees caps the number of trees clone-stress creates.
	maxCloneTrees = 64
)

type workload struct {
	needsClone bool
	run        func(ctx context.Context, r *Runner, rec *recorder) error
}

var workloadOrder = []string{
	"insert",
	"seek",
	"delete-insert",
	"delete-insert-clone-once",
	"delete-insert-clone-each-time",
	"get",
	"ascend",
	"descend",
	"clone-stress",
}

var workloads = map[string]workload{
	"insert":                        {run: runInsert},
	"seek":                          {run: runSeek},
	"delete-insert":                 {run: runDeleteInsert},
	"delete-insert-clone-once":      {needsClone: true, run: runDeleteInsertCloneOnce},
	"delete-insert-clone-each-time": {needsClone: true, run: runDeleteInsertCloneEachTime},
	"get":                           {run: runGet},
	"ascend":                        {run: runAscend},
	"descend":                       {run: runDescend},
	"clone-stress":                  {needsClone: true, run: runCloneStress},
}

// WorkloadNames returns the names of all workloads in the order they run by
// default.
func WorkloadNames() []string {
	return append([]string(nil), workloadOrder...)
}

// defaultWorkloads returns every workload the engine supports.
func defaultWorkloads(engine string) (out []string) {
	for _, name := range workloadOrder {
		if workloads[name].needsClone && engine != EngineBTree {
			continue
		}
		out = append(out, name)
	}
	return
}

// Runner drives the configured workloads.
type Runner struct {
	cfg      *Config
	metrics  *Metrics
	rng      *rand.Rand
	freelist *btree.FreeList[btree.Int]
	newStore func() store
}

// NewRunner creates a Runner; cfg must already be adjusted.
func NewRunner(cfg *Config, metrics *Metrics) *Runner {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Info("create benchmark runner",
		zap.Int64("seed", seed),
		zap.Int("degree", cfg.Degree),
		zap.Int("items", cfg.Items()),
		zap.String("engine", cfg.Engine))
	r := &Runner{
		cfg:      cfg,
		metrics:  metrics,
		rng:      rand.New(rand.NewSource(seed)),
		freelist: btree.NewFreeList[btree.Int](cfg.FreeListSize),
	}
	r.newStore = func() store {
		return newStore(r.cfg.Engine, r.cfg.Degree, r.freelist)
	}
	return r
}

// Run runs every configured workload cfg.Rounds times and returns one Result
// per run. It stops at the first failing workload.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	var results []Result
	for round := 0; round < r.cfg.Rounds; round++ {
		for _, name := range r.cfg.Workloads {
			if err := ctx.Err(); err != nil {
				return results, errors.WithStack(err)
			}
			w, ok := workloads[name]
			if !ok {
				return results, errors.Errorf("unknown workload %q", name)
			}
			rec := r.metrics.recorder(name, r.cfg.Engine)
			if err := w.run(ctx, r, rec); err != nil {
				return results, errors.Annotatef(err, "run workload %s", name)
			}
			res := rec.result(name, r.cfg.Engine)
			log.Info("workload finished",
				zap.String("workload", res.Workload),
				zap.String("engine", res.Engine),
				zap.Int("round", round),
				zap.Int("ops", res.Ops),
				zap.Duration("elapsed", res.Elapsed),
				zap.Duration("p50", res.P50),
				zap.Duration("p99", res.P99))
			results = append(results, res)
		}
	}
	return results, nil
}

func (r *Runner) perm() []int {
	return r.rng.Perm(r.cfg.Items())
}

// filled returns a store holding keys along with the permutation used.
func (r *Runner) filled() (store, []int) {
	keys := r.perm()
	s := r.newStore()
	for _, k := range keys {
		s.ReplaceOrInsert(k)
	}
	return s, keys
}

func checkContext(ctx context.Context, i int) error {
	if i%ctxCheckInterval != 0 {
		return nil
	}
	return errors.WithStack(ctx.Err())
}

func checkLen(s store, want int) error {
	if got := s.Len(); got != want {
		return errors.Errorf("store holds %d items, want %d", got, want)
	}
	return nil
}

func runInsert(ctx context.Context, r *Runner, rec *recorder) error {
	keys := r.perm()
	s := r.newStore()
	rec.begin()
	for i, k := range keys {
		if err := checkContext(ctx, i); err != nil {
			return err
		}
		begin := time.Now()
		s.ReplaceOrInsert(k)
		rec.observe(begin)
	}
	return checkLen(s, len(keys))
}

func runSeek(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	n := len(keys)
	rec.begin()
	for i := 0; i < n; i++ {
		if err := checkContext(ctx, i); err != nil {
			return err
		}
		begin := time.Now()
		s.AscendGreaterOrEqual(i%n, func(int) bool { return false })
		rec.observe(begin)
	}
	return nil
}

func deleteInsert(ctx context.Context, s store, keys []int, rec *recorder) error {
	for i, k := range keys {
		if err := checkContext(ctx, i); err != nil {
			return err
		}
		begin := time.Now()
		s.Delete(k)
		s.ReplaceOrInsert(k)
		rec.observe(begin)
	}
	return checkLen(s, len(keys))
}

func runDeleteInsert(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	rec.begin()
	return deleteInsert(ctx, s, keys, rec)
}

func asCloner(s store) (cloner, error) {
	c, ok := s.(cloner)
	if !ok {
		return nil, errors.Errorf("store %T does not support cloning", s)
	}
	return c, nil
}

func runDeleteInsertCloneOnce(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	c, err := asCloner(s)
	if err != nil {
		return err
	}
	clone := c.Clone()
	rec.begin()
	if err := deleteInsert(ctx, clone, keys, rec); err != nil {
		return err
	}
	return checkLen(s, len(keys))
}

func runDeleteInsertCloneEachTime(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	c, err := asCloner(s)
	if err != nil {
		return err
	}
	rec.begin()
	for i, k := range keys {
		if err := checkContext(ctx, i); err != nil {
			return err
		}
		begin := time.Now()
		c = c.Clone()
		c.Delete(k)
		c.ReplaceOrInsert(k)
		rec.observe(begin)
	}
	return checkLen(c, len(keys))
}

func runGet(ctx context.Context, r *Runner, rec *recorder) error {
	s, _ := r.filled()
	lookups := r.perm()
	rec.begin()
	for i, k := range lookups {
		if err := checkContext(ctx, i); err != nil {
			return err
		}
		begin := time.Now()
		found := s.Get(k)
		rec.observe(begin)
		if !found {
			return errors.Errorf("key %d not found", k)
		}
	}
	return nil
}

func runAscend(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	rec.begin()
	for i := 0; i < scanRounds; i++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		next := 0
		begin := time.Now()
		s.Ascend(func(k int) bool {
			if k != next {
				return false
			}
			next++
			return true
		})
		rec.observe(begin)
		if next != len(keys) {
			return errors.Errorf("ascend stopped at %d of %d items", next, len(keys))
		}
	}
	return nil
}

func runDescend(ctx context.Context, r *Runner, rec *recorder) error {
	s, keys := r.filled()
	rec.begin()
	for i := 0; i < scanRounds; i++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		next := len(keys) - 1
		begin := time.Now()
		s.Descend(func(k int) bool {
			if k != next {
				return false
			}
			next--
			return true
		})
		rec.observe(begin)
		if next != -1 {
			return errors.Errorf("descend stopped with %d items left", next+1)
		}
	}
	return nil
}

// runCloneStress inserts a permutation into a tree while recursively cloning
// it from concurrent goroutines, then checks that every tree ended up holding
// the full sorted sequence.
func runCloneStress(ctx context.Context, r *Runner, rec *recorder) error {
	keys := r.perm()
	root, err := asCloner(r.newStore())
	if err != nil {
		return err
	}
	every := r.cfg.CloneEvery
	var (
		mu    sync.Mutex
		trees []cloner
	)
	rec.begin()
	g, gctx := errgroup.WithContext(ctx)
	var spawn func(s cloner, start int)
	spawn = func(s cloner, start int) {
		mu.Lock()
		if len(trees) >= maxCloneTrees {
			mu.Unlock()
			return
		}
		trees = append(trees, s)
		mu.Unlock()
		g.Go(func() error {
			for i := start; i < len(keys); i++ {
				if err := checkContext(gctx, i); err != nil {
					return err
				}
				begin := time.Now()
				s.ReplaceOrInsert(keys[i])
				rec.observe(begin)
				if i%every == 0 {
					spawn(s.Clone(), i+1)
				}
			}
			return nil
		})
	}
	spawn(root, 0)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug("clone stress finished inserting", zap.Int("trees", len(trees)))
	for i, tree := range trees {
		next := 0
		tree.Ascend(func(k int) bool {
			if k != next {
				return false
			}
			next++
			return true
		})
		if next != len(keys) {
			return errors.Errorf("tree %d diverges from the sorted sequence at item %d", i, next)
		}
	}
	return nil
}
