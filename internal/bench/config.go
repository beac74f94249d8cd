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
	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/pflag"
)

const (
	defaultDegree       = 32
	defaultSize         = "10k"
	defaultFreeListSize = 32
	defaultEngine       = EngineBTree
	defaultRounds       = 1
	defaultCloneEvery   = 2000

	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Config is the btree-bench configuration.
type Config struct {
	configFile string

	Log log.Config `toml:"log" json:"log"`

	Degree       int      `toml:"degree" json:"degree"`
	Size         string   `toml:"size" json:"size"`
	FreeListSize int      `toml:"free-list-size" json:"free-list-size"`
	Engine       string   `toml:"engine" json:"engine"`
	Workloads    []string `toml:"workloads" json:"workloads"`
	Rounds       int      `toml:"rounds" json:"rounds"`
	Seed         int64    `toml:"seed" json:"seed"`
	// CloneEvery is how many inserts a clone-stress worker performs between
	// clones.
	CloneEvery int `toml:"clone-every" json:"clone-every"`
	// MetricsAddr, when set, is the address the metrics endpoint listens on
	// while the benchmark runs.
	MetricsAddr string `toml:"metrics-addr" json:"metrics-addr"`

	// items is Size parsed into a count.
	items int
}

// NewConfig returns a Config with no values set; call Parse or Adjust before
// use.
func NewConfig() *Config {
	return &Config{}
}

// AddFlags registers the command line options of the configuration on fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "config file")
	fs.Int("degree", defaultDegree, "B-tree degree")
	fs.String("size", defaultSize, "number of items per tree, e.g. 10k or 1M")
	fs.Int("free-list-size", defaultFreeListSize, "capacity of the shared node free list")
	fs.String("engine", defaultEngine, "ordered map implementation to drive (btree or llrb)")
	fs.StringSlice("workloads", nil, "comma separated workloads to run (default all)")
	fs.Int("rounds", defaultRounds, "how many times each workload runs")
	fs.Int64("seed", 0, "random seed, 0 picks one from the clock")
	fs.Int("clone-every", defaultCloneEvery, "inserts between clones in the clone-stress workload")
	fs.String("log-level", defaultLogLevel, "log level")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. 127.0.0.1:9090")
}

// Parse loads the config file named by --config, if any, then overrides it
// with every flag set explicitly on fs and fills in defaults.
func (c *Config) Parse(fs *pflag.FlagSet) error {
	var meta *toml.MetaData
	if c.configFile != "" {
		m, err := toml.DecodeFile(c.configFile, c)
		if err != nil {
			return errors.Annotatef(err, "load config %s", c.configFile)
		}
		if undecoded := m.Undecoded(); len(undecoded) > 0 {
			return errors.Errorf("config %s contains undefined items: %v", c.configFile, undecoded)
		}
		meta = &m
	}
	if err := c.adjustCommandline(fs); err != nil {
		return err
	}
	return c.Adjust(meta)
}

func (c *Config) adjustCommandline(fs *pflag.FlagSet) (err error) {
	if fs.Changed("degree") {
		if c.Degree, err = fs.GetInt("degree"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("size") {
		if c.Size, err = fs.GetString("size"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("free-list-size") {
		if c.FreeListSize, err = fs.GetInt("free-list-size"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("engine") {
		if c.Engine, err = fs.GetString("engine"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("workloads") {
		if c.Workloads, err = fs.GetStringSlice("workloads"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("rounds") {
		if c.Rounds, err = fs.GetInt("rounds"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("seed") {
		if c.Seed, err = fs.GetInt64("seed"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("clone-every") {
		if c.CloneEvery, err = fs.GetInt("clone-every"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("metrics-addr") {
		if c.MetricsAddr, err = fs.GetString("metrics-addr"); err != nil {
			return errors.WithStack(err)
		}
	}
	if fs.Changed("log-level") {
		if c.Log.Level, err = fs.GetString("log-level"); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func isDefined(meta *toml.MetaData, key string) bool {
	return meta != nil && meta.IsDefined(key)
}

// Adjust fills in defaults for everything left unset and validates the result.
func (c *Config) Adjust(meta *toml.MetaData) error {
	if len(c.Log.Level) == 0 {
		c.Log.Level = defaultLogLevel
	}
	if len(c.Log.Format) == 0 {
		c.Log.Format = defaultLogFormat
	}
	if !isDefined(meta, "degree") {
		adjustInt(&c.Degree, defaultDegree)
	}
	if len(c.Size) == 0 {
		c.Size = defaultSize
	}
	if !isDefined(meta, "free-list-size") {
		adjustInt(&c.FreeListSize, defaultFreeListSize)
	}
	if len(c.Engine) == 0 {
		c.Engine = defaultEngine
	}
	if len(c.Workloads) == 0 {
		c.Workloads = defaultWorkloads(c.Engine)
	}
	adjustInt(&c.Rounds, defaultRounds)
	adjustInt(&c.CloneEvery, defaultCloneEvery)
	return c.validate()
}

func (c *Config) validate() error {
	if c.Degree <= 1 {
		return errors.Errorf("degree must be greater than 1, got %d", c.Degree)
	}
	if c.FreeListSize < 0 {
		return errors.Errorf("free-list-size must not be negative, got %d", c.FreeListSize)
	}
	n, err := units.FromHumanSize(c.Size)
	if err != nil {
		return errors.Annotatef(err, "parse size %q", c.Size)
	}
	if n <= 0 {
		return errors.Errorf("size must be positive, got %q", c.Size)
	}
	c.items = int(n)
	if c.Engine != EngineBTree && c.Engine != EngineLLRB {
		return errors.Errorf("unknown engine %q", c.Engine)
	}
	for _, name := range c.Workloads {
		w, ok := workloads[name]
		if !ok {
			return errors.Errorf("unknown workload %q", name)
		}
		if w.needsClone && c.Engine != EngineBTree {
			return errors.Errorf("workload %q requires the %s engine", name, EngineBTree)
		}
	}
	return nil
}

// Items returns the number of items each workload operates on.
func (c *Config) Items() int {
	return c.items
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}
