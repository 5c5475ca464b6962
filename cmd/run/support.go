// Copyright 2025 Zintix Labs
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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/zintix-labs/hdxlab"
	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/demo"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/server/logger"
	"github.com/zintix-labs/hdxlab/spec"
	"github.com/zintix-labs/hdxlab/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var cfg *config = new(config)

type config struct {
	cfgFile   string
	restart   string
	store     string
	storeAt   string
	gammas    gammaList
	workers   int
	demo      bool
	seed      int64
	outPrefix string
	logMode   string
	report    string
	quiet     bool
	pprofmode string
}

// gammaList 接受逗號分隔的 gamma，例如 -gammas 1e-3,1e-2,0.1
type gammaList []float64

func (g *gammaList) String() string {
	parts := make([]string, len(*g))
	for i, v := range *g {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (g *gammaList) Set(s string) error {
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		*g = append(*g, v)
	}
	return nil
}

func bindVar() {
	flag.StringVar(&cfg.cfgFile, "cfg", "", "run config file (.yaml / .yml / .json)")
	flag.StringVar(&cfg.restart, "restart", "", "checkpoint file, or run id when -store is set")
	flag.StringVar(&cfg.store, "store", "", "checkpoint store: memory|file|sqlite")
	flag.StringVar(&cfg.storeAt, "store-at", "build/checkpoints", "store location: folder (file) or db path (sqlite)")
	flag.Var(&cfg.gammas, "gammas", "comma separated gamma values; more than one runs a sweep")
	flag.IntVar(&cfg.workers, "workers", 1, "concurrent runs in a sweep")
	flag.BoolVar(&cfg.demo, "demo", false, "use the embedded synthetic dataset")
	flag.Int64Var(&cfg.seed, "seed", 0, "override run.seed (0 keeps the config value)")
	flag.StringVar(&cfg.outPrefix, "out", "", "override run.out_prefix")
	flag.StringVar(&cfg.logMode, "log", "dev", "log mode: dev|prod|silence")
	flag.StringVar(&cfg.report, "report", "", "report format: '' (table), json, yaml")
	flag.BoolVar(&cfg.quiet, "q", false, "hide the progress bar")
	flag.StringVar(&cfg.pprofmode, "p", "", "pprof: '', cpu, heap, allocs")

	flag.Parse()
}

// execute 解析設定並分支執行單一 run、restart 或 gamma sweep
func execute() error {
	if err := cfg.valid(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := logger.ParseMode(cfg.logMode)
	if err != nil {
		return err
	}
	log, ah := logger.NewAsync(4096, mode)
	defer ah.Close()

	conf, data, err := cfg.load()
	if err != nil {
		return err
	}
	opts := hdxlab.RunOptions{Method: conf.Method, Run: conf.Run, Log: log}

	if cfg.store != "" {
		store, err := checkpoint.NewStore(cfg.store, cfg.storeAt)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}

	if len(cfg.gammas) > 1 {
		return sweep(ctx, conf, data, opts)
	}
	return single(ctx, conf, data, opts)
}

func single(ctx context.Context, conf *spec.Config, data *ensemble.Dataset, opts hdxlab.RunOptions) error {
	gamma := conf.Run.Gamma
	if len(cfg.gammas) == 1 {
		gamma = cfg.gammas[0]
	}

	var bar *pb.ProgressBar
	if !cfg.quiet {
		opts.Progress = func(st *ensemble.State) {
			if bar != nil {
				bar.SetCurrent(int64(st.Iter))
			}
		}
	}
	e, err := hdxlab.Prepare(ctx, gamma, data, cfg.source(opts.Store), opts)
	if err != nil {
		return err
	}

	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)
	m := e.Method()
	p.Printf("%s[RUN:%s] [GAMMA:%g] [MAXITERS:%d]%s\n", green, e.RunID(), e.Gamma(), m.MaxIters, reset)

	if !cfg.quiet {
		bar = pb.Full.Start(m.MaxIters)
		bar.SetCurrent(int64(e.State().Iter))
	}
	res, err := e.Loop(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	if res.Status == hdxlab.StatusInterrupted {
		p.Printf("interrupted at iteration %d; resume with -restart\n", res.Iterations)
	}
	rep := stats.NewRunReport(res, m.MCRefVar)
	if cfg.report == "" {
		rep.StdOut()
		return nil
	}
	r, _ := stats.RenderByName[stats.RunReport](cfg.report)
	return written(rep.WriteWith(os.Stdout, r))
}

func sweep(ctx context.Context, conf *spec.Config, data *ensemble.Dataset, opts hdxlab.RunOptions) error {
	if cfg.restart != "" {
		return errs.Configf("cmd: -restart can not be combined with a gamma sweep")
	}
	green := "\033[1;32m"
	reset := "\033[0m"
	p := message.NewPrinter(language.English)
	p.Printf("%s[SWEEP:%s] [WORKERS:%d] [MAXITERS:%d]%s\n", green, cfg.gammas.String(), cfg.workers, conf.Method.MaxIters, reset)

	results, err := hdxlab.Sweep(ctx, cfg.gammas, data, hdxlab.SweepOptions{
		Base:         opts,
		Workers:      cfg.workers,
		ShowProgress: !cfg.quiet,
	})
	if err != nil {
		return err
	}
	rep := stats.NewSweepReport(results, conf.Method.MCRefVar)
	if cfg.report == "" {
		rep.StdOut()
		return nil
	}
	r, _ := stats.RenderByName[stats.SweepReport](cfg.report)
	return written(rep.WriteWith(os.Stdout, r))
}

// load 依旗標取得設定與資料；資料為 nil 時由 run 依設定從檔案讀入。
// restart 時設定檔可省略，method/run 設定取自 checkpoint。
func (c *config) load() (*spec.Config, *ensemble.Dataset, error) {
	var (
		conf *spec.Config
		data *ensemble.Dataset
		err  error
	)
	switch {
	case c.demo:
		if conf, err = demo.Config(); err != nil {
			return nil, nil, err
		}
		if data, err = demo.Generate(demo.DefaultOptions()); err != nil {
			return nil, nil, err
		}
	case c.cfgFile != "":
		if conf, err = readConfig(c.cfgFile); err != nil {
			return nil, nil, err
		}
	default:
		conf = spec.DefaultConfig()
	}
	if c.seed != 0 {
		conf.Run.Seed = c.seed
	}
	if c.outPrefix != "" {
		conf.Run.OutPrefix = c.outPrefix
	}
	return conf, data, nil
}

func readConfig(path string) (*spec.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "cmd: read config")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return spec.GetConfigByJSON(b)
	}
	return spec.GetConfigByYAML(b)
}

// source 回傳 restart 來源；設定了 store 時 -restart 是 run id
func (c *config) source(store checkpoint.Store) hdxlab.RestartSource {
	switch {
	case c.restart == "":
		return nil
	case store != nil:
		return checkpoint.StoreSource(store, c.restart)
	default:
		return checkpoint.FileSource(c.restart)
	}
}

func (c *config) valid() error {
	if !c.demo && c.cfgFile == "" && c.restart == "" {
		return errs.Configf("cmd: one of -cfg, -demo or -restart is required")
	}
	if c.workers < 1 {
		return errs.Configf("cmd: workers must be > 0, got %d", c.workers)
	}
	if _, ok := stats.RenderByName[stats.RunReport](c.report); c.report != "" && !ok {
		return errs.Configf("cmd: unknown report format %q", c.report)
	}
	return nil
}

func written(err error) error {
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "cmd: write report")
	}
	fmt.Println()
	return nil
}
