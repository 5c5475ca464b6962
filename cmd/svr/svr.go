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
	"time"

	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/demo"
	"github.com/zintix-labs/hdxlab/server"
	"github.com/zintix-labs/hdxlab/server/logger"
	"github.com/zintix-labs/hdxlab/server/svrcfg"
	"github.com/zintix-labs/hdxlab/spec"
)

// lab server 入口；預設以內嵌的示範設定作為請求的預設值。
func main() {
	sCfg, closeFn, err := loadConfigFromFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closeFn()
	if err := server.Run(context.Background(), sCfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeFn()
		os.Exit(1)
	}
}

type config struct {
	Addr          string
	LogMode       string
	Store         string
	StoreAt       string
	MaxIters      int
	MaxConcurrent int
	RunTimeout    time.Duration
	Defaults      string
}

func loadConfigFromFlags() (*svrcfg.SvrCfg, func(), error) {
	cfg := new(config)
	flag.StringVar(&cfg.Addr, "addr", svrcfg.DefaultAddr, "listen address")
	flag.StringVar(&cfg.LogMode, "log", "dev", "log mode: dev|prod|silence")
	flag.StringVar(&cfg.Store, "store", "", "checkpoint store: memory|file|sqlite ('' disables checkpoints)")
	flag.StringVar(&cfg.StoreAt, "store-at", "build/checkpoints.db", "store location: folder (file) or db path (sqlite)")
	flag.IntVar(&cfg.MaxIters, "maxiters", svrcfg.DefaultMaxIters, "max iterations a request may ask for")
	flag.IntVar(&cfg.MaxConcurrent, "concurrent", svrcfg.DefaultMaxConcurrent, "concurrent runs (1..16)")
	flag.DurationVar(&cfg.RunTimeout, "timeout", svrcfg.DefaultRunTimeout, "per request run timeout")
	flag.StringVar(&cfg.Defaults, "defaults", "", "yaml config used for fields a request leaves out (default: embedded demo config)")

	flag.Parse()

	mode, err := logger.ParseMode(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	log, ah := logger.NewAsync(4096, mode)
	closers := []func(){ah.Close}
	closeFn := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	defaults, err := cfg.defaults()
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	sCfg := &svrcfg.SvrCfg{
		Log:           log,
		Addr:          cfg.Addr,
		MaxIters:      cfg.MaxIters,
		MaxConcurrent: cfg.MaxConcurrent,
		RunTimeout:    cfg.RunTimeout,
		Defaults:      defaults,
	}
	if cfg.Store != "" {
		store, err := checkpoint.NewStore(cfg.Store, cfg.StoreAt)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = store.Close() })
		sCfg.Store = store
	}
	return sCfg, closeFn, nil
}

func (cfg *config) defaults() (*spec.Config, error) {
	if cfg.Defaults == "" {
		return demo.Config()
	}
	b, err := os.ReadFile(cfg.Defaults)
	if err != nil {
		return nil, err
	}
	return spec.GetConfigByYAML(b)
}
