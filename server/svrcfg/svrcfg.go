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

// Package svrcfg 是 HTTP 服務的組裝設定；所有依賴都由呼叫端明確注入。
package svrcfg

import (
	"log/slog"
	"time"

	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/server/logger"
	"github.com/zintix-labs/hdxlab/spec"
)

const (
	DefaultAddr          = ":5808"
	DefaultMaxIters      = 20_000
	DefaultMaxConcurrent = 2
	DefaultRunTimeout    = 2 * time.Minute
)

type SvrCfg struct {
	Log  *slog.Logger
	Addr string
	// Store 為 nil 時不保存 checkpoint，/v1/checkpoints 回 404
	Store checkpoint.Store
	// MaxIters 單一請求可要求的最大迭代數
	MaxIters int
	// MaxConcurrent 同時進行的 run 數（1..16）
	MaxConcurrent int
	RunTimeout    time.Duration
	// Defaults 是請求未覆寫欄位時使用的設定
	Defaults *spec.Config
}

// Valid 補上預設值並檢查設定
func (sc *SvrCfg) Valid() error {
	if sc.Log != nil {
		if ah, ok := sc.Log.Handler().(*logger.AsyncHandler); ok && !ah.Ready() {
			return errs.NewFatal("nil default log handler: async handler is nil")
		}
	} else {
		sc.Log = logger.NewDefaultLogger(logger.ModeSilence)
	}
	if sc.Addr == "" {
		sc.Addr = DefaultAddr
	}
	if sc.MaxIters <= 0 {
		sc.MaxIters = DefaultMaxIters
	}
	sc.MaxConcurrent = min(16, max(1, sc.MaxConcurrent))
	if sc.RunTimeout <= 0 {
		sc.RunTimeout = DefaultRunTimeout
	}
	if sc.Defaults == nil {
		sc.Defaults = spec.DefaultConfig()
	}
	if err := sc.Defaults.Method.Valid(); err != nil {
		return errs.Wrap(err, "svrcfg: default method")
	}
	return nil
}
