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

// Package app 管理長生命週期元件（HTTP server、背景 worker）的啟動與優雅關閉。
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const DefaultShutdownTimeout = 5 * time.Second

// App 啟動所有 Component，並在收到 OS 信號、ctx 取消或任一 Component 結束時統一關閉。
type App struct {
	comps           []Component
	ShutdownTimeout time.Duration
	// OnShutdownErr 收到各 Component 的關閉錯誤；nil 時忽略
	OnShutdownErr func(error)
}

func New() *App { return &App{ShutdownTimeout: DefaultShutdownTimeout} }

// NewWith 建立 App 並註冊 Component
func NewWith(comps ...Component) *App {
	a := New()
	for _, c := range comps {
		a.Register(c)
	}
	return a
}

func (a *App) Register(c Component) {
	a.comps = append(a.comps, c)
}

// Run 等同 RunContext(context.Background())
func (a *App) Run() error {
	return a.RunContext(context.Background())
}

// RunContext 並行啟動所有 Component 並阻塞到下列任一情況：
//   - SIGINT/SIGTERM 或 ctx 取消：優雅關閉後回傳 nil
//   - 任一 Component.Run 返回：優雅關閉後回傳其錯誤
func (a *App) RunContext(ctx context.Context) error {
	if len(a.comps) == 0 {
		return errors.New("app: no component registered")
	}
	errCh := make(chan error, len(a.comps))
	for _, c := range a.comps {
		go func(c Component) {
			errCh <- c.Run()
		}(c)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	select {
	case <-sigCtx.Done():
	case err = <-errCh:
	}
	a.gracefulShutdown()
	return err
}

// gracefulShutdown 在 ShutdownTimeout 內依序呼叫 Component.Shutdown
func (a *App) gracefulShutdown() {
	td := a.ShutdownTimeout
	if td <= 0 {
		td = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), td)
	defer cancel()
	for _, c := range a.comps {
		if err := c.Shutdown(ctx); err != nil && a.OnShutdownErr != nil {
			a.OnShutdownErr(err)
		}
	}
}
