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

package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncHandler 把任何 slog.Handler 變成非阻塞：
//   - Handle 只做 enqueue，由背景 goroutine 逐筆交給 next
//   - 佇列滿時 Info 以下丟棄並累計 Dropped；Warn 以上等待佇列空出位置
//   - 已 Close 後一律丟棄
//
// slog.Logger 會忽略 Handle 回傳的 error；I/O 錯誤需在 next 內自行處理。
type AsyncHandler struct {
	next slog.Handler
	d    *asyncDispatcher
}

type asyncDispatcher struct {
	ch     chan asyncItem
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	dropCount atomic.Uint64
}

type asyncItem struct {
	ctx     context.Context
	rec     slog.Record
	handler slog.Handler
}

// NewAsyncHandler 以 buf 大小的佇列包裝 next
func NewAsyncHandler(next slog.Handler, buf int) *AsyncHandler {
	if next == nil {
		next = buildHandler(ModeDev, nil)
	}
	if buf <= 0 {
		buf = 1024
	}
	d := &asyncDispatcher{
		ch:     make(chan asyncItem, buf),
		closed: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return &AsyncHandler{next: next, d: d}
}

func (h *AsyncHandler) Ready() bool {
	return h != nil && h.d != nil
}

// Dropped 回傳被丟棄的筆數
func (h *AsyncHandler) Dropped() uint64 {
	if !h.Ready() {
		return 0
	}
	return h.d.dropCount.Load()
}

// Close 停止接收並把佇列中剩下的紀錄寫完
func (h *AsyncHandler) Close() {
	if !h.Ready() {
		return
	}
	h.d.once.Do(func() { close(h.d.closed) })
	h.d.wg.Wait()
}

func (d *asyncDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case it := <-d.ch:
			it.handle()
		case <-d.closed:
			for {
				select {
				case it := <-d.ch:
					it.handle()
				default:
					return
				}
			}
		}
	}
}

func (it asyncItem) handle() {
	if it.handler != nil {
		_ = it.handler.Handle(it.ctx, it.rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Ready() {
		return nil
	}
	select {
	case <-h.d.closed:
		h.d.dropCount.Add(1)
		return nil
	default:
	}
	// Record 跨 goroutine 前必須 Clone
	it := asyncItem{ctx: context.WithoutCancel(ctx), rec: r.Clone(), handler: h.next}
	if r.Level >= slog.LevelWarn {
		select {
		case h.d.ch <- it:
		case <-h.d.closed:
			h.d.dropCount.Add(1)
		}
		return nil
	}
	select {
	case h.d.ch <- it:
	default:
		h.d.dropCount.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), d: h.d}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), d: h.d}
}
