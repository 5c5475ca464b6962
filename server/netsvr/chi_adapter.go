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

package netsvr

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultAddr string = ":5808"

// Timeouts 是 http.Server 的逾時設定。run 請求可能持續數十秒，WriteTimeout 需大於 run 的上限。
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

var DefaultTimeouts = Timeouts{Read: 10 * time.Second, Write: 3 * time.Minute, Idle: 120 * time.Second}

// ChiAdapter 以 chi 實作 NetSvr；handler 與 middleware 都走 net/http。
type ChiAdapter struct {
	router chi.Router
	server *http.Server
	addr   string
}

// NewChiServer 建立指定監聽位址與逾時的 ChiAdapter
func NewChiServer(addr string, to Timeouts) *ChiAdapter {
	if addr == "" {
		addr = defaultAddr
	}
	cr := chi.NewRouter()
	return &ChiAdapter{
		router: cr,
		server: &http.Server{
			Addr:         addr,
			Handler:      cr,
			ReadTimeout:  to.Read,
			WriteTimeout: to.Write,
			IdleTimeout:  to.Idle,
		},
		addr: addr,
	}
}

// NewChiServerDefault 監聽 :5808
func NewChiServerDefault() *ChiAdapter {
	return NewChiServer(defaultAddr, DefaultTimeouts)
}

func (c *ChiAdapter) Ready() bool {
	return (c != nil) && (c.router != nil) && (c.server != nil) &&
		strings.Contains(c.addr, ":") &&
		(c.server.Handler != nil) && (c.server.Handler == c.router)
}

func (c *ChiAdapter) Run() error {
	err := c.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (c *ChiAdapter) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *ChiAdapter) Use(mw func(http.Handler) http.Handler) {
	c.router.Use(mw)
}

func (c *ChiAdapter) Get(path string, h http.HandlerFunc) {
	c.router.Get(path, h)
}

func (c *ChiAdapter) Post(path string, h http.HandlerFunc) {
	c.router.Post(path, h)
}

func (c *ChiAdapter) Put(path string, h http.HandlerFunc) {
	c.router.Put(path, h)
}

func (c *ChiAdapter) Delete(path string, h http.HandlerFunc) {
	c.router.Delete(path, h)
}

func (c *ChiAdapter) Group(path string, fn func(subRouter NetRouter)) {
	c.router.Route(path, func(r chi.Router) {
		fn(&ChiAdapter{router: r})
	})
}

// Handler 回傳根路由，供 httptest 或嵌入其他服務使用
func (c *ChiAdapter) Handler() http.Handler {
	return c.router
}

func (c *ChiAdapter) Address() string {
	return c.addr
}

// URLParam 取出路由參數（例如 /checkpoints/{runID}）
func URLParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
