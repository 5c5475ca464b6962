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

// Package netsvr 抽象 HTTP 服務：路由註冊與啟停分開，子模組只拿得到 NetRouter。
package netsvr

import (
	"net/http"

	"github.com/zintix-labs/hdxlab/server/app"
)

// NetSvr 是可被 app.App 管理生命週期的 HTTP 服務
type NetSvr interface {
	NetRouter
	app.Component
	Handler() http.Handler
}

// NetRouter 定義純路由行為，不包含 Run/Shutdown。
type NetRouter interface {
	Use(middleware func(http.Handler) http.Handler)

	Get(path string, h http.HandlerFunc)
	Post(path string, h http.HandlerFunc)
	Put(path string, h http.HandlerFunc)
	Delete(path string, h http.HandlerFunc)

	Group(path string, fn func(NetRouter))
}
