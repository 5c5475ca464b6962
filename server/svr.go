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

// Package server 組裝並啟動 HTTP 服務。
//
// Run 只負責：驗證 SvrCfg、建立 chi server、註冊路由、交給 app 管理生命週期。
// 它不綁定任何檔案路徑或環境變數；所有依賴（logger、checkpoint store、預設設定）都由 SvrCfg 注入。
// 需要自訂組裝時，直接呼叫 api.RegisterRoutes 掛到自己的 NetSvr 上即可。
package server

import (
	"context"
	"log/slog"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/server/api"
	"github.com/zintix-labs/hdxlab/server/app"
	"github.com/zintix-labs/hdxlab/server/netsvr"
	"github.com/zintix-labs/hdxlab/server/svrcfg"
)

// Build 驗證設定並回傳已註冊路由的預設 server。
func Build(sCfg *svrcfg.SvrCfg) (*netsvr.ChiAdapter, error) {
	if err := sCfg.Valid(); err != nil {
		return nil, err
	}
	to := netsvr.DefaultTimeouts
	to.Write = max(to.Write, sCfg.RunTimeout+to.Read)
	svr := netsvr.NewChiServer(sCfg.Addr, to)
	if err := api.RegisterRoutes(svr, sCfg); err != nil {
		return nil, err
	}
	return svr, nil
}

// Run 啟動預設 server，阻塞到 ctx 取消、收到終止信號或 server 出錯。
func Run(ctx context.Context, sCfg *svrcfg.SvrCfg) error {
	svr, err := Build(sCfg)
	if err != nil {
		return err
	}
	return serve(ctx, sCfg, svr)
}

// RunWithSvr 與 Run 相同，但使用呼叫端注入的 NetSvr。
func RunWithSvr(ctx context.Context, sCfg *svrcfg.SvrCfg, svr netsvr.NetSvr) error {
	if err := sCfg.Valid(); err != nil {
		return err
	}
	if svr == nil {
		return errs.NewFatal("svr is required")
	}
	if s, ok := svr.(*netsvr.ChiAdapter); ok && !s.Ready() {
		return errs.NewFatal("default server is not ready")
	}
	if err := api.RegisterRoutes(svr, sCfg); err != nil {
		return err
	}
	return serve(ctx, sCfg, svr)
}

func serve(ctx context.Context, sCfg *svrcfg.SvrCfg, svr netsvr.NetSvr) error {
	a := app.NewWith(svr)
	a.OnShutdownErr = func(err error) { sCfg.Log.Warn("shutdown", slog.Any("err", err)) }
	if s, ok := svr.(*netsvr.ChiAdapter); ok {
		sCfg.Log.Info("[hdxlab] listening on http://localhost" + s.Address())
	}
	if err := a.RunContext(ctx); err != nil {
		sCfg.Log.Error("app stopped", slog.Any("err", err))
		return err
	}
	return nil
}
