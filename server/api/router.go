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

package api

import (
	"context"
	"log/slog"

	v1 "github.com/zintix-labs/hdxlab/server/api/v1"
	"github.com/zintix-labs/hdxlab/server/netsvr"
	"github.com/zintix-labs/hdxlab/server/netsvr/middleware"
	"github.com/zintix-labs/hdxlab/server/svrcfg"
)

// RegisterRoutes 註冊 middleware 與 v1 api；sCfg 需已通過 Valid。
func RegisterRoutes(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	if sCfg.Store != nil {
		if err := sCfg.Store.Init(context.Background()); err != nil {
			return err
		}
	}
	registerMiddleware(svr, sCfg.Log)
	return registerV1API(svr, sCfg)
}

func registerMiddleware(svr netsvr.NetSvr, log *slog.Logger) {
	svr.Use(middleware.RequestID)
	svr.Use(middleware.AccessLog(log))
	svr.Use(middleware.Recover(log))
	svr.Use(middleware.Compression)
}

func registerV1API(svr netsvr.NetSvr, sCfg *svrcfg.SvrCfg) error {
	h, err := v1.NewRunHandler(sCfg)
	if err != nil {
		return err
	}
	svr.Group("/v1", func(vOne netsvr.NetRouter) {
		vOne.Get("/health", v1.Health)
		vOne.Get("/defaults", h.Defaults)

		vOne.Post("/run", h.Run)
		vOne.Post("/demo", h.Demo)

		vOne.Get("/checkpoints", h.ListCheckpoints)
		vOne.Get("/checkpoints/{runID}", h.GetCheckpoint)
		vOne.Post("/checkpoints/{runID}/resume", h.Resume)
	})
	return nil
}
