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

package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zintix-labs/hdxlab"
	"github.com/zintix-labs/hdxlab/demo"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/server/httperr"
	"github.com/zintix-labs/hdxlab/server/netsvr/middleware"
	"github.com/zintix-labs/hdxlab/server/svrcfg"
	"github.com/zintix-labs/hdxlab/spec"
	"github.com/zintix-labs/hdxlab/stats"
)

const (
	defaultTrace = 100
	maxBodyBytes = 64 << 20
)

// RunHandler 處理 run 相關請求；同時進行的 run 數由 semaphore 限制。
type RunHandler struct {
	cfg *svrcfg.SvrCfg
	sem chan struct{}
}

func NewRunHandler(cfg *svrcfg.SvrCfg) (*RunHandler, error) {
	if cfg == nil || cfg.Defaults == nil {
		return nil, errs.NewFatal("run handler: server config is not initialised")
	}
	return &RunHandler{cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrent)}, nil
}

// RunRequest 是 POST /v1/run 的請求
type RunRequest struct {
	Gamma   float64               `json:"gamma,omitempty"`
	Method  json.RawMessage       `json:"method,omitempty"` // 只覆寫出現的欄位
	Dataset *ensemble.DatasetJSON `json:"dataset"`
	Seed    *int64                `json:"seed,omitempty"`
	Trace   int                   `json:"trace,omitempty"` // 回傳最後幾筆迭代紀錄，預設 100
}

// DemoRequest 是 POST /v1/demo 的請求；資料由合成器產生
type DemoRequest struct {
	Gamma   float64         `json:"gamma,omitempty"`
	Method  json.RawMessage `json:"method,omitempty"`
	Options *demo.Options   `json:"options,omitempty"`
	Seed    *int64          `json:"seed,omitempty"`
	Trace   int             `json:"trace,omitempty"`
}

type RunResponse struct {
	Result   *hdxlab.Result   `json:"result"`
	Report   *stats.RunReport `json:"report"`
	Trace    []recorder.Row   `json:"trace"`
	Restarts []recorder.Row   `json:"restarts"`
	UsedTime int64            `json:"used_ms"`
}

func (h *RunHandler) Run(w http.ResponseWriter, q *http.Request) {
	req := new(RunRequest)
	if err := decodeBody(w, q, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	if req.Dataset == nil {
		httperr.Errs(w, errs.NewWarn("dataset is required"))
		return
	}
	d, err := req.Dataset.Dataset()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	h.serve(w, q, d, h.cfg.Defaults, req.Gamma, req.Method, req.Seed, req.Trace)
}

func (h *RunHandler) Demo(w http.ResponseWriter, q *http.Request) {
	req := new(DemoRequest)
	if err := decodeBody(w, q, req); err != nil {
		httperr.Errs(w, err)
		return
	}
	o := demo.DefaultOptions()
	if req.Options != nil {
		o = *req.Options
	}
	d, err := demo.Generate(o)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	base, err := demo.Config()
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	h.serve(w, q, d, base, req.Gamma, req.Method, req.Seed, req.Trace)
}

// Defaults 回傳伺服器使用的預設設定
func (h *RunHandler) Defaults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Defaults)
}

func (h *RunHandler) serve(w http.ResponseWriter, q *http.Request, d *ensemble.Dataset, base *spec.Config, gamma float64, overrides json.RawMessage, seed *int64, trace int) {
	method, err := spec.DecodeMethodOverrides(base.Method, overrides)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if method.MaxIters > h.cfg.MaxIters {
		httperr.Errs(w, errs.Warnf("maxiters %d exceeds the server limit %d", method.MaxIters, h.cfg.MaxIters))
		return
	}
	run := base.Run
	if gamma == 0 {
		gamma = run.Gamma
	}
	if seed != nil {
		run.Seed = *seed
	}
	if trace <= 0 {
		trace = defaultTrace
	}
	sink := recorder.NewMemorySink()
	sink.MaxIterations = trace
	opts := hdxlab.RunOptions{
		Method: method,
		Run:    run,
		Log:    h.cfg.Log.With("request_id", middleware.GetReqId(q)),
		Sink:   sink,
		Store:  h.cfg.Store,
	}
	h.execute(w, q, sink, method.MCRefVar, func(ctx context.Context) (*hdxlab.Result, error) {
		return hdxlab.Run(ctx, gamma, d, nil, opts)
	})
}

// execute 取得執行額度後在逾時限制內跑完 run；逾時的 run 以 interrupted 狀態回傳。
func (h *RunHandler) execute(w http.ResponseWriter, q *http.Request, sink *recorder.MemorySink, refVar float64, fn func(context.Context) (*hdxlab.Result, error)) {
	ctx, cancel := context.WithTimeout(q.Context(), h.cfg.RunTimeout)
	defer cancel()
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		httperr.Errs(w, ctx.Err())
		return
	}
	start := time.Now()
	res, err := fn(ctx)
	if err != nil {
		httperr.Log(h.cfg.Log, "run failed", err)
		httperr.Errs(w, err)
		return
	}
	w.Header().Set(middleware.RunIDHeader, res.RunID)
	writeJSON(w, http.StatusOK, RunResponse{
		Result:   res,
		Report:   stats.NewRunReport(res, refVar),
		Trace:    sink.Tail(0),
		Restarts: sink.Restarts,
		UsedTime: time.Since(start).Milliseconds(),
	})
}

// decodeBody 嚴格解析 JSON：未知欄位與多餘內容都視為請求錯誤。
func decodeBody(w http.ResponseWriter, q *http.Request, dst any) error {
	body := http.MaxBytesReader(w, q.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.NewWarn("invalid json: " + err.Error())
	}
	if dec.More() {
		return errs.NewWarn("invalid json: trailing data")
	}
	return nil
}

// writeJSON 先完整編碼再寫出，避免寫到一半才失敗
func writeJSON(w http.ResponseWriter, status int, v any) {
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(v); err != nil {
		httperr.Errs(w, errs.WrapKind(err, errs.KindNumeric, "encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b.Bytes())
}
