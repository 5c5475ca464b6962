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
	"context"
	"net/http"

	"github.com/zintix-labs/hdxlab"
	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/server/httperr"
	"github.com/zintix-labs/hdxlab/server/netsvr"
	"github.com/zintix-labs/hdxlab/server/netsvr/middleware"
)

// ListCheckpoints GET /v1/checkpoints
func (h *RunHandler) ListCheckpoints(w http.ResponseWriter, q *http.Request) {
	if !h.hasStore(w) {
		return
	}
	list, err := h.cfg.Store.List(q.Context())
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if list == nil {
		list = []checkpoint.Entry{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCheckpoint GET /v1/checkpoints/{runID}：回傳 zstd 壓縮的 checkpoint，可直接作為 -restart 檔案。
func (h *RunHandler) GetCheckpoint(w http.ResponseWriter, q *http.Request) {
	if !h.hasStore(w) {
		return
	}
	runID := netsvr.URLParam(q, "runID")
	b, ok, err := h.cfg.Store.Load(q.Context(), runID)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, httperr.Body{Error: "checkpoint not found: " + runID})
		return
	}
	z, err := checkpoint.Compress(b)
	if err != nil {
		httperr.Errs(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", `attachment; filename="`+runID+`.ckpt.zst"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(z)
}

// Resume POST /v1/checkpoints/{runID}/resume：從已保存的 checkpoint 接續執行。
func (h *RunHandler) Resume(w http.ResponseWriter, q *http.Request) {
	if !h.hasStore(w) {
		return
	}
	runID := netsvr.URLParam(q, "runID")
	sink := recorder.NewMemorySink()
	sink.MaxIterations = defaultTrace
	opts := hdxlab.RunOptions{
		Log:   h.cfg.Log.With("request_id", middleware.GetReqId(q)),
		Sink:  sink,
		Store: h.cfg.Store,
		RunID: runID,
	}
	src := checkpoint.StoreSource(h.cfg.Store, runID)
	h.execute(w, q, sink, h.cfg.Defaults.Method.MCRefVar, func(ctx context.Context) (*hdxlab.Result, error) {
		e, err := hdxlab.Prepare(ctx, 0, nil, src, opts)
		if err != nil {
			return nil, err
		}
		if m := e.Method(); m.MaxIters > h.cfg.MaxIters {
			return nil, errs.Warnf("checkpoint maxiters %d exceeds the server limit %d", m.MaxIters, h.cfg.MaxIters)
		}
		return e.Loop(ctx)
	})
}

func (h *RunHandler) hasStore(w http.ResponseWriter) bool {
	if h.cfg.Store != nil {
		return true
	}
	writeJSON(w, http.StatusNotFound, httperr.Body{Error: "checkpoint store is not configured"})
	return false
}
