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

package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RunIDHeader 由執行 run 的 handler 設定，access log 會一併記錄
const RunIDHeader = "X-Run-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// AccessLog 每個請求輸出一筆 http.access；log 為 nil 時不做事。
// 層級依狀態碼：5xx error、4xx warn、其他 info。
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			attrs := make([]slog.Attr, 0, 7)
			attrs = append(attrs,
				slog.String("request_id", GetReqId(r)),
				slog.Int("status", rw.status),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("bytes", rw.bytes),
				slog.Duration("latency", time.Since(start)),
			)
			if id := w.Header().Get(RunIDHeader); id != "" {
				attrs = append(attrs, slog.String("run_id", id))
			}
			log.LogAttrs(r.Context(), levelByStatus(rw.status), "http.access", attrs...)
		})
	}
}

func levelByStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
