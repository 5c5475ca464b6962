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

package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zintix-labs/hdxlab/errs"
)

// StatusCode 將錯誤映射成 HTTP status code。
//
// 規則：
//   - ctx timeout/cancel      → 504/408
//   - KindConfig 或 errs.Warn → 400（請求/參數問題）
//   - KindSchema / KindData   → 422（內容可解析但不合法）
//   - 其他                    → 500
//
// 本函數屬於 HTTP 邊界層，核心錯誤包不依賴 net/http。
func StatusCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	var e *errs.E
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch {
	case errs.IsKind(err, errs.KindConfig), e.ErrLv == errs.Warn:
		return http.StatusBadRequest
	case errs.IsKind(err, errs.KindSchema), errs.IsKind(err, errs.KindData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Body 是錯誤回應的 JSON 結構
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Errs 寫回 JSON 錯誤回應
func Errs(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	b := Body{Error: err.Error()}
	var e *errs.E
	if errors.As(err, &e) && e.Kind != errs.KindUnknown {
		b.Kind = e.Kind.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(b)
}

// Log 依狀態碼決定日誌層級；4xx 中只有逾時類會記錄。
func Log(log *slog.Logger, msg string, err error) {
	if err == nil || log == nil {
		return
	}
	status := StatusCode(err)
	switch {
	case status >= 500:
		log.Error(msg, slog.Int("status", status), slog.Any("err", err))
	case status == http.StatusRequestTimeout:
		log.Warn(msg, slog.Int("status", status), slog.Any("err", err))
	}
}
