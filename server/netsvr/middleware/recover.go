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
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/server/httperr"
)

// Recover 攔截 handler 的 panic：記錄 stack 並回 500 JSON。http.ErrAbortHandler 照常往上拋。
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				if log != nil {
					log.Error("http.panic",
						slog.String("request_id", GetReqId(r)),
						slog.Any("panic", rv),
						slog.String("stack", string(debug.Stack())))
				}
				httperr.Errs(w, errs.NewFatal(fmt.Sprintf("internal error: %v", rv)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
