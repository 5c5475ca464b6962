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
	"net/http"

	chimid "github.com/go-chi/chi/v5/middleware"
)

const RequestIDHeader = "X-Request-Id"

// RequestID 產生（或沿用 X-Request-Id）request id，並回寫到回應標頭。
func RequestID(next http.Handler) http.Handler {
	return chimid.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimid.GetReqID(r.Context()); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	}))
}

func GetReqId(r *http.Request) string {
	return chimid.GetReqID(r.Context())
}
