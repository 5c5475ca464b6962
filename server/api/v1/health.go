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
	"net/http"
	"runtime"
	"time"

	"github.com/zintix-labs/hdxlab/checkpoint"
)

var started = time.Now()

type HealthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	GoVersion        string `json:"go_version"`
	CheckpointSchema string `json:"checkpoint_schema"`
	CheckpointVer    int    `json:"checkpoint_version"`
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Uptime:           time.Since(started).Round(time.Second).String(),
		GoVersion:        runtime.Version(),
		CheckpointSchema: checkpoint.SchemaName,
		CheckpointVer:    checkpoint.CurrentVersion,
	})
}
