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

package checkpoint

import (
	"context"

	"github.com/zintix-labs/hdxlab/errs"
)

// Source 是 restart 的來源
type Source interface {
	// Name 寫入 "# RESTARTED FROM FILE <name> :" 標記
	Name() string
	Open(ctx context.Context) (*Restored, error)
}

type fileSource struct {
	path string
}

// FileSource 從單一檔案（zstd 壓縮或純 JSON）讀入 checkpoint。
func FileSource(path string) Source {
	return &fileSource{path: path}
}

func (f *fileSource) Name() string { return f.path }

func (f *fileSource) Open(context.Context) (*Restored, error) {
	b, err := readFile(f.path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

type storeSource struct {
	store Store
	runID string
}

// StoreSource 從 Store 讀入指定 run 的最新 checkpoint。
func StoreSource(store Store, runID string) Source {
	return &storeSource{store: store, runID: runID}
}

func (s *storeSource) Name() string { return "store:" + s.runID }

func (s *storeSource) Open(ctx context.Context) (*Restored, error) {
	b, ok, err := s.store.Load(ctx, s.runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Configf("checkpoint: no checkpoint stored for run %q", s.runID)
	}
	return Decode(b)
}
