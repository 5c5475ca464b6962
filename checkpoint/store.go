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
	"time"

	"github.com/zintix-labs/hdxlab/errs"
)

// Entry 是 List 回傳的索引資料
type Entry struct {
	RunID   string    `json:"run_id"`
	Gamma   float64   `json:"gamma"`
	Iter    int       `json:"iter"`
	Status  string    `json:"status"`
	SavedAt time.Time `json:"saved_at"`
}

// Store 依 run id 保存最新的一份 checkpoint。
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec *Record) error
	// Load 回傳未壓縮的 record；不存在時 ok 為 false。
	Load(ctx context.Context, runID string) (payload []byte, ok bool, err error)
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// NewStore 依種類建立 Store：memory、file（location 為資料夾）、sqlite（location 為資料庫檔）。
func NewStore(kind, location string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(location), nil
	case "sqlite":
		return NewSQLiteStore(location), nil
	default:
		return nil, errs.Configf("checkpoint: unsupported store backend %q", kind)
	}
}

func entryOf(rec *Record) Entry {
	e := Entry{RunID: rec.RunID, Gamma: rec.Gamma, Status: rec.Status, SavedAt: rec.SavedAt}
	if rec.State != nil {
		e.Iter = rec.State.Iter
	}
	return e
}
