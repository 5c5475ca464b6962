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

// Package checkpoint 保存與還原 run 的完整狀態。
//
// Record 是具名欄位、帶版本的 JSON 文件；Decode 在回傳前檢查 schema、版本與每個陣列的形狀，
// 任何不符都以 KindSchema 致命錯誤拒絕，不會部分採用。儲存後端可以是檔案、sqlite 或記憶體。
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/spec"
)

const (
	SchemaName     = "hdxlab.checkpoint"
	CurrentVersion = 1
)

var ErrVersionMismatch = errors.New("checkpoint version mismatch")

// Record 一次 checkpoint 的完整內容
type Record struct {
	Schema  string                `json:"schema"`
	Version int                   `json:"version"`
	RunID   string                `json:"run_id"`
	Gamma   float64               `json:"gamma"`
	Status  string                `json:"status"`
	Method  spec.MethodSetting    `json:"method"`
	Run     spec.RunSetting       `json:"run"`
	Dataset *ensemble.DatasetJSON `json:"dataset"`
	State   *ensemble.State       `json:"state"`
	RNG     []byte                `json:"rng,omitempty"` // MC 取樣器的 PRNG 快照
	SavedAt time.Time             `json:"saved_at"`
}

// Restored 通過驗證、可直接採用的 checkpoint
type Restored struct {
	Record  *Record
	Problem *ensemble.Problem
}

// Encode 序列化為 JSON（未壓縮）。
func Encode(r *Record) ([]byte, error) {
	if r.Schema == "" {
		r.Schema = SchemaName
	}
	if r.Version == 0 {
		r.Version = CurrentVersion
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: encode record")
	}
	return b, nil
}

// Decode 解析並完整驗證一份 checkpoint。
func Decode(data []byte) (*Restored, error) {
	rec := &Record{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: malformed record")
	}
	if rec.Schema != SchemaName {
		return nil, errs.Schemaf("checkpoint: schema %q, want %q", rec.Schema, SchemaName)
	}
	if rec.Version != CurrentVersion {
		return nil, errs.WrapKind(ErrVersionMismatch, errs.KindSchema, "checkpoint: unsupported version")
	}
	if rec.Dataset == nil || rec.State == nil {
		return nil, errs.Schemaf("checkpoint: dataset and state are required")
	}
	if err := rec.Method.Valid(); err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: method settings")
	}
	if err := rec.Run.Valid(); err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: run settings")
	}
	if rec.Gamma != rec.Run.Gamma {
		return nil, errs.Schemaf("checkpoint: gamma %v differs from run gamma %v", rec.Gamma, rec.Run.Gamma)
	}
	d, err := rec.Dataset.Dataset()
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: dataset")
	}
	p, err := ensemble.NewProblem(d)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: dataset")
	}
	if err := rec.State.Check(p, rec.Method.Coupled()); err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: state")
	}
	if rec.Method.Mode() != spec.MCOff && len(rec.RNG) == 0 {
		return nil, errs.Schemaf("checkpoint: parameter sampling enabled but no rng snapshot")
	}
	return &Restored{Record: rec, Problem: p}, nil
}
