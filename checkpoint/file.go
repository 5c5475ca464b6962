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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zintix-labs/hdxlab/errs"
)

const fileExt = ".ckpt.zst"

// FileStore 每個 run 一個 <dir>/<run_id>.ckpt.zst，以暫存檔 + rename 原子替換。
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path 回傳 run 的 checkpoint 檔路徑
func (f *FileStore) Path(runID string) string {
	return filepath.Join(f.dir, runID+fileExt)
}

func (f *FileStore) Init(context.Context) error {
	if f.dir == "" {
		return errs.Configf("checkpoint: file store folder is required")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: create folder")
	}
	return nil
}

func (f *FileStore) Save(_ context.Context, rec *Record) error {
	if rec.RunID == "" || strings.ContainsAny(rec.RunID, `/\`) {
		return errs.Warnf("checkpoint: invalid run id %q", rec.RunID).WithKind(errs.KindIO)
	}
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	z, err := Compress(b)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, rec.RunID+".*.tmp")
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(z); err != nil {
		_ = tmp.Close()
		return errs.WrapKind(err, errs.KindIO, "checkpoint: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: close temp file")
	}
	if err := os.Rename(tmp.Name(), f.Path(rec.RunID)); err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: replace checkpoint")
	}
	return nil
}

func (f *FileStore) Load(_ context.Context, runID string) ([]byte, bool, error) {
	b, err := readFile(f.Path(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (f *FileStore) List(ctx context.Context) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*"+fileExt))
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: list folder")
	}
	sort.Strings(paths)
	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		b, err := readFile(p)
		if err != nil {
			return nil, err
		}
		r, err := Decode(b)
		if err != nil {
			continue // 無法解析的檔案不列入
		}
		out = append(out, entryOf(r.Record))
	}
	return out, nil
}

func (f *FileStore) Close() error { return nil }

// readFile 讀檔並解壓縮
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: read "+path)
	}
	return Decompress(b)
}
