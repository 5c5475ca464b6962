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

package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zintix-labs/hdxlab/errs"
)

// FileSink 把紀錄寫到 <prefix>initial_params.dat、work.dat、per_iteration_output.dat、per_restart_output.dat。
//
// per-iteration 紀錄先進緩衝區，在每個 checkpoint 與 Close 時落盤。
type FileSink struct {
	prefix string
	mu     sync.Mutex
	iter   *os.File
	iterW  *bufio.Writer
}

func NewFileSink(prefix string) *FileSink {
	return &FileSink{prefix: prefix}
}

func (f *FileSink) path(name string) string {
	return f.prefix + name
}

// Dir 回傳 prefix 所在的資料夾
func (f *FileSink) Dir() string {
	return filepath.Dir(f.prefix + "x")
}

func (f *FileSink) Start(p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureDir(); err != nil {
		return err
	}
	if err := writeFile(f.path("initial_params.dat"), false, paramsHeader+p.line()); err != nil {
		return err
	}
	if err := writeFile(f.path("work.dat"), false, workHeader); err != nil {
		return err
	}
	if err := writeFile(f.path("per_restart_output.dat"), false, restartHeader); err != nil {
		return err
	}
	return f.openIter(false, iterHeader)
}

func (f *FileSink) Restarted(source string, p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureDir(); err != nil {
		return err
	}
	mark := fmt.Sprintf(restartedMarker, source)
	if err := writeFile(f.path("initial_params.dat"), true, mark+paramsHeader+p.line()); err != nil {
		return err
	}
	if err := writeFile(f.path("work.dat"), true, mark+workHeader); err != nil {
		return err
	}
	if err := writeFile(f.path("per_restart_output.dat"), true, mark+restartHeader); err != nil {
		return err
	}
	return f.openIter(true, mark+iterHeader)
}

func (f *FileSink) RandomSeed(seed int64) error {
	return writeFile(f.path("initial_params.dat"), true,
		fmt.Sprintf("Initial weights were randomized, seed for RandomState = %d\n", seed))
}

// RandomWeights 把隨機初始權重寫到 prefix 所在資料夾，檔名由 seed 決定。
func (f *FileSink) RandomWeights(seed int64, w []float64) error {
	buf := make([]byte, 0, len(w)*26)
	for _, v := range w {
		buf = fmt.Appendf(buf, "%.18e\n", v)
	}
	return writeFile(filepath.Join(f.Dir(), RandomWeightsName(seed)), false, string(buf))
}

func (f *FileSink) Iteration(r Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.iterW == nil {
		if err := f.openIter(true, ""); err != nil {
			return err
		}
	}
	if _, err := f.iterW.WriteString(r.line()); err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: write per-iteration row")
	}
	return nil
}

func (f *FileSink) Restart(r Row) error {
	if err := f.flush(); err != nil {
		return err
	}
	return writeFile(f.path("per_restart_output.dat"), true, r.restartLine())
}

func (f *FileSink) Work(w WorkRow) error {
	return writeFile(f.path("work.dat"), true, w.line())
}

func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.iter == nil {
		return nil
	}
	err := f.iterW.Flush()
	if cerr := f.iter.Close(); err == nil {
		err = cerr
	}
	f.iter, f.iterW = nil, nil
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: close per-iteration output")
	}
	return nil
}

func (f *FileSink) flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.iterW == nil {
		return nil
	}
	if err := f.iterW.Flush(); err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: flush per-iteration output")
	}
	return nil
}

func (f *FileSink) ensureDir() error {
	if err := os.MkdirAll(f.Dir(), 0o755); err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: create output folder")
	}
	return nil
}

// openIter 開啟 per-iteration 檔；呼叫端需持有鎖。
func (f *FileSink) openIter(appendMode bool, head string) error {
	if f.iter != nil {
		_ = f.iterW.Flush()
		_ = f.iter.Close()
	}
	file, err := os.OpenFile(f.path("per_iteration_output.dat"), openFlags(appendMode), 0o644)
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: open per-iteration output")
	}
	f.iter = file
	f.iterW = bufio.NewWriterSize(file, 64*1024)
	if head != "" {
		if _, err := f.iterW.WriteString(head); err != nil {
			return errs.WrapKind(err, errs.KindIO, "recorder: write per-iteration header")
		}
	}
	return nil
}

func openFlags(appendMode bool) int {
	if appendMode {
		return os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
}

func writeFile(path string, appendMode bool, body string) error {
	file, err := os.OpenFile(path, openFlags(appendMode), 0o644)
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: open "+path)
	}
	if _, err := file.WriteString(body); err != nil {
		file.Close()
		return errs.WrapKind(err, errs.KindIO, "recorder: write "+path)
	}
	if err := file.Close(); err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: close "+path)
	}
	return nil
}

// WriteWorkTrace 寫出多個 gamma 合併後的 work 紀錄（覆寫）。
func WriteWorkTrace(path string, rows []WorkRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.WrapKind(err, errs.KindIO, "recorder: create output folder")
	}
	body := workHeader
	for _, w := range rows {
		body += w.line()
	}
	return writeFile(path, false, body)
}
