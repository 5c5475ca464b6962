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

package perf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/zintix-labs/hdxlab/errs"
)

// pprof 檔案寫入路徑
const pprofDir = "build/profiling"

// RunPProf 依 mode 決定 exe 的 profiling 方式：""、cpu、heap、allocs。
//
// exe 的錯誤原樣回傳；profile 本身寫入失敗時回傳 KindIO 錯誤。
func RunPProf(exe func() error, mode string) error {
	switch strings.ToLower(mode) {
	case "":
		return exe()
	case "cpu":
		return PProfCPU(exe)
	case "heap":
		return PProfHeap(exe)
	case "allocs":
		return PProfAllocs(exe)
	default:
		return errs.Configf("perf: unknown pprof mode %q (want cpu, heap or allocs)", mode)
	}
}

// PProfCPU 在 exe 執行期間開啟 CPU profiling。
//
// 可以作性能分析，也可以拿來做構建時給pgo的優化blueprint
//
// Usage like:
//
//	go run ./cmd/run -cfg run.yaml -p cpu
func PProfCPU(exe func() error) error {
	f, err := create("cpu.pprof")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		return errs.WrapKind(err, errs.KindIO, "failed to start pprof")
	}
	defer pprof.StopCPUProfile()

	return exe()
}

// PProfHeap 會在 exe() 執行完後，寫出一次 Heap Snapshot（in-use memory）。
// 寫出前先呼叫一次 runtime.GC()，以獲得較準確的 Live Objects 視圖。
// 輸出檔：build/profiling/heap.pprof
func PProfHeap(exe func() error) error {
	runErr := exe()

	runtime.GC()
	f, err := create("heap.pprof")
	if err != nil {
		return errors.Join(runErr, err)
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Join(runErr, errs.WrapKind(err, errs.KindIO, "failed to write heap profile"))
	}
	return runErr
}

// PProfAllocs 會在 exe() 後寫出「累積配置」(allocs) Profile，
// 需要搭配 -alloc_space / -alloc_objects 指標查看。
// 輸出檔：build/profiling/allocs.pprof
func PProfAllocs(exe func() error) error {
	runErr := exe()

	f, err := create("allocs.pprof")
	if err != nil {
		return errors.Join(runErr, err)
	}
	defer f.Close()
	if prof := pprof.Lookup("allocs"); prof != nil {
		if err := prof.WriteTo(f, 0); err != nil {
			return errors.Join(runErr, errs.WrapKind(err, errs.KindIO, "failed to write allocs profile"))
		}
	}
	return runErr
}

func create(name string) (*os.File, error) {
	if err := os.MkdirAll(pprofDir, 0o755); err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "failed to create profiling dir")
	}
	f, err := os.Create(filepath.Join(pprofDir, name))
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, fmt.Sprintf("failed to create %s", name))
	}
	return f, nil
}
