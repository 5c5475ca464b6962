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

package hdxlab

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/loader"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"golang.org/x/sync/errgroup"
)

// SweepOptions 控制多個 gamma 的掃描
type SweepOptions struct {
	Base    RunOptions
	Workers int
	// NewSink 為每個 gamma 建立各自的紀錄；nil 時寫到 <out_prefix>gamma_<gamma>_ 開頭的檔案。
	// Base.Sink 會被所有 gamma 共用，因此只設定 Base.Sink 時回傳設定錯誤。
	NewSink func(gamma float64, prefix string) recorder.Sink
	// ShowProgress 顯示以 run 為單位的進度條
	ShowProgress bool
}

// Sweep 對每個 gamma 跑一次獨立的 run，最多 Workers 個同時進行。
// 資料只讀入一次並在 run 之間共享（唯讀）；每個 run 有自己的 out prefix、seed 與 run id。
// 結果依 gamma 排序，並寫出 <out_prefix>work.dat 合併紀錄（使用預設 sink 時）。
func Sweep(ctx context.Context, gammas []float64, runObj *ensemble.Dataset, o SweepOptions) ([]*Result, error) {
	if len(gammas) == 0 {
		return nil, errs.Configf("sweep: no gamma values")
	}
	if o.Base.Sink != nil && o.NewSink == nil {
		return nil, errs.Configf("sweep: Base.Sink would be shared by every gamma; use NewSink")
	}
	base := o.Base
	if runObj == nil {
		var err error
		if runObj, err = loader.Load(&base.Run); err != nil {
			return nil, err
		}
	}
	seed := base.Run.Seed
	if seed == 0 {
		seed = core.RandomSeed()
	}
	seeds := core.NewSeedMaker(seed)
	runs := make([]RunOptions, len(gammas))
	for i, g := range gammas {
		ro := base
		ro.Run.Seed = seeds.Next()
		ro.Run.OutPrefix = fmt.Sprintf("%sgamma_%g_", base.Run.OutPrefix, g)
		ro.RunID = uuid.NewString()
		ro.Progress = nil
		if o.NewSink != nil {
			ro.Sink = o.NewSink(g, ro.Run.OutPrefix)
		} else {
			ro.Sink = recorder.NewFileSink(ro.Run.OutPrefix)
		}
		runs[i] = ro
	}

	workers := o.Workers
	if workers <= 0 {
		workers = 1
	}
	bar := pb.StartNew(len(gammas))
	if !o.ShowProgress {
		bar.SetWriter(io.Discard)
	}
	defer bar.Finish()

	results := make([]*Result, len(gammas))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range gammas {
		eg.Go(func() error {
			res, err := Run(ectx, gammas[i], runObj, nil, runs[i])
			if err != nil {
				return errs.Wrap(err, fmt.Sprintf("sweep: gamma %g", gammas[i]))
			}
			results[i] = res
			bar.Increment()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Gamma < results[b].Gamma })
	if o.NewSink == nil {
		rows := make([]recorder.WorkRow, len(results))
		for i, r := range results {
			rows[i] = recorder.WorkRow{Gamma: r.Gamma, MSE: r.MSE, Work: r.Work}
		}
		if err := recorder.WriteWorkTrace(base.Run.OutPrefix+"work.dat", rows); err != nil {
			return results, err
		}
	}
	return results, nil
}
