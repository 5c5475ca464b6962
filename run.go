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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/loader"
	"github.com/zintix-labs/hdxlab/optimizer"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"github.com/zintix-labs/hdxlab/spec"
)

// RestartSource 提供 restart 用的 checkpoint
type RestartSource = checkpoint.Source

// RunOptions 是一次 run 的組裝參數
type RunOptions struct {
	Method spec.MethodSetting
	Run    spec.RunSetting

	// Log 為 nil 時不輸出任何日誌
	Log *slog.Logger
	// Sink 為 nil 時寫入 Run.OutPrefix 開頭的檔案
	Sink recorder.Sink
	// Store 為 nil 時只寫 per-restart 紀錄，不保存 checkpoint
	Store checkpoint.Store
	// RunID 為空時自動產生
	RunID string
	// Progress 每次迭代後呼叫（在 run 的 goroutine 上）
	Progress func(st *ensemble.State)
}

// DefaultRunOptions 回傳預設 method/run 設定
func DefaultRunOptions() RunOptions {
	return RunOptions{Method: spec.DefaultMethodSetting(), Run: spec.DefaultRunSetting()}
}

// Result 是一次 run 的摘要
type Result struct {
	RunID         string        `json:"run_id"`
	Gamma         float64       `json:"gamma"`
	Status        Status        `json:"status"`
	Iterations    int           `json:"iterations"`
	MSE           float64       `json:"mse"`
	MeanDeviation float64       `json:"mean_deviation"`
	Work          float64       `json:"work"`
	Bc            float64       `json:"bc"`
	Bh            float64       `json:"bh"`
	Lambdas       []float64     `json:"lambdas"`
	Weights       []float64     `json:"weights"`
	Seed          int64         `json:"seed"`
	NDatapoints   int           `json:"n_datapoints"`
	NSegs         int           `json:"n_segments"`
	NTimes        int           `json:"n_times"`
	MCAccepted    int           `json:"mc_accepted"`
	MCProposed    int           `json:"mc_proposed"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Run 建立並執行一次 run。來源優先順序：restart > runObj > 依 opts.Run 從檔案讀入。
func Run(ctx context.Context, gamma float64, runObj *ensemble.Dataset, restart RestartSource, opts RunOptions) (*Result, error) {
	e, err := Prepare(ctx, gamma, runObj, restart, opts)
	if err != nil {
		return nil, err
	}
	return e.Loop(ctx)
}

// Prepare 完成 Initializing 階段並回傳尚未迭代的 Engine。
// 任何設定或資料錯誤都在第一次迭代前回傳。
func Prepare(ctx context.Context, gamma float64, runObj *ensemble.Dataset, restart RestartSource, opts RunOptions) (*Engine, error) {
	e := &Engine{
		runID:    opts.RunID,
		log:      opts.Log,
		sink:     opts.Sink,
		store:    opts.Store,
		progress: opts.Progress,
		started:  time.Now(),
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}

	var err error
	if restart != nil {
		err = e.adopt(ctx, restart)
	} else {
		err = e.fresh(gamma, runObj, opts)
	}
	if err != nil {
		return nil, err
	}

	if e.method.Mode() != spec.MCOff {
		if e.sampler, err = optimizer.NewSampler(e.prob, &e.method, e.gamma, e.core); err != nil {
			return nil, err
		}
	}
	if e.store != nil {
		if err := e.store.Init(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// adopt 讀入並驗證 checkpoint，通過後才採用其中全部內容。
func (e *Engine) adopt(ctx context.Context, src RestartSource) error {
	r, err := src.Open(ctx)
	if err != nil {
		return err
	}
	rec := r.Record
	e.gamma = rec.Gamma
	e.method = rec.Method
	e.run = rec.Run
	e.prob = r.Problem
	e.st = rec.State
	e.dataJSON = rec.Dataset
	if e.runID == "" {
		e.runID = rec.RunID
	}
	e.core = core.NewWithSeed(e.st.Seed)
	if len(rec.RNG) > 0 {
		if err := e.core.Restore(rec.RNG); err != nil {
			return err
		}
	}
	if e.sink == nil {
		e.sink = recorder.NewFileSink(e.run.OutPrefix)
	}
	if err := e.sink.Restarted(src.Name(), e.params()); err != nil {
		e.log.Warn("trace.failed", "err", err)
	}
	e.log.Info("run.restart", "run_id", e.runID, "source", src.Name(), "iter", e.st.Iter, "gamma", e.gamma)
	return nil
}

// fresh 以 run object 或檔案建立新的 run。
func (e *Engine) fresh(gamma float64, d *ensemble.Dataset, opts RunOptions) error {
	e.method = opts.Method
	if err := e.method.Init(); err != nil {
		return err
	}
	e.run = opts.Run
	e.run.Gamma = gamma
	if err := e.run.Valid(); err != nil {
		return err
	}
	e.gamma = gamma
	if e.runID == "" {
		e.runID = uuid.NewString()
	}

	if d == nil {
		var err error
		if d, err = loader.Load(&e.run); err != nil {
			return err
		}
	}
	p, err := ensemble.NewProblem(d)
	if err != nil {
		return err
	}
	e.prob = p

	seed := e.run.Seed
	if seed == 0 {
		seed = core.RandomSeed()
		e.run.Seed = seed
	}
	seeds := core.NewSeedMaker(seed)
	weightSeed, mcSeed := seeds.Next(), seeds.Next()

	ini := d.InitialWeights()
	if e.method.RandomInitial {
		core.NewWithSeed(weightSeed).Fill(ini)
	}
	if e.st, err = ensemble.NewState(p, &e.method, ini); err != nil {
		return err
	}
	e.st.Seed = seed
	if e.method.RandomInitial {
		e.st.WeightSeed = weightSeed
	}
	e.core = core.NewWithSeed(mcSeed)

	if e.sink == nil {
		e.sink = recorder.NewFileSink(e.run.OutPrefix)
	}
	if err := e.sink.Start(e.params()); err != nil {
		e.log.Warn("trace.failed", "err", err)
	}
	if e.method.RandomInitial {
		if err := e.sink.RandomSeed(weightSeed); err != nil {
			e.log.Warn("trace.failed", "err", err)
		}
		if err := e.sink.RandomWeights(weightSeed, ini); err != nil {
			e.log.Warn("trace.failed", "err", err)
		}
	}
	e.log.Info("run.start",
		"run_id", e.runID, "gamma", e.gamma, "residues", p.NRes, "frames", p.NFrames,
		"segments", p.NSegs, "times", p.NTimes, "seed", seed, "mode", e.method.Mode().String())
	return nil
}

func (e *Engine) params() recorder.Params {
	return recorder.Params{
		Temp:       e.method.Temp,
		KT:         e.method.KT(),
		Tolerance:  e.method.Tolerance,
		Bc:         e.st.Bc,
		Bh:         e.st.Bh,
		Gamma:      e.gamma,
		StepFactor: e.st.StepFactor,
		NFrames:    e.prob.NFrames,
	}
}

// Result 回傳目前的摘要
func (e *Engine) Result() *Result {
	st := e.st
	return &Result{
		RunID:         e.runID,
		Gamma:         e.gamma,
		Status:        e.status,
		Iterations:    st.Iter,
		MSE:           st.MSE,
		MeanDeviation: st.MeanDev,
		Work:          e.work,
		Bc:            st.Bc,
		Bh:            st.Bh,
		Lambdas:       append([]float64(nil), st.Lambdas...),
		Weights:       append([]float64(nil), st.Weights...),
		Seed:          st.Seed,
		NDatapoints:   e.prob.NDatapoints,
		NSegs:         e.prob.NSegs,
		NTimes:        e.prob.NTimes,
		MCAccepted:    st.MCAccepted,
		MCProposed:    st.MCProposed,
		Elapsed:       time.Since(e.started),
	}
}
