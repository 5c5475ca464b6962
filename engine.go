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
	"math"
	"time"

	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/optimizer"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"github.com/zintix-labs/hdxlab/sdk/forward"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/floats"
)

// Engine 是單一 gamma 的重加權迴圈。
//
// Engine 不是並行安全的：一個 run 只由一個 goroutine 推進。
type Engine struct {
	runID  string
	gamma  float64
	method spec.MethodSetting
	run    spec.RunSetting

	prob    *ensemble.Problem
	st      *ensemble.State
	core    *core.Core
	sampler *optimizer.Sampler

	sink  recorder.Sink
	store checkpoint.Store
	log   *slog.Logger

	status   Status
	err      error
	work     float64
	dataJSON *ensemble.DatasetJSON
	progress func(*ensemble.State)
	started  time.Time

	// 本次迭代前後的 Σ|λ| 與 Bc+Bh，供收斂判斷
	prevL1, curL1 float64
	prevB, curB   float64
}

func (e *Engine) RunID() string              { return e.runID }
func (e *Engine) Gamma() float64             { return e.gamma }
func (e *Engine) Status() Status             { return e.status }
func (e *Engine) Problem() *ensemble.Problem { return e.prob }
func (e *Engine) Method() spec.MethodSetting { return e.method }

// State 回傳目前狀態的副本
func (e *Engine) State() *ensemble.State { return e.st.Clone() }

// Step 執行恰好一次迭代。終止狀態下呼叫不做任何事。
func (e *Engine) Step(ctx context.Context) error {
	if e.status.Terminal() {
		return nil
	}
	e.status = StatusIterating
	if err := e.iterate(); err != nil {
		e.fail(err)
		return err
	}
	st := e.st
	if err := e.sink.Iteration(e.row()); err != nil {
		e.log.Warn("trace.failed", "iter", st.Iter, "err", err)
	}
	if e.method.LogEvery > 0 && st.Iter%e.method.LogEvery == 0 {
		e.log.Debug("iter",
			"iter", st.Iter, "mse", st.MSE, "mean_dev", st.MeanDev,
			"lambdamod", st.LambdaMod, "rate", st.Rate, "bc", st.Bc, "bh", st.Bh)
	}

	switch {
	case e.converged():
		e.status = StatusConverged
	case st.Iter >= e.method.MaxIters:
		e.status = StatusMaxIters
	}
	if e.status.Terminal() {
		return e.finish(ctx)
	}
	if st.Iter%e.run.RestartInterval == 0 {
		return e.checkpoint(ctx)
	}
	return nil
}

// Loop 持續迭代直到終止。ctx 取消時寫入最後一份 checkpoint 並以 StatusInterrupted 結束（不回傳錯誤）。
func (e *Engine) Loop(ctx context.Context) (*Result, error) {
	for !e.status.Terminal() {
		if ctx.Err() != nil {
			e.status = StatusInterrupted
			if err := e.finish(context.WithoutCancel(ctx)); err != nil {
				return e.Result(), err
			}
			break
		}
		if err := e.Step(ctx); err != nil {
			return e.Result(), err
		}
		if e.progress != nil {
			e.progress(e.st)
		}
	}
	return e.Result(), nil
}

// iterate 是一次迭代的數值部分：權重、預測、取樣、lambda 更新與步長調整。
func (e *Engine) iterate() error {
	st := e.st
	m := &e.method
	d := e.prob.Data
	st.Iter++

	lnpi, err := forward.ProtectionFactor(d.Contacts, d.HBonds, st.Bc, st.Bh)
	if err != nil {
		return err
	}
	var bias []float64
	if m.Coupled() {
		bias, err = forward.ChannelBias(st.LambdasC, st.LambdasH, d.Contacts, d.HBonds)
	} else {
		bias, err = forward.Bias(st.Lambdas, lnpi)
	}
	if err != nil {
		return err
	}
	if st.Weights, err = forward.FrameWeights(st.IniWeights, bias); err != nil {
		return err
	}
	ave, err := forward.AverageProtection(st.Weights, lnpi)
	if err != nil {
		return err
	}
	if !st.SigmaSet {
		sigma, mean, err := forward.ProtectionSpread(st.Weights, lnpi)
		if err != nil {
			return err
		}
		st.SigmaLnpi, st.AveSigmaLnpi, st.SigmaSet = sigma, mean, true
	}
	ev, err := e.prob.Target.Evaluate(ave)
	if err != nil {
		return err
	}
	st.MSE, st.MeanDev = ev.MSE, ev.MeanDev

	old := append([]float64(nil), st.Lambdas...)
	oldB := st.Bc + st.Bh
	sampled := false
	if e.sampler != nil && st.Iter%m.ParamEvery == 0 {
		bc, bh := st.Bc, st.Bh
		out, err := e.sampler.Sample(st, ev)
		if err != nil {
			return err
		}
		sampled = out.UpdatedLambdas
		if st.Bc != bc || st.Bh != bh {
			// 同一列的 MSE / MeanDev 以取樣後的係數計算
			if lnpi, err = forward.ProtectionFactor(d.Contacts, d.HBonds, st.Bc, st.Bh); err != nil {
				return err
			}
			if ave, err = forward.AverageProtection(st.Weights, lnpi); err != nil {
				return err
			}
			if ev, err = e.prob.Target.Evaluate(ave); err != nil {
				return err
			}
			st.MSE, st.MeanDev = ev.MSE, ev.MeanDev
		}
		e.log.Debug("mc.sample", "iter", st.Iter, "accept_ratio", out.AcceptRatio(), "bc", out.Bc, "bh", out.Bh, "mse", out.MSE)
	}
	if m.DoReweight && !sampled {
		g, err := e.prob.Target.Gradient(ave, ev.SegmentD)
		if err != nil {
			return err
		}
		e.descend(g)
	}

	mod := 0.0
	for i := range old {
		mod += math.Abs(st.Lambdas[i] - old[i])
	}
	st.DeltaLambdaMod = mod - st.LambdaMod
	st.LambdaMod = mod
	if st.Iter > 1 && st.DeltaLambdaMod > 0 {
		st.StepFactor /= m.StepFactorScaling
		e.log.Debug("stepfactor.shrink", "iter", st.Iter, "stepfactor", st.StepFactor)
	}
	e.prevL1, e.curL1 = floats.Norm(old, 1), floats.Norm(st.Lambdas, 1)
	e.prevB, e.curB = oldB, st.Bc+st.Bh
	return nil
}

// descend 以 gamma 縮放的梯度為目標，依自適應步長更新 lambdas。
func (e *Engine) descend(g []float64) {
	st := e.st
	target := make([]float64, len(g))
	floats.ScaleTo(target, e.gamma, g)
	nonzero := 0
	for _, v := range target {
		if v != 0 {
			nonzero++
		}
	}
	rate := 0.0
	if nonzero > 0 {
		meanAbs := floats.Norm(target, 1) / float64(nonzero)
		rate = optimizer.ClampRate(st.StepFactor / (meanAbs * st.AveSigmaLnpi))
	}
	st.Rate = rate
	if !e.method.Coupled() {
		for i := range st.Lambdas {
			st.Lambdas[i] += rate * (target[i] - st.Lambdas[i])
		}
		return
	}
	for i := range target {
		st.LambdasC[i] += rate * (st.Bc*target[i] - st.LambdasC[i])
		st.LambdasH[i] += rate * (st.Bh*target[i] - st.LambdasH[i])
	}
	copy(st.Lambdas, optimizer.CombineChannels(st.LambdasH, st.LambdasC, st.Bh, st.Bc))
}

// converged 比較本次迭代前後的相對變化：重加權時看 Σ|λ|，只做係數時看 Bc+Bh。
func (e *Engine) converged() bool {
	if e.method.DoReweight {
		return relChange(e.prevL1, e.curL1) < e.method.Tolerance
	}
	return relChange(e.prevB, e.curB) < e.method.Tolerance
}

func relChange(prev, cur float64) float64 {
	if cur == 0 {
		if prev == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(cur-prev) / math.Abs(cur)
}

func (e *Engine) row() recorder.Row {
	st := e.st
	return recorder.Row{
		Iter:           st.Iter,
		MeanDev:        st.MeanDev,
		MSE:            st.MSE,
		LambdaMod:      st.LambdaMod,
		DeltaLambdaMod: st.DeltaLambdaMod,
		Rate:           st.Rate,
		Bh:             st.Bh,
		Bc:             st.Bc,
	}
}

// checkpoint 寫出 per-restart 紀錄並保存 checkpoint；保存失敗只記錄警告。
func (e *Engine) checkpoint(ctx context.Context) error {
	work, err := forward.Work(e.st.Weights, e.st.IniWeights, e.method.KT())
	if err != nil {
		return e.fail(err)
	}
	e.work = work
	r := e.row()
	r.Work = work
	if err := e.sink.Restart(r); err != nil {
		e.log.Warn("trace.failed", "iter", e.st.Iter, "err", err)
	}
	if e.store == nil {
		return nil
	}
	rec, err := e.Record()
	if err == nil {
		err = e.store.Save(ctx, rec)
	}
	if err != nil {
		e.log.Warn("checkpoint.failed", "run_id", e.runID, "iter", e.st.Iter, "err", errs.WrapKind(err, errs.KindIO, "checkpoint"))
		return nil
	}
	e.log.Info("checkpoint.saved", "run_id", e.runID, "iter", e.st.Iter)
	return nil
}

// finish 在終止時寫出最後的 restart 紀錄、checkpoint 與 work。
func (e *Engine) finish(ctx context.Context) error {
	if err := e.checkpoint(ctx); err != nil {
		return err
	}
	if err := e.sink.Work(recorder.WorkRow{Gamma: e.gamma, MSE: e.st.MSE, Work: e.work}); err != nil {
		e.log.Warn("trace.failed", "iter", e.st.Iter, "err", err)
	}
	if err := e.sink.Close(); err != nil {
		e.log.Warn("trace.failed", "iter", e.st.Iter, "err", err)
	}
	e.log.Info("run.done",
		"run_id", e.runID, "gamma", e.gamma, "status", e.status.String(),
		"iterations", e.st.Iter, "mse", e.st.MSE, "work", e.work)
	return nil
}

func (e *Engine) fail(err error) error {
	e.status = StatusFailed
	e.err = err
	e.log.Error("run.failed", "run_id", e.runID, "iter", e.st.Iter, "err", err)
	if cerr := e.sink.Close(); cerr != nil {
		e.log.Warn("trace.failed", "err", cerr)
	}
	return err
}

// Record 組出目前的 checkpoint 紀錄（狀態為深拷貝）。
func (e *Engine) Record() (*checkpoint.Record, error) {
	if e.dataJSON == nil {
		e.dataJSON = e.prob.Data.ToJSON()
	}
	rec := &checkpoint.Record{
		Schema:  checkpoint.SchemaName,
		Version: checkpoint.CurrentVersion,
		RunID:   e.runID,
		Gamma:   e.gamma,
		Status:  e.status.String(),
		Method:  e.method,
		Run:     e.run,
		Dataset: e.dataJSON,
		State:   e.st.Clone(),
		SavedAt: time.Now().UTC(),
	}
	if e.core != nil {
		snap, err := e.core.Snapshot()
		if err != nil {
			return nil, errs.WrapKind(err, errs.KindIO, "snapshot rng")
		}
		rec.RNG = snap
	}
	return rec, nil
}
