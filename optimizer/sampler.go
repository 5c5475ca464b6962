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

// Package optimizer 是前向模型係數 (Bc, Bh) 的 Monte Carlo 取樣器。
//
// 每次呼叫 Sample 會在固定的 frame 權重下跑 param_maxiters 步 Metropolis：
// 提議新的係數、重算預測 fraction，依 MSE 決定接受與否。
//   - 取樣模式（do_mcsampl）：以 exp(−Δ) 接受變差的提議，最後採用整條鏈的平均並依 mc_equilsteps 平滑；
//     若同時開啟重加權，lambdas 以 contacts/hbonds 兩個 channel 累積並在此更新。
//   - 最小化模式（do_mcmin）：只接受改善，直接採用最後被接受的係數。
package optimizer

import (
	"math"

	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"github.com/zintix-labs/hdxlab/sdk/forward"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/floats"
)

// Outcome 一次取樣的結果
type Outcome struct {
	Accepted       int
	Steps          int
	Bc             float64
	Bh             float64
	MSE            float64 // 鏈上最後被接受的 MSE
	Rate           float64
	UpdatedLambdas bool
}

// AcceptRatio 接受率
func (o *Outcome) AcceptRatio() float64 {
	if o.Steps == 0 {
		return 0
	}
	return float64(o.Accepted) / float64(o.Steps)
}

type Sampler struct {
	method *spec.MethodSetting
	prob   *ensemble.Problem
	core   *core.Core
	gamma  float64
}

func NewSampler(p *ensemble.Problem, m *spec.MethodSetting, gamma float64, c *core.Core) (*Sampler, error) {
	if m.Mode() == spec.MCOff {
		return nil, errs.Configf("optimizer: parameter sampling is disabled")
	}
	if c == nil {
		return nil, errs.Configf("optimizer: random core required")
	}
	return &Sampler{method: m, prob: p, core: c, gamma: gamma}, nil
}

// link 是鏈上目前所在的點
type link struct {
	bc, bh float64
	ave    []float64
	ev     *forward.Evaluation
}

// Sample 以目前權重跑一次 MC，並把結果寫回 st。ev 是 st 目前係數下的預測。
func (s *Sampler) Sample(st *ensemble.State, ev *forward.Evaluation) (*Outcome, error) {
	m := s.method
	d := s.prob.Data
	aveC, err := forward.AverageProtection(st.Weights, d.Contacts)
	if err != nil {
		return nil, err
	}
	aveH, err := forward.AverageProtection(st.Weights, d.HBonds)
	if err != nil {
		return nil, err
	}

	st.MCMSEAve = st.MSE
	st.MCResFracsAve = ensemble.ToNaNFloats(ev.ResidueD.Data())

	cur := link{bc: st.Bc, bh: st.Bh, ave: combineAverages(aveC, aveH, st.Bc, st.Bh), ev: ev}
	curMSE := st.MSE
	coupled := m.Coupled()
	acc := newAccumulator(s.prob.NRes, len(st.MCResFracsAve), coupled)
	out := &Outcome{Steps: m.ParamMaxIters}

	for i := 0; i < m.ParamMaxIters; i++ {
		tbc, tbh := s.propose(cur.bc, cur.bh)
		tave := combineAverages(aveC, aveH, tbc, tbh)
		tev, err := s.prob.Target.Evaluate(tave)
		if err != nil {
			return nil, err
		}
		if s.accept(curMSE, tev.MSE) {
			cur = link{bc: tbc, bh: tbh, ave: tave, ev: tev}
			curMSE = tev.MSE
			out.Accepted++
		}

		var grad []float64
		if coupled {
			grad, err = s.prob.Target.Gradient(cur.ave, cur.ev.SegmentD)
			if err != nil {
				return nil, err
			}
		}
		acc.add(cur.bc, cur.bh, curMSE, cur.ev.ResidueD.Data(), grad)
	}
	st.MCAccepted += out.Accepted
	st.MCProposed += out.Steps
	out.MSE = curMSE

	if m.Mode() == spec.MCMinimize {
		st.Bc, st.Bh = cur.bc, cur.bh
		st.MCMSEAve = curMSE
		out.Bc, out.Bh = st.Bc, st.Bh
		return out, nil
	}

	ave := acc.average(m.ParamMaxIters)
	rate := s.smoothing(st.Iter)
	st.Bh = blend(st.Bh, ave.bh, rate)
	st.Bc = blend(st.Bc, ave.bc, rate)
	st.MCMSEAve = blend(st.MCMSEAve, ave.mse, rate)
	for i := range st.MCResFracsAve {
		st.MCResFracsAve[i] = ensemble.NaNFloat(blend(float64(st.MCResFracsAve[i]), ave.resfracs[i], rate))
	}
	out.Bc, out.Bh = st.Bc, st.Bh
	if coupled {
		s.updateChannels(st, ave, rate)
		out.Rate = st.Rate
		out.UpdatedLambdas = true
	}
	return out, nil
}

// propose 以目前係數為中心做均勻擾動，負值重抽。
func (s *Sampler) propose(bc, bh float64) (float64, float64) {
	m := s.method
	tbh, tbc := -1.0, -1.0
	for tbh < 0 {
		tbh = bh + s.core.Centered()*m.ParamStepFactor*m.RadouBhRange
	}
	for tbc < 0 {
		tbc = bc + s.core.Centered()*m.ParamStepFactor*m.RadouBcRange
	}
	return tbc, tbh
}

func (s *Sampler) accept(curMSE, trialMSE float64) bool {
	if trialMSE < curMSE {
		return true
	}
	if s.method.Mode() != spec.MCSample {
		return false
	}
	ns, nt := s.prob.NSegs, s.prob.NTimes
	cv := forward.AcceptanceValue(curMSE, ns, nt, s.method.MCRefVar)
	tv := forward.AcceptanceValue(trialMSE, ns, nt, s.method.MCRefVar)
	return forward.AcceptanceProbability(cv, tv) > s.core.Float64()
}

// smoothing 回傳平滑係數：mc_equilsteps > 0 時為 eq/√(eq·(eq+iter))，否則 1。
func (s *Sampler) smoothing(iter int) float64 {
	eq := float64(s.method.MCEquilSteps)
	if eq <= 0 {
		return 1
	}
	return eq / math.Sqrt(eq*(eq+float64(iter)))
}

// updateChannels 平滑兩個 channel 的 lambda 平均，再以自適應步長混入目前的 lambdas。
func (s *Sampler) updateChannels(st *ensemble.State, ave *averages, rate float64) {
	for i := range st.AveLambdaH {
		st.AveLambdaH[i] = blend(st.AveLambdaH[i], ave.lambdasH[i], rate)
		st.AveLambdaC[i] = blend(st.AveLambdaC[i], ave.lambdasC[i], rate)
		st.FinalLambdaH[i] = s.gamma * st.AveLambdaH[i]
		st.FinalLambdaC[i] = s.gamma * st.AveLambdaC[i]
	}
	combineChannels(st.FinalLambda, st.FinalLambdaH, st.FinalLambdaC, st.Bh, st.Bc)

	unscaled := make([]float64, len(st.AveLambdaH))
	combineChannels(unscaled, st.AveLambdaH, st.AveLambdaC, st.Bh, st.Bc)
	nonzero := 0
	for _, v := range st.FinalLambda {
		if v != 0 {
			nonzero++
		}
	}
	aveDev := 0.0
	if nonzero > 0 {
		aveDev = floats.Norm(unscaled, 1) / float64(nonzero)
	}
	step := ClampRate(st.StepFactor / (s.gamma * aveDev * st.AveSigmaLnpi))
	st.Rate = step
	for i := range st.Lambdas {
		st.LambdasC[i] = blend(st.LambdasC[i], st.FinalLambdaC[i], step)
		st.LambdasH[i] = blend(st.LambdasH[i], st.FinalLambdaH[i], step)
		st.Lambdas[i] = blend(st.Lambdas[i], st.FinalLambda[i], step)
	}
}

// combineAverages 回傳 Bc·aveC + Bh·aveH
func combineAverages(aveC, aveH []float64, bc, bh float64) []float64 {
	out := make([]float64, len(aveC))
	floats.AddScaledTo(out, out, bc, aveC)
	floats.AddScaledTo(out, out, bh, aveH)
	return out
}

// combineChannels 把兩個 channel 的 lambda 合成單一 lambda：0.5·(λh/Bh + λc/Bc)。
// 係數為 0 的 channel 不參與（此時結果即為另一個 channel 的值）。
func combineChannels(dst, lh, lc []float64, bh, bc float64) {
	for i := range dst {
		switch {
		case bh > 0 && bc > 0:
			dst[i] = 0.5 * (lh[i]/bh + lc[i]/bc)
		case bh > 0:
			dst[i] = lh[i] / bh
		case bc > 0:
			dst[i] = lc[i] / bc
		default:
			dst[i] = 0
		}
	}
}

// CombineChannels 見 combineChannels；回傳新的 slice。
func CombineChannels(lh, lc []float64, bh, bc float64) []float64 {
	out := make([]float64, len(lh))
	combineChannels(out, lh, lc, bh, bc)
	return out
}

// ClampRate 把步長限制在 [0, 1]；未定義（NaN、Inf）時為 0。
func ClampRate(r float64) float64 {
	switch {
	case math.IsNaN(r), math.IsInf(r, 0), r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

func blend(old, target, rate float64) float64 {
	return old*(1-rate) + rate*target
}
