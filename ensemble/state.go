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

package ensemble

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/floats"
)

// State 一次 run 所有會改變的量。
type State struct {
	Iter int     `json:"iter"`
	Bc   float64 `json:"bc"`
	Bh   float64 `json:"bh"`

	Lambdas  []float64 `json:"lambdas"`
	LambdasC []float64 `json:"lambdas_c,omitempty"` // 只在 contacts/hbonds 分 channel 時使用
	LambdasH []float64 `json:"lambdas_h,omitempty"`

	// MC 取樣的平滑狀態：AveLambda* 未乘 gamma，Final* 已乘 gamma
	AveLambdaC    []float64  `json:"ave_lambda_c,omitempty"`
	AveLambdaH    []float64  `json:"ave_lambda_h,omitempty"`
	FinalLambdaC  []float64  `json:"final_lambda_c,omitempty"`
	FinalLambdaH  []float64  `json:"final_lambda_h,omitempty"`
	FinalLambda   []float64  `json:"final_lambda,omitempty"`
	MCMSEAve      float64    `json:"mc_mse_ave"`
	MCResFracsAve []NaNFloat `json:"mc_resfracs_ave,omitempty"`
	MCAccepted    int        `json:"mc_accepted"`
	MCProposed    int        `json:"mc_proposed"`

	IniWeights []float64 `json:"iniweights"`
	Weights    []float64 `json:"weights"`

	SigmaLnpi    []float64 `json:"sigma_lnpi,omitempty"`
	AveSigmaLnpi float64   `json:"ave_sigma_lnpi"`
	SigmaSet     bool      `json:"sigma_set"`

	StepFactor     float64 `json:"stepfactor"`
	Rate           float64 `json:"rate"`
	LambdaMod      float64 `json:"lambdamod"`
	DeltaLambdaMod float64 `json:"deltalambdamod"`
	MSE            float64 `json:"mse"`
	MeanDev        float64 `json:"mean_dev"`

	Seed       int64 `json:"seed"`
	WeightSeed int64 `json:"weight_seed,omitempty"` // 隨機初始權重使用的 seed，0 表示未隨機
}

// NewState 建立第 0 次迭代前的狀態。iniweights 會被正規化後同時作為目前權重。
func NewState(p *Problem, m *spec.MethodSetting, iniweights []float64) (*State, error) {
	if len(iniweights) != p.NFrames {
		return nil, errs.Dataf("state: %d initial weights for %d frames", len(iniweights), p.NFrames)
	}
	sum := floats.Sum(iniweights)
	if !(sum > 0) {
		return nil, errs.Dataf("state: initial weights sum to %v", sum)
	}
	st := &State{
		Bc:         m.RadouBc,
		Bh:         m.RadouBh,
		Lambdas:    make([]float64, p.NRes),
		IniWeights: append([]float64(nil), iniweights...),
		Weights:    append([]float64(nil), iniweights...),
		StepFactor: m.StepFactor,
	}
	floats.Scale(1/sum, st.Weights)
	if m.Coupled() {
		st.LambdasC = make([]float64, p.NRes)
		st.LambdasH = make([]float64, p.NRes)
		st.AveLambdaC = make([]float64, p.NRes)
		st.AveLambdaH = make([]float64, p.NRes)
		st.FinalLambdaC = make([]float64, p.NRes)
		st.FinalLambdaH = make([]float64, p.NRes)
		st.FinalLambda = make([]float64, p.NRes)
	}
	return st, nil
}

// Check 確認狀態與 Problem 一致；checkpoint 在被採用前必須通過。
func (s *State) Check(p *Problem, coupled bool) error {
	if s.Iter < 0 {
		return errs.Schemaf("state: negative iteration %d", s.Iter)
	}
	vecs := map[string][]float64{"lambdas": s.Lambdas}
	if coupled {
		vecs["lambdas_c"] = s.LambdasC
		vecs["lambdas_h"] = s.LambdasH
		vecs["ave_lambda_c"] = s.AveLambdaC
		vecs["ave_lambda_h"] = s.AveLambdaH
		vecs["final_lambda_c"] = s.FinalLambdaC
		vecs["final_lambda_h"] = s.FinalLambdaH
		vecs["final_lambda"] = s.FinalLambda
	}
	if s.SigmaSet {
		vecs["sigma_lnpi"] = s.SigmaLnpi
	}
	for name, v := range vecs {
		if len(v) != p.NRes {
			return errs.Schemaf("state: %s has %d entries, want %d residues", name, len(v), p.NRes)
		}
	}
	if len(s.IniWeights) != p.NFrames || len(s.Weights) != p.NFrames {
		return errs.Schemaf("state: weights have %d/%d entries, want %d frames", len(s.IniWeights), len(s.Weights), p.NFrames)
	}
	if s.MCResFracsAve != nil && len(s.MCResFracsAve) != p.Target.Shape().Len() {
		return errs.Schemaf("state: mc_resfracs_ave has %d entries, want %d", len(s.MCResFracsAve), p.Target.Shape().Len())
	}
	for i, w := range s.Weights {
		if !(w >= 0) {
			return errs.Schemaf("state: weight %d is %v", i, w)
		}
	}
	if math.Abs(floats.Sum(s.Weights)-1) > 1e-6 {
		return errs.Schemaf("state: weights sum to %v", floats.Sum(s.Weights))
	}
	if !(s.Bc >= 0) || !(s.Bh >= 0) {
		return errs.Schemaf("state: negative coefficients bc=%v bh=%v", s.Bc, s.Bh)
	}
	if !(s.StepFactor > 0) {
		return errs.Schemaf("state: stepfactor %v", s.StepFactor)
	}
	return nil
}

// Clone 深拷貝
func (s *State) Clone() *State {
	c := *s
	c.Lambdas = cloneF(s.Lambdas)
	c.LambdasC = cloneF(s.LambdasC)
	c.LambdasH = cloneF(s.LambdasH)
	c.AveLambdaC = cloneF(s.AveLambdaC)
	c.AveLambdaH = cloneF(s.AveLambdaH)
	c.FinalLambdaC = cloneF(s.FinalLambdaC)
	c.FinalLambdaH = cloneF(s.FinalLambdaH)
	c.FinalLambda = cloneF(s.FinalLambda)
	if s.MCResFracsAve != nil {
		c.MCResFracsAve = append([]NaNFloat(nil), s.MCResFracsAve...)
	}
	c.IniWeights = cloneF(s.IniWeights)
	c.Weights = cloneF(s.Weights)
	c.SigmaLnpi = cloneF(s.SigmaLnpi)
	return &c
}

func cloneF(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
