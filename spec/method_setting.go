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

// Package spec 定義 hdxlab 的固定欄位設定。
//
// MethodSetting 描述演算法參數（重加權、MC 參數取樣、收斂條件）；
// RunSetting 描述單次 run 的輸入/輸出位置與 gamma。
// 兩者都有明確的預設值，並在建構時（Init）完成驗證：缺漏或不合法一律是 KindConfig 的致命錯誤。
package spec

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
)

// GasConstantKJ 氣體常數 (kJ/mol/K)
const GasConstantKJ = 0.008314598

// MCMode ParameterSampler 的運作模式
type MCMode uint8

const (
	MCOff MCMode = iota
	MCSample
	MCMinimize
)

func (m MCMode) String() string {
	switch m {
	case MCSample:
		return "sample"
	case MCMinimize:
		return "minimize"
	default:
		return "off"
	}
}

type MethodSetting struct {
	DoReweight        bool    `yaml:"do_reweight"        json:"do_reweight"`
	DoParams          bool    `yaml:"do_params"          json:"do_params"`
	DoMCMin           bool    `yaml:"do_mcmin"           json:"do_mcmin"`
	DoMCSampl         bool    `yaml:"do_mcsampl"         json:"do_mcsampl"`
	MCRefVar          float64 `yaml:"mc_refvar"          json:"mc_refvar"`
	MCEquilSteps      int     `yaml:"mc_equilsteps"      json:"mc_equilsteps"`
	RadouBc           float64 `yaml:"radou_bc"           json:"radou_bc"`
	RadouBh           float64 `yaml:"radou_bh"           json:"radou_bh"`
	RadouBcRange      float64 `yaml:"radou_bcrange"      json:"radou_bcrange"`
	RadouBhRange      float64 `yaml:"radou_bhrange"      json:"radou_bhrange"`
	Tolerance         float64 `yaml:"tolerance"          json:"tolerance"`
	MaxIters          int     `yaml:"maxiters"           json:"maxiters"`
	ParamMaxIters     int     `yaml:"param_maxiters"     json:"param_maxiters"`
	StepFactor        float64 `yaml:"stepfactor"         json:"stepfactor"`
	StepFactorScaling float64 `yaml:"stepfactor_scaling" json:"stepfactor_scaling"`
	ParamStepFactor   float64 `yaml:"param_stepfactor"   json:"param_stepfactor"`
	Temp              float64 `yaml:"temp"               json:"temp"`
	RandomInitial     bool    `yaml:"random_initial"     json:"random_initial"`
	ParamEvery        int     `yaml:"param_every"        json:"param_every"`
	LogEvery          int     `yaml:"log_every"          json:"log_every"`
}

// DefaultMethodSetting 回傳預設的演算法參數。
func DefaultMethodSetting() MethodSetting {
	return MethodSetting{
		DoReweight:        true,
		DoParams:          true,
		MCRefVar:          0.03,
		MCEquilSteps:      -1,
		RadouBc:           0.35,
		RadouBh:           2.0,
		RadouBcRange:      1.5,
		RadouBhRange:      16.0,
		Tolerance:         1e-10,
		MaxIters:          1_000_000,
		ParamMaxIters:     100,
		StepFactor:        1e-5,
		StepFactorScaling: 1.005,
		ParamStepFactor:   0.1,
		Temp:              300,
		ParamEvery:        1,
		LogEvery:          100,
	}
}

// KT 回傳 kT (kJ/mol)
func (m *MethodSetting) KT() float64 {
	return m.Temp * GasConstantKJ
}

// Mode 回傳 ParameterSampler 模式；do_params 關閉時為 MCOff。
// 未指定 do_mcmin / do_mcsampl 時視為最小化。
func (m *MethodSetting) Mode() MCMode {
	switch {
	case !m.DoParams:
		return MCOff
	case m.DoMCSampl:
		return MCSample
	default:
		return MCMinimize
	}
}

// Coupled 回報 lambdas 是否以 contacts/hbonds 兩個 channel 分開維護。
func (m *MethodSetting) Coupled() bool {
	return m.DoReweight && m.DoParams && m.DoMCSampl
}

// Init 正規化並驗證設定。
func (m *MethodSetting) Init() error {
	if m.DoParams && !m.DoMCMin && !m.DoMCSampl {
		m.DoMCMin = true
	}
	return m.Valid()
}

func (m *MethodSetting) Valid() error {
	if !m.DoReweight && !m.DoParams {
		return errs.Configf("method: at least one of do_reweight / do_params must be set")
	}
	if m.DoMCMin && m.DoMCSampl {
		return errs.Configf("method: do_mcmin and do_mcsampl are mutually exclusive")
	}
	if !finitePositive(m.Tolerance) {
		return errs.Configf("method: tolerance must be > 0, got %v", m.Tolerance)
	}
	if m.MaxIters <= 0 {
		return errs.Configf("method: maxiters must be > 0, got %d", m.MaxIters)
	}
	if !finitePositive(m.StepFactor) {
		return errs.Configf("method: stepfactor must be > 0, got %v", m.StepFactor)
	}
	if !(m.StepFactorScaling >= 1) || math.IsInf(m.StepFactorScaling, 0) {
		return errs.Configf("method: stepfactor_scaling must be >= 1, got %v", m.StepFactorScaling)
	}
	if !finitePositive(m.Temp) {
		return errs.Configf("method: temp must be > 0, got %v", m.Temp)
	}
	if !(m.RadouBc >= 0) || !(m.RadouBh >= 0) {
		return errs.Configf("method: radou_bc / radou_bh must be >= 0, got %v / %v", m.RadouBc, m.RadouBh)
	}
	if m.LogEvery < 0 {
		return errs.Configf("method: log_every must be >= 0, got %d", m.LogEvery)
	}
	if !m.DoParams {
		return nil
	}
	// 以下只在 MC 參數取樣開啟時檢查
	if m.ParamMaxIters <= 0 {
		return errs.Configf("method: param_maxiters must be > 0, got %d", m.ParamMaxIters)
	}
	if m.ParamEvery <= 0 {
		return errs.Configf("method: param_every must be > 0, got %d", m.ParamEvery)
	}
	if !(m.RadouBcRange >= 0) || !(m.RadouBhRange >= 0) {
		return errs.Configf("method: radou_bcrange / radou_bhrange must be >= 0")
	}
	if !finitePositive(m.ParamStepFactor) {
		return errs.Configf("method: param_stepfactor must be > 0, got %v", m.ParamStepFactor)
	}
	if !finitePositive(m.MCRefVar) {
		return errs.Configf("method: mc_refvar must be > 0, got %v", m.MCRefVar)
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
