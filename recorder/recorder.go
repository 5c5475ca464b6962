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

// Package recorder 輸出 run 的文字紀錄：初始參數、每次迭代、每個 checkpoint 與最終 work。
//
// Sink 的寫入錯誤只回報給呼叫端，不應中止迭代。
package recorder

import (
	"fmt"
)

// Params 初始參數紀錄
type Params struct {
	Temp       float64
	KT         float64
	Tolerance  float64
	Bc         float64
	Bh         float64
	Gamma      float64
	StepFactor float64
	NFrames    int
}

// Row 每次迭代（與每個 checkpoint）的紀錄
type Row struct {
	Iter           int     `json:"iter"`
	MeanDev        float64 `json:"avehdxdev"`
	MSE            float64 `json:"chisquare"`
	LambdaMod      float64 `json:"lambdamod"`
	DeltaLambdaMod float64 `json:"deltalambdamod"`
	Rate           float64 `json:"rate"`
	Bh             float64 `json:"bh"`
	Bc             float64 `json:"bc"`
	Work           float64 `json:"work,omitempty"` // 只有 per-restart 紀錄帶 work
}

// WorkRow 一個 gamma 的最終結果
type WorkRow struct {
	Gamma float64 `json:"gamma"`
	MSE   float64 `json:"chisquare"`
	Work  float64 `json:"work"`
}

type Sink interface {
	// Start 開始新的 run：覆寫所有紀錄並寫入表頭。
	Start(p Params) error
	// Restarted 從 checkpoint 接續：以附加方式寫入標記與表頭。
	Restarted(source string, p Params) error
	RandomSeed(seed int64) error
	RandomWeights(seed int64, w []float64) error
	Iteration(r Row) error
	Restart(r Row) error
	Work(w WorkRow) error
	Close() error
}

const (
	paramsHeader    = "Temp, kT, convergence tolerance, BetaC, BetaH, gamma, update rate (step size) factor, nframes\n"
	workHeader      = "# gamma, chisquare, work(kJ/mol)\n"
	iterHeader      = "# Iteration, avehdxdev, chisquare, lambdamod, deltalambdamod, rate, Bh, Bc \n"
	restartHeader   = "# Iteration, avehdxdev, chisquare, lambdamod, deltalambdamod, rate, Bh, Bc, work \n"
	restartedMarker = "# RESTARTED FROM FILE %s :\n"
)

func (p Params) line() string {
	return fmt.Sprintf("%s, %6.3f, %5.2e, %5.2f, %5.2f, %5.2e, %8.6f, %d\n",
		formatTemp(p.Temp), p.KT, p.Tolerance, p.Bc, p.Bh, p.Gamma, p.StepFactor, p.NFrames)
}

func formatTemp(t float64) string {
	if t == float64(int64(t)) {
		return fmt.Sprintf("%.1f", t)
	}
	return fmt.Sprintf("%g", t)
}

func (r Row) line() string {
	return fmt.Sprintf("%d, %8.5e, %8.5e, %8.5e, %8.5e, %8.5e, %8.5f, %8.5f\n",
		r.Iter, r.MeanDev, r.MSE, r.LambdaMod, r.DeltaLambdaMod, r.Rate, r.Bh, r.Bc)
}

func (r Row) restartLine() string {
	return fmt.Sprintf("%d, %8.5e, %8.5e, %8.5e, %8.5e, %8.5e, %8.5f, %8.5f, %8.5e\n",
		r.Iter, r.MeanDev, r.MSE, r.LambdaMod, r.DeltaLambdaMod, r.Rate, r.Bh, r.Bc, r.Work)
}

func (w WorkRow) line() string {
	return fmt.Sprintf("%5.2e, %8.5e, %8.5e\n", w.Gamma, w.MSE, w.Work)
}

// RandomWeightsName 回傳隨機初始權重的檔名
func RandomWeightsName(seed int64) string {
	return fmt.Sprintf("initial_weights_RandomState%d.dat", seed)
}

// Nop 丟棄所有紀錄
type Nop struct{}

func (Nop) Start(Params) error                   { return nil }
func (Nop) Restarted(string, Params) error       { return nil }
func (Nop) RandomSeed(int64) error               { return nil }
func (Nop) RandomWeights(int64, []float64) error { return nil }
func (Nop) Iteration(Row) error                  { return nil }
func (Nop) Restart(Row) error                    { return nil }
func (Nop) Work(WorkRow) error                   { return nil }
func (Nop) Close() error                         { return nil }
