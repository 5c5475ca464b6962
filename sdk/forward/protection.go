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

// Package forward 是 HDX 的前向模型：由結構觀測量（contacts、hbonds）推得保護因子，
// 再由保護因子推得 deuterated fraction，並提供與實驗比較所需的誤差、梯度、自由能等量。
//
// 全部都是純函式：不持有狀態，輸入不會被修改。數值退化（除以零、空 segment）以 NaN 標記並在
// 後續歸約中排除，不會 panic 也不會回傳錯誤；錯誤只用在形狀不合。
package forward

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ProtectionFactor 回傳 ln(Pf) = Bc·contacts + Bh·hbonds（R×N）。
func ProtectionFactor(contacts, hbonds mat.Matrix, bc, bh float64) (*mat.Dense, error) {
	cr, cc := contacts.Dims()
	hr, hc := hbonds.Dims()
	if cr != hr || cc != hc {
		return nil, errs.Dataf("forward: contacts %dx%d and hbonds %dx%d differ", cr, cc, hr, hc)
	}
	var c, h mat.Dense
	c.Scale(bc, contacts)
	h.Scale(bh, hbonds)
	c.Add(&c, &h)
	return &c, nil
}

// Bias 回傳每個 frame 的 bias：bias_n = Σ_r λ_r · lnpi[r,n]。
func Bias(lambdas []float64, lnpi mat.Matrix) ([]float64, error) {
	r, n := lnpi.Dims()
	if len(lambdas) != r {
		return nil, errs.Dataf("forward: lambdas length %d != residues %d", len(lambdas), r)
	}
	out := make([]float64, n)
	v := mat.NewVecDense(n, out)
	v.MulVec(lnpi.T(), mat.NewVecDense(r, lambdas))
	return out, nil
}

// ChannelBias 回傳 contacts/hbonds 兩個 channel 各自加權後的 bias：Σ_r (λc_r·C[r,n] + λh_r·H[r,n])。
func ChannelBias(lambdasC, lambdasH []float64, contacts, hbonds mat.Matrix) ([]float64, error) {
	bc, err := Bias(lambdasC, contacts)
	if err != nil {
		return nil, err
	}
	bh, err := Bias(lambdasH, hbonds)
	if err != nil {
		return nil, err
	}
	if len(bc) != len(bh) {
		return nil, errs.Dataf("forward: channel frame counts differ %d/%d", len(bc), len(bh))
	}
	floats.Add(bc, bh)
	return bc, nil
}

// FrameWeights 回傳 w_n ∝ w0_n · exp(bias_n)，正規化後總和為 1。
//
// 在 log 空間計算並減去最大值避免溢位；初始權重為 0 的 frame 恆為 0。
func FrameWeights(iniweights, bias []float64) ([]float64, error) {
	if len(iniweights) != len(bias) {
		return nil, errs.Dataf("forward: iniweights length %d != bias length %d", len(iniweights), len(bias))
	}
	logw := make([]float64, len(bias))
	maxv := math.Inf(-1)
	for i, w0 := range iniweights {
		if !(w0 > 0) {
			logw[i] = math.Inf(-1)
			continue
		}
		logw[i] = math.Log(w0) + bias[i]
		if logw[i] > maxv {
			maxv = logw[i]
		}
	}
	if math.IsInf(maxv, -1) || math.IsNaN(maxv) || math.IsInf(maxv, 1) {
		return nil, errs.Dataf("forward: no frame carries a usable weight")
	}
	out := make([]float64, len(bias))
	for i, lw := range logw {
		if math.IsInf(lw, -1) {
			continue
		}
		out[i] = math.Exp(lw - maxv)
	}
	sum := floats.Sum(out)
	if !(sum > 0) || math.IsNaN(sum) {
		return nil, errs.Dataf("forward: frame weights do not normalise (sum=%v)", sum)
	}
	floats.Scale(1/sum, out)
	return out, nil
}

// AverageProtection 回傳加權平均：ave_r = Σ_n w_n · x[r,n]。
func AverageProtection(weights []float64, x mat.Matrix) ([]float64, error) {
	r, n := x.Dims()
	if len(weights) != n {
		return nil, errs.Dataf("forward: weights length %d != frames %d", len(weights), n)
	}
	out := make([]float64, r)
	v := mat.NewVecDense(r, out)
	v.MulVec(x, mat.NewVecDense(n, weights))
	return out, nil
}

// ProtectionSpread 回傳每個 residue 的加權母體標準差，以及它們的平均。
func ProtectionSpread(weights []float64, lnpi *mat.Dense) ([]float64, float64, error) {
	r, n := lnpi.Dims()
	if len(weights) != n {
		return nil, 0, errs.Dataf("forward: weights length %d != frames %d", len(weights), n)
	}
	sigma := make([]float64, r)
	for i := 0; i < r; i++ {
		_, variance := stat.PopMeanVariance(lnpi.RawRowView(i), weights)
		if variance < 0 { // 捨入誤差
			variance = 0
		}
		sigma[i] = math.Sqrt(variance)
	}
	return sigma, stat.Mean(sigma, nil), nil
}
