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

package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// 信賴區間
type CI struct {
	Lo float64 `json:"Lo"`
	Hi float64 `json:"Hi"`
}

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// chiSquare 回傳 χ² = N·MSE/refVar 與自由度 N 下的右尾機率。
// N 或 refVar 不合法時 p 為 NaN。
func chiSquare(mse float64, n int, refVar float64) (chi2, p float64) {
	if n <= 0 || !(refVar > 0) || math.IsNaN(mse) {
		return math.NaN(), math.NaN()
	}
	chi2 = float64(n) * mse / refVar
	return chi2, distuv.ChiSquared{K: float64(n)}.Survival(chi2)
}

// effectiveSize 回傳 1/Σw²（權重需已正規化）
func effectiveSize(w []float64) float64 {
	sq := floats.Dot(w, w)
	if !(sq > 0) {
		return 0
	}
	return 1 / sq
}

// ratioQuantiles 回傳 N·w 的經驗分位數
func ratioQuantiles(w []float64, qs ...float64) []float64 {
	n := float64(len(w))
	r := make([]float64, len(w))
	floats.ScaleTo(r, n, w)
	sort.Float64s(r)
	out := make([]float64, len(qs))
	if len(r) == 0 {
		return out
	}
	for i, q := range qs {
		out[i] = stat.Quantile(q, stat.Empirical, r, nil)
	}
	return out
}

// knee 回傳 (work, mse) 曲線上離首尾連線最遠的點；兩軸先各自縮放到 [0,1]。
// 少於三個點時回傳 -1。
func knee(work, mse []float64) int {
	n := len(work)
	if n < 3 || len(mse) != n {
		return -1
	}
	nw, nm := unitScale(work), unitScale(mse)
	x0, y0 := nw[0], nm[0]
	dx, dy := nw[n-1]-x0, nm[n-1]-y0
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return -1
	}
	best, bestD := -1, 0.0
	for i := 1; i < n-1; i++ {
		d := math.Abs(dy*(nw[i]-x0)-dx*(nm[i]-y0)) / norm
		if d > bestD {
			best, bestD = i, d
		}
	}
	return best
}

func unitScale(v []float64) []float64 {
	out := make([]float64, len(v))
	lo, hi := floats.Min(v), floats.Max(v)
	if hi == lo {
		return out
	}
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}
