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

package forward

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"gonum.org/v1/gonum/mat"
)

// Target 是與實驗比較時固定不變的部分。
type Target struct {
	MinusKT *grid.Grid // S×R×T，-k_int·t
	Exp     *mat.Dense // S×T，實驗 deuterated fraction
	Filter  *grid.Mask
	N       int // 被納入比較的格數
}

// NewTarget 建立 Target 並檢查形狀。
func NewTarget(minusKT mat.Matrix, exp *mat.Dense, filter *grid.Mask) (*Target, error) {
	sh := filter.Shape()
	mkt, err := grid.BroadcastResidueTime(sh, minusKT)
	if err != nil {
		return nil, err
	}
	er, ec := exp.Dims()
	if er != sh.Segs || ec != sh.Times {
		return nil, errs.Dataf("forward: experimental fractions %dx%d want %dx%d", er, ec, sh.Segs, sh.Times)
	}
	return &Target{MinusKT: mkt, Exp: exp, Filter: filter, N: filter.Count()}, nil
}

// Shape 回傳 Target 的三維形狀
func (tg *Target) Shape() grid.Shape { return tg.Filter.Shape() }

// Evaluation 一組平均保護因子對應的預測結果
type Evaluation struct {
	ResidueD *grid.Grid
	SegmentD *mat.Dense
	MSE      float64
	MeanDev  float64
}

// Evaluate 由每個 residue 的平均 ln(Pf) 算出預測 fraction 與誤差。
func (tg *Target) Evaluate(aveLnpi []float64) (*Evaluation, error) {
	ave, err := BroadcastProtection(aveLnpi, tg.Shape())
	if err != nil {
		return nil, err
	}
	resD, err := DeuteratedFraction(ave, tg.MinusKT, tg.Filter)
	if err != nil {
		return nil, err
	}
	segD := SegmentFraction(resD)
	return &Evaluation{
		ResidueD: resD,
		SegmentD: segD,
		MSE:      MeanSquaredError(segD, tg.Exp, tg.Filter, tg.N),
		MeanDev:  MeanDeviation(segD, tg.Exp, tg.Filter, tg.N),
	}, nil
}

// Gradient 回傳目前預測下的 lambda 梯度。
func (tg *Target) Gradient(aveLnpi []float64, segD *mat.Dense) ([]float64, error) {
	ave, err := BroadcastProtection(aveLnpi, tg.Shape())
	if err != nil {
		return nil, err
	}
	return LambdaGradient(ave, segD, tg.Exp, tg.MinusKT, tg.Filter)
}

// BroadcastProtection 把 residue 向量展開成 S×R×T。
func BroadcastProtection(ave []float64, shape grid.Shape) (*grid.Grid, error) {
	return grid.BroadcastResidues(shape, ave)
}

// DeuteratedFraction D = 1 − exp(−k·t / Pf)，Pf = exp(ln Pf)。
//
// filter 之外、或 ln Pf 為 0 的格子為 NaN。
func DeuteratedFraction(aveLnpi, minusKT *grid.Grid, filter *grid.Mask) (*grid.Grid, error) {
	sh := filter.Shape()
	if aveLnpi.Shape() != sh || minusKT.Shape() != sh {
		return nil, errs.Dataf("forward: deuterated fraction shapes %v/%v vs filter %v", aveLnpi.Shape(), minusKT.Shape(), sh)
	}
	out := grid.Full(sh, math.NaN())
	for s := 0; s < sh.Segs; s++ {
		for r := 0; r < sh.Res; r++ {
			for t := 0; t < sh.Times; t++ {
				if !filter.Has(s, r, t) {
					continue
				}
				lnpi := aveLnpi.At(s, r, t)
				if lnpi == 0 || math.IsNaN(lnpi) {
					continue
				}
				out.Set(s, r, t, 1-math.Exp(minusKT.At(s, r, t)/math.Exp(lnpi)))
			}
		}
	}
	return out, nil
}

// SegmentFraction 對每個 segment 的 residue 取平均（略過 NaN），回傳 S×T。
func SegmentFraction(residueD *grid.Grid) *mat.Dense {
	return grid.NanMeanResidues(residueD)
}

// MeanSquaredError 在 filter 內的每一格累加 (預測 − 實驗)²，除以 n。
//
// 每個 segment 的誤差會依它覆蓋的 residue 數重複計算，因此較長的 segment 權重較高。
func MeanSquaredError(segD, exp *mat.Dense, filter *grid.Mask, n int) float64 {
	return filteredMean(segD, exp, filter, n, func(d float64) float64 { return d * d })
}

// MeanDeviation 同 MeanSquaredError，但累加 |預測 − 實驗|。
func MeanDeviation(segD, exp *mat.Dense, filter *grid.Mask, n int) float64 {
	return filteredMean(segD, exp, filter, n, math.Abs)
}

func filteredMean(segD, exp *mat.Dense, filter *grid.Mask, n int, f func(float64) float64) float64 {
	if n <= 0 {
		return 0
	}
	sh := filter.Shape()
	sum := 0.0
	for s := 0; s < sh.Segs; s++ {
		for t := 0; t < sh.Times; t++ {
			d := segD.At(s, t) - exp.At(s, t)
			if math.IsNaN(d) {
				continue
			}
			v := f(d)
			for r := 0; r < sh.Res; r++ {
				if filter.Has(s, r, t) {
					sum += v
				}
			}
		}
	}
	return sum / float64(n)
}

// LambdaGradient 回傳每個 residue 的 lambda 梯度：
//
//	g_r = Σ_s [ Σ_t (D_seg − D_exp) · exp(−kt/P) · (kt/P) ] / n_res(s)
//
// 任何 t 為 NaN 的 (s, r) 整組略過；沒有任何有效 segment 的 residue 梯度為 0。
func LambdaGradient(aveLnpi *grid.Grid, segD, exp *mat.Dense, minusKT *grid.Grid, filter *grid.Mask) ([]float64, error) {
	sh := filter.Shape()
	if aveLnpi.Shape() != sh || minusKT.Shape() != sh {
		return nil, errs.Dataf("forward: gradient shapes %v/%v vs filter %v", aveLnpi.Shape(), minusKT.Shape(), sh)
	}
	contrib := grid.Full(grid.Shape{Segs: sh.Segs, Res: sh.Res, Times: 1}, math.NaN())
	for s := 0; s < sh.Segs; s++ {
		nres := filter.ResiduesIn(s)
		if nres == 0 {
			continue
		}
	residue:
		for r := 0; r < sh.Res; r++ {
			sum := 0.0
			for t := 0; t < sh.Times; t++ {
				if !filter.Has(s, r, t) {
					continue residue
				}
				lnpi := aveLnpi.At(s, r, t)
				if lnpi == 0 {
					continue residue
				}
				p := math.Exp(lnpi)
				mkt := minusKT.At(s, r, t)
				v := (segD.At(s, t) - exp.At(s, t)) * math.Exp(mkt/p) * (-mkt / p)
				if math.IsNaN(v) {
					continue residue
				}
				sum += v
			}
			contrib.Set(s, r, 0, sum/float64(nres))
		}
	}
	red := grid.NanSumSegments(contrib)
	out := make([]float64, sh.Res)
	for r := range out {
		out[r] = red.At(r, 0)
	}
	return out, nil
}
