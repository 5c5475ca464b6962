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

package grid

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
	"gonum.org/v1/gonum/mat"
)

// BroadcastResidues 把每個 residue 一個值的向量展開到所有 segment 與 time。
func BroadcastResidues(shape Shape, v []float64) (*Grid, error) {
	if len(v) != shape.Res {
		return nil, errs.Dataf("grid: broadcast residues length %d != %d", len(v), shape.Res)
	}
	g := New(shape)
	i := 0
	for s := 0; s < shape.Segs; s++ {
		for r := 0; r < shape.Res; r++ {
			for t := 0; t < shape.Times; t++ {
				g.data[i] = v[r]
				i++
			}
		}
	}
	return g, nil
}

// BroadcastResidueTime 把 R×T 矩陣展開到所有 segment。
func BroadcastResidueTime(shape Shape, m mat.Matrix) (*Grid, error) {
	rows, cols := m.Dims()
	if rows != shape.Res || cols != shape.Times {
		return nil, errs.Dataf("grid: broadcast residue×time got %dx%d want %dx%d", rows, cols, shape.Res, shape.Times)
	}
	g := New(shape)
	i := 0
	for s := 0; s < shape.Segs; s++ {
		for r := 0; r < shape.Res; r++ {
			for t := 0; t < shape.Times; t++ {
				g.data[i] = m.At(r, t)
				i++
			}
		}
	}
	return g, nil
}

// NanMeanResidues 沿 residue 軸取平均並略過 NaN，回傳 S×T；整列皆 NaN 時結果為 NaN。
func NanMeanResidues(g *Grid) *mat.Dense {
	sh := g.shape
	out := mat.NewDense(sh.Segs, sh.Times, nil)
	for s := 0; s < sh.Segs; s++ {
		for t := 0; t < sh.Times; t++ {
			sum, n := 0.0, 0
			for r := 0; r < sh.Res; r++ {
				v := g.At(s, r, t)
				if math.IsNaN(v) {
					continue
				}
				sum += v
				n++
			}
			if n == 0 {
				out.Set(s, t, math.NaN())
				continue
			}
			out.Set(s, t, sum/float64(n))
		}
	}
	return out
}

// NanSumSegments 沿 segment 軸加總並略過 NaN，回傳 R×T；全為 NaN 時結果為 0。
func NanSumSegments(g *Grid) *mat.Dense {
	sh := g.shape
	out := mat.NewDense(sh.Res, sh.Times, nil)
	for r := 0; r < sh.Res; r++ {
		for t := 0; t < sh.Times; t++ {
			sum := 0.0
			for s := 0; s < sh.Segs; s++ {
				if v := g.At(s, r, t); !math.IsNaN(v) {
					sum += v
				}
			}
			out.Set(r, t, sum)
		}
	}
	return out
}
