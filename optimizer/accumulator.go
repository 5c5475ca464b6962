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

package optimizer

// accumulator 累加一條 MC 鏈上每一步的值，最後一次除以步數得到平均。
type accumulator struct {
	bc, bh, mse float64
	resfracs    []float64
	lambdasC    []float64 // Σ Bc·g
	lambdasH    []float64 // Σ Bh·g
}

type averages struct {
	bc, bh, mse float64
	resfracs    []float64
	lambdasC    []float64
	lambdasH    []float64
}

func newAccumulator(nres, ncells int, withLambdas bool) *accumulator {
	a := &accumulator{resfracs: make([]float64, ncells)}
	if withLambdas {
		a.lambdasC = make([]float64, nres)
		a.lambdasH = make([]float64, nres)
	}
	return a
}

// add 加入一步；resfracs 中的 NaN 會讓該格的累加保持 NaN。
func (a *accumulator) add(bc, bh, mse float64, resfracs, grad []float64) {
	a.bc += bc
	a.bh += bh
	a.mse += mse
	for i, v := range resfracs {
		a.resfracs[i] += v
	}
	if a.lambdasC == nil || grad == nil {
		return
	}
	for i, g := range grad {
		a.lambdasC[i] += bc * g
		a.lambdasH[i] += bh * g
	}
}

func (a *accumulator) average(steps int) *averages {
	n := float64(steps)
	out := &averages{
		bc:       a.bc / n,
		bh:       a.bh / n,
		mse:      a.mse / n,
		resfracs: scaled(a.resfracs, 1/n),
	}
	if a.lambdasC != nil {
		out.lambdasC = scaled(a.lambdasC, 1/n)
		out.lambdasH = scaled(a.lambdasH, 1/n)
	}
	return out
}

func scaled(v []float64, f float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * f
	}
	return out
}
