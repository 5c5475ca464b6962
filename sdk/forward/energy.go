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
	"gonum.org/v1/gonum/floats"
)

// Work 回傳重加權所需的自由能（kJ/mol）：kT · Σ w ln(w / w0)，w0 先正規化。0·ln0 視為 0。
func Work(weights, iniweights []float64, kT float64) (float64, error) {
	if len(weights) != len(iniweights) {
		return 0, errs.Dataf("forward: work weights length %d != %d", len(weights), len(iniweights))
	}
	norm := floats.Sum(iniweights)
	if !(norm > 0) {
		return 0, errs.Dataf("forward: initial weights sum to %v", norm)
	}
	sum := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		w0 := iniweights[i] / norm
		if w0 <= 0 {
			return math.Inf(1), nil
		}
		sum += w * math.Log(w/w0)
	}
	return kT * sum, nil
}

// AcceptanceValue 回傳 MC 接受判定用的能量：n_segs · n_times · mse / (2 · refvar)。
func AcceptanceValue(mse float64, nSegs, nTimes int, refVar float64) float64 {
	return float64(nSegs*nTimes) * mse / (2 * refVar)
}

// AcceptanceProbability 回傳由 current 移到 trial 的 Metropolis 機率，上限為 1。
func AcceptanceProbability(current, trial float64) float64 {
	if trial <= current {
		return 1
	}
	return math.Exp(-(trial - current))
}
