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

import "sort"

// WeightBuckets 依 N·w（相對於等權重的倍數）分區間計數。
//
// 區間: [0,0], (0,0.01), [0.01,0.1), [0.1,0.5), [0.5,1), [1,2), [2,5), [5,10), [10,+inf)
type WeightBuckets struct {
	edges []float64
	names []string
}

var Buckets = &WeightBuckets{
	edges: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
	names: []string{"[0,0]", "(0,0.01)", "[0.01,0.1)", "[0.1,0.5)", "[0.5,1)", "[1,2)", "[2,5)", "[5,10)", "[10,+inf)"},
}

func (b *WeightBuckets) Names() []string {
	return b.names
}

// Index 回傳倍數 r 所在的區間
func (b *WeightBuckets) Index(r float64) int {
	if !(r > 0) {
		return 0
	}
	return 1 + sort.Search(len(b.edges), func(i int) bool { return r < b.edges[i] })
}

// Count 把正規化權重分到各區間
func (b *WeightBuckets) Count(w []float64) []int {
	out := make([]int, len(b.names))
	n := float64(len(w))
	for _, v := range w {
		out[b.Index(v*n)]++
	}
	return out
}
