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
	"github.com/zintix-labs/hdxlab/errs"
)

// Mask 是 segment filter：標記哪些 (segment, residue, time) 參與比較。
//
// Mask 建好之後不可修改，整個 run 期間共用同一份。
type Mask struct {
	shape  Shape
	data   []bool
	count  int
	perSeg []int // 每個 segment 覆蓋的 residue 數
}

// NewMask 以 fn 逐格決定是否納入。
func NewMask(shape Shape, fn func(s, r, t int) bool) *Mask {
	m := &Mask{shape: shape, data: make([]bool, shape.Len()), perSeg: make([]int, shape.Segs)}
	i := 0
	for s := 0; s < shape.Segs; s++ {
		for r := 0; r < shape.Res; r++ {
			hit := false
			for t := 0; t < shape.Times; t++ {
				if fn(s, r, t) {
					m.data[i] = true
					m.count++
					hit = true
				}
				i++
			}
			if hit {
				m.perSeg[s]++
			}
		}
	}
	return m
}

// MaskFromSegments 以 segment 邊界建立 Mask：segment [start, end] 覆蓋 start < resid <= end。
//
// include 與 resIDs 等長，false 的 residue（例如缺少內稟交換速率）在所有 segment 中都被排除。
func MaskFromSegments(resIDs []int, segments [][2]int, times int, include []bool) (*Mask, error) {
	if include != nil && len(include) != len(resIDs) {
		return nil, errs.Dataf("grid: include length %d != residues %d", len(include), len(resIDs))
	}
	shape := Shape{Segs: len(segments), Res: len(resIDs), Times: times}
	if err := shape.Valid(); err != nil {
		return nil, err
	}
	for i, seg := range segments {
		if seg[1] <= seg[0] {
			return nil, errs.Dataf("grid: segment %d has end %d <= start %d", i, seg[1], seg[0])
		}
	}
	return NewMask(shape, func(s, r, _ int) bool {
		if include != nil && !include[r] {
			return false
		}
		id := resIDs[r]
		return segments[s][0] < id && id <= segments[s][1]
	}), nil
}

func (m *Mask) Shape() Shape { return m.shape }

// Count 回傳被納入的格數（n_datapoints）
func (m *Mask) Count() int { return m.count }

func (m *Mask) Has(s, r, t int) bool {
	return m.data[(s*m.shape.Res+r)*m.shape.Times+t]
}

// ResiduesIn 回傳 segment s 覆蓋的 residue 數
func (m *Mask) ResiduesIn(s int) int { return m.perSeg[s] }

// Nested 轉為 [segment][residue][time] 的巢狀形式。
func (m *Mask) Nested() [][][]bool {
	out := make([][][]bool, m.shape.Segs)
	for s := range out {
		out[s] = make([][]bool, m.shape.Res)
		for r := range out[s] {
			row := make([]bool, m.shape.Times)
			for t := range row {
				row[t] = m.Has(s, r, t)
			}
			out[s][r] = row
		}
	}
	return out
}

// MaskFromNested 是 Nested 的反向操作；三個軸的長度必須一致。
func MaskFromNested(nested [][][]bool) (*Mask, error) {
	if len(nested) == 0 || len(nested[0]) == 0 || len(nested[0][0]) == 0 {
		return nil, errs.Dataf("grid: empty nested mask")
	}
	shape := Shape{Segs: len(nested), Res: len(nested[0]), Times: len(nested[0][0])}
	for s := range nested {
		if len(nested[s]) != shape.Res {
			return nil, errs.Dataf("grid: ragged nested mask at segment %d", s)
		}
		for r := range nested[s] {
			if len(nested[s][r]) != shape.Times {
				return nil, errs.Dataf("grid: ragged nested mask at segment %d residue %d", s, r)
			}
		}
	}
	return NewMask(shape, func(s, r, t int) bool { return nested[s][r][t] }), nil
}
