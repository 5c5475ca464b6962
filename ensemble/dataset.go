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

// Package ensemble 描述一次重加權 run 的資料：
//   - Dataset：從外部讀入、整個 run 期間不變的陣列。
//   - Problem：由 Dataset 一次推導出的靜態量。
//   - State：所有會隨迭代改變的量，checkpoint 即是它的快照。
package ensemble

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dataset 是 run 的輸入（也是 run object 的格式）。
//
//	R = residues, N = frames, S = segments, T = times
type Dataset struct {
	ResIDs     []int
	Contacts   *mat.Dense // R×N
	HBonds     *mat.Dense // R×N
	MinusKT    *mat.Dense // R×T，-k_int·t
	ExpDfrac   *mat.Dense // S×T
	Filter     *grid.Mask // S×R×T
	Times      []float64  // T
	Segments   [][2]int   // 可選，S
	IniWeights []float64  // 可選，N；nil 代表等權重
}

// Dims 回傳 (R, N, S, T)
func (d *Dataset) Dims() (res, frames, segs, times int) {
	res, frames = d.Contacts.Dims()
	segs, times = d.ExpDfrac.Dims()
	return
}

// Validate 檢查所有形狀與數值範圍，任何不符都是 KindData 錯誤。
func (d *Dataset) Validate() error {
	if d.Contacts == nil || d.HBonds == nil || d.MinusKT == nil || d.ExpDfrac == nil || d.Filter == nil {
		return errs.Dataf("dataset: contacts, hbonds, minus_kt, exp_dfrac and filter are required")
	}
	r, n := d.Contacts.Dims()
	if hr, hn := d.HBonds.Dims(); hr != r || hn != n {
		return errs.Dataf("dataset: hbonds %dx%d differ from contacts %dx%d", hr, hn, r, n)
	}
	s, t := d.ExpDfrac.Dims()
	if kr, kt := d.MinusKT.Dims(); kr != r || kt != t {
		return errs.Dataf("dataset: minus_kt %dx%d want %dx%d", kr, kt, r, t)
	}
	if sh := d.Filter.Shape(); sh != (grid.Shape{Segs: s, Res: r, Times: t}) {
		return errs.Dataf("dataset: filter shape %v want %dx%dx%d", sh, s, r, t)
	}
	if d.Filter.Count() == 0 {
		return errs.Dataf("dataset: filter selects no datapoints")
	}
	if len(d.ResIDs) != r {
		return errs.Dataf("dataset: %d residue ids for %d residues", len(d.ResIDs), r)
	}
	seen := make(map[int]struct{}, r)
	for _, id := range d.ResIDs {
		if _, dup := seen[id]; dup {
			return errs.Dataf("dataset: duplicated residue id %d", id)
		}
		seen[id] = struct{}{}
	}
	if len(d.Times) != t {
		return errs.Dataf("dataset: %d times for %d time columns", len(d.Times), t)
	}
	if d.Segments != nil && len(d.Segments) != s {
		return errs.Dataf("dataset: %d segment bounds for %d segments", len(d.Segments), s)
	}
	if err := checkFinite("contacts", d.Contacts, false); err != nil {
		return err
	}
	if err := checkFinite("hbonds", d.HBonds, false); err != nil {
		return err
	}
	if err := checkFinite("minus_kt", d.MinusKT, false); err != nil {
		return err
	}
	if err := checkFinite("exp_dfrac", d.ExpDfrac, true); err != nil {
		return err
	}
	if d.IniWeights != nil {
		if len(d.IniWeights) != n {
			return errs.Dataf("dataset: %d initial weights for %d frames", len(d.IniWeights), n)
		}
		for i, w := range d.IniWeights {
			if !(w >= 0) || math.IsInf(w, 0) {
				return errs.Dataf("dataset: initial weight %d is %v", i, w)
			}
		}
		if !(floats.Sum(d.IniWeights) > 0) {
			return errs.Dataf("dataset: initial weights sum to zero")
		}
	}
	return nil
}

// checkFinite 檢查矩陣元素皆為有限值；allowNaN 時 NaN 視為缺值。
func checkFinite(name string, m *mat.Dense, allowNaN bool) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) && allowNaN {
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.Dataf("dataset: %s[%d,%d] is %v", name, i, j, v)
			}
		}
	}
	return nil
}

// InitialWeights 回傳初始權重的複本；未指定時為全 1。
func (d *Dataset) InitialWeights() []float64 {
	_, n := d.Contacts.Dims()
	out := make([]float64, n)
	if d.IniWeights == nil {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	copy(out, d.IniWeights)
	return out
}
