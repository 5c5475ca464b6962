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
	"testing"

	"github.com/zintix-labs/hdxlab/errs"
	"gonum.org/v1/gonum/mat"
)

func TestMaskFromSegments(t *testing.T) {
	resIDs := []int{10, 11, 12, 13}
	segs := [][2]int{{9, 11}, {11, 13}}
	include := []bool{true, true, false, true}
	m, err := MaskFromSegments(resIDs, segs, 2, include)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	// seg0 → 10, 11 ; seg1 → 12(excluded), 13
	if m.ResiduesIn(0) != 2 || m.ResiduesIn(1) != 1 {
		t.Fatalf("residues per segment got %d/%d", m.ResiduesIn(0), m.ResiduesIn(1))
	}
	if m.Count() != 6 {
		t.Fatalf("count got %d want 6", m.Count())
	}
	if m.Has(1, 2, 0) || !m.Has(1, 3, 1) || m.Has(0, 2, 0) {
		t.Fatalf("membership wrong")
	}

	back, err := MaskFromNested(m.Nested())
	if err != nil {
		t.Fatalf("nested: %v", err)
	}
	if back.Count() != m.Count() || back.ResiduesIn(0) != 2 {
		t.Fatalf("nested round trip changed mask")
	}

	if _, err := MaskFromSegments(resIDs, [][2]int{{5, 5}}, 1, nil); !errs.IsKind(err, errs.KindData) {
		t.Fatalf("empty segment should be a data error, got %v", err)
	}
}

func TestBroadcastShapeChecked(t *testing.T) {
	sh := Shape{Segs: 2, Res: 3, Times: 2}
	g, err := BroadcastResidues(sh, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if g.At(1, 2, 1) != 3 || g.At(0, 0, 0) != 1 {
		t.Fatalf("broadcast values wrong")
	}
	if _, err := BroadcastResidues(sh, []float64{1, 2}); err == nil {
		t.Fatalf("length mismatch must fail")
	}

	m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	rt, err := BroadcastResidueTime(sh, m)
	if err != nil {
		t.Fatalf("broadcast rt: %v", err)
	}
	if rt.At(1, 2, 1) != 6 || rt.At(0, 1, 0) != 3 {
		t.Fatalf("residue-time broadcast wrong")
	}
	if _, err := BroadcastResidueTime(sh, mat.NewDense(2, 3, nil)); err == nil {
		t.Fatalf("transposed matrix must fail")
	}
}

func TestNanReductions(t *testing.T) {
	sh := Shape{Segs: 2, Res: 2, Times: 1}
	g := Full(sh, math.NaN())
	g.Set(0, 0, 0, 0.2)
	g.Set(0, 1, 0, 0.4)
	g.Set(1, 1, 0, 1.0)

	mean := NanMeanResidues(g)
	if math.Abs(mean.At(0, 0)-0.3) > 1e-12 || mean.At(1, 0) != 1.0 {
		t.Fatalf("nanmean wrong: %v", mat.Formatted(mean))
	}
	g.Set(1, 1, 0, math.NaN())
	if !math.IsNaN(NanMeanResidues(g).At(1, 0)) {
		t.Fatalf("all-NaN segment should be NaN")
	}

	sum := NanSumSegments(g)
	if sum.At(0, 0) != 0.2 || sum.At(1, 0) != 0.4 {
		t.Fatalf("nansum wrong: %v", mat.Formatted(sum))
	}
	if g.CountNaN() != 2 {
		t.Fatalf("nan count got %d", g.CountNaN())
	}
}
