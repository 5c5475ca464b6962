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

package ensemble

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/mat"
)

func smallDataset(t *testing.T) *Dataset {
	t.Helper()
	resIDs := []int{1, 2, 3}
	segs := [][2]int{{0, 2}, {1, 3}}
	filter, err := grid.MaskFromSegments(resIDs, segs, 2, nil)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	return &Dataset{
		ResIDs:   resIDs,
		Contacts: mat.NewDense(3, 4, []float64{1, 2, 3, 4, 2, 2, 2, 2, 5, 1, 0, 3}),
		HBonds:   mat.NewDense(3, 4, []float64{0, 1, 1, 0, 1, 1, 0, 0, 1, 0, 1, 1}),
		MinusKT:  mat.NewDense(3, 2, []float64{-1, -10, -2, -20, -3, -30}),
		ExpDfrac: mat.NewDense(2, 2, []float64{0.3, math.NaN(), 0.2, 0.8}),
		Filter:   filter,
		Times:    []float64{0.5, 5},
		Segments: segs,
	}
}

func TestDatasetValidate(t *testing.T) {
	d := smallDataset(t)
	if err := d.Validate(); err != nil {
		t.Fatalf("valid dataset rejected: %v", err)
	}
	r, n, s, tt := d.Dims()
	if r != 3 || n != 4 || s != 2 || tt != 2 {
		t.Fatalf("dims got %d %d %d %d", r, n, s, tt)
	}

	bad := smallDataset(t)
	bad.HBonds = mat.NewDense(3, 3, nil)
	if err := bad.Validate(); !errs.IsKind(err, errs.KindData) {
		t.Fatalf("frame mismatch should be a data error, got %v", err)
	}
	bad = smallDataset(t)
	bad.ResIDs = []int{1, 1, 3}
	if err := bad.Validate(); err == nil {
		t.Fatalf("duplicated residue id must fail")
	}
	bad = smallDataset(t)
	bad.IniWeights = []float64{0, 0, 0, 0}
	if err := bad.Validate(); err == nil {
		t.Fatalf("all-zero initial weights must fail")
	}
	bad = smallDataset(t)
	bad.Contacts.Set(0, 0, math.Inf(1))
	if err := bad.Validate(); err == nil {
		t.Fatalf("infinite contacts must fail")
	}
}

func TestDatasetJSONKeepsNaN(t *testing.T) {
	d := smallDataset(t)
	raw, err := json.Marshal(d.ToJSON())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var j DatasetJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := j.Dataset()
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if !math.IsNaN(back.ExpDfrac.At(0, 1)) {
		t.Fatalf("NaN experimental value lost")
	}
	if !mat.Equal(back.Contacts, d.Contacts) || back.Filter.Count() != d.Filter.Count() {
		t.Fatalf("round trip changed data")
	}

	j.Contacts[1] = j.Contacts[1][:2]
	if _, err := j.Dataset(); err == nil {
		t.Fatalf("ragged contacts must fail")
	}
}

func TestNewStateAndCheck(t *testing.T) {
	p, err := NewProblem(smallDataset(t))
	if err != nil {
		t.Fatalf("problem: %v", err)
	}
	if p.NDatapoints != 8 {
		t.Fatalf("n_datapoints got %d want 8", p.NDatapoints)
	}
	m := spec.DefaultMethodSetting()
	m.DoMCSampl = true
	if err := m.Init(); err != nil {
		t.Fatalf("method: %v", err)
	}
	st, err := NewState(p, &m, []float64{1, 1, 2, 0})
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Weights[2] != 0.5 || st.Weights[3] != 0 || st.IniWeights[2] != 2 {
		t.Fatalf("weights not normalised: %v", st.Weights)
	}
	if len(st.LambdasC) != 3 || len(st.FinalLambda) != 3 {
		t.Fatalf("coupled state vectors missing")
	}
	if err := st.Check(p, true); err != nil {
		t.Fatalf("fresh state should check: %v", err)
	}

	c := st.Clone()
	c.Lambdas[0] = 5
	c.Weights[0] = 9
	if st.Lambdas[0] != 0 || st.Weights[0] == 9 {
		t.Fatalf("clone shares memory")
	}
	if err := c.Check(p, true); !errs.IsKind(err, errs.KindSchema) {
		t.Fatalf("unnormalised weights should be a schema error, got %v", err)
	}

	c = st.Clone()
	c.LambdasH = c.LambdasH[:2]
	if err := c.Check(p, true); err == nil {
		t.Fatalf("short channel lambdas must fail")
	}
	if err := c.Check(p, false); err != nil {
		t.Fatalf("channel lambdas ignored when not coupled: %v", err)
	}
}
