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
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"gonum.org/v1/gonum/mat"
)

// DatasetJSON 是 Dataset 的可序列化形式（HTTP API 與 checkpoint 共用）。
type DatasetJSON struct {
	ResIDs     []int        `json:"resids"`
	Contacts   [][]float64  `json:"contacts"`
	HBonds     [][]float64  `json:"hbonds"`
	MinusKT    [][]float64  `json:"minus_kt"`
	ExpDfrac   [][]NaNFloat `json:"exp_dfrac"`
	Filter     [][][]bool   `json:"filter"`
	Times      []float64    `json:"times"`
	Segments   [][2]int     `json:"segments,omitempty"`
	IniWeights []float64    `json:"iniweights,omitempty"`
}

func (d *Dataset) ToJSON() *DatasetJSON {
	exp := denseRows(d.ExpDfrac)
	expN := make([][]NaNFloat, len(exp))
	for i, row := range exp {
		expN[i] = ToNaNFloats(row)
	}
	return &DatasetJSON{
		ResIDs:     append([]int(nil), d.ResIDs...),
		Contacts:   denseRows(d.Contacts),
		HBonds:     denseRows(d.HBonds),
		MinusKT:    denseRows(d.MinusKT),
		ExpDfrac:   expN,
		Filter:     d.Filter.Nested(),
		Times:      append([]float64(nil), d.Times...),
		Segments:   append([][2]int(nil), d.Segments...),
		IniWeights: append([]float64(nil), d.IniWeights...),
	}
}

// Dataset 轉回 Dataset 並完成 Validate。
func (j *DatasetJSON) Dataset() (*Dataset, error) {
	contacts, err := rowsDense("contacts", j.Contacts)
	if err != nil {
		return nil, err
	}
	hbonds, err := rowsDense("hbonds", j.HBonds)
	if err != nil {
		return nil, err
	}
	mkt, err := rowsDense("minus_kt", j.MinusKT)
	if err != nil {
		return nil, err
	}
	expRows := make([][]float64, len(j.ExpDfrac))
	for i, row := range j.ExpDfrac {
		expRows[i] = FromNaNFloats(row)
	}
	exp, err := rowsDense("exp_dfrac", expRows)
	if err != nil {
		return nil, err
	}
	filter, err := grid.MaskFromNested(j.Filter)
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		ResIDs:   append([]int(nil), j.ResIDs...),
		Contacts: contacts,
		HBonds:   hbonds,
		MinusKT:  mkt,
		ExpDfrac: exp,
		Filter:   filter,
		Times:    append([]float64(nil), j.Times...),
	}
	if len(j.Segments) > 0 {
		d.Segments = append([][2]int(nil), j.Segments...)
	}
	if len(j.IniWeights) > 0 {
		d.IniWeights = append([]float64(nil), j.IniWeights...)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, m)
	}
	return out
}

func rowsDense(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errs.Dataf("dataset: %s is empty", name)
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, errs.Dataf("dataset: %s row %d has %d columns, want %d", name, i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}
