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

// Package loader 從純文字檔讀入一次 run 的資料並組成 ensemble.Dataset。
//
// 檔案格式：
//   - contacts / hbonds：每個 residue 一個檔，檔名以 prefix 開頭並含 res_<id>，每個 frame 一個數值。
//     多個資料夾依序串接 frame。
//   - kint：每行 `resid kint`。缺少或非正值的 residue 在所有 segment 中排除。
//   - expt：每行 `start end d(t1) ... d(tT)`，segment 覆蓋 start < resid <= end。
//
// 空行與 # 開頭的行一律略過。
package loader

import (
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/mat"
)

// Load 依 RunSetting 讀入全部檔案。
func Load(rs *spec.RunSetting) (*ensemble.Dataset, error) {
	if err := rs.RequireData(); err != nil {
		return nil, err
	}
	resIDs, contacts, hbonds, err := ReadContactsHbonds(rs.DataFolders, rs.ContactsPrefix, rs.HbondsPrefix)
	if err != nil {
		return nil, err
	}
	kint, err := ReadKint(rs.KintFile)
	if err != nil {
		return nil, err
	}
	segments, exp, err := ReadExpt(rs.ExpFile, len(rs.Times))
	if err != nil {
		return nil, err
	}

	include := make([]bool, len(resIDs))
	mkt := mat.NewDense(len(resIDs), len(rs.Times), nil)
	for r, id := range resIDs {
		k, ok := kint[id]
		if !ok || !(k > 0) {
			continue
		}
		include[r] = true
		for j, t := range rs.Times {
			mkt.Set(r, j, -k*t)
		}
	}
	filter, err := grid.MaskFromSegments(resIDs, segments, len(rs.Times), include)
	if err != nil {
		return nil, err
	}

	d := &ensemble.Dataset{
		ResIDs:   resIDs,
		Contacts: contacts,
		HBonds:   hbonds,
		MinusKT:  mkt,
		ExpDfrac: exp,
		Filter:   filter,
		Times:    append([]float64(nil), rs.Times...),
		Segments: segments,
	}
	if rs.IniWeightsFile != "" {
		w, err := ReadWeights(rs.IniWeightsFile)
		if err != nil {
			return nil, err
		}
		d.IniWeights = w
	}
	if err := d.Validate(); err != nil {
		return nil, errs.Wrap(err, "loader: loaded data is inconsistent")
	}
	return d, nil
}
