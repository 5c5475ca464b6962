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

package spec

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
)

type RunSetting struct {
	Gamma           float64   `yaml:"gamma"            json:"gamma"`
	DataFolders     []string  `yaml:"data_folders"     json:"data_folders"`
	KintFile        string    `yaml:"kint_file"        json:"kint_file"`
	ExpFile         string    `yaml:"exp_file"         json:"exp_file"`
	Times           []float64 `yaml:"times"            json:"times"`
	IniWeightsFile  string    `yaml:"iniweights_file"  json:"iniweights_file"`
	ContactsPrefix  string    `yaml:"contacts_prefix"  json:"contacts_prefix"`
	HbondsPrefix    string    `yaml:"hbonds_prefix"    json:"hbonds_prefix"`
	OutPrefix       string    `yaml:"out_prefix"       json:"out_prefix"`
	RestartInterval int       `yaml:"restart_interval" json:"restart_interval"`
	Seed            int64     `yaml:"seed"             json:"seed"`
}

// DefaultRunSetting 回傳預設 run 參數（資料位置需由呼叫端補上）。
func DefaultRunSetting() RunSetting {
	return RunSetting{
		Gamma:           1e-2,
		ContactsPrefix:  "Contacts_",
		HbondsPrefix:    "Hbonds_",
		OutPrefix:       "reweighting_",
		RestartInterval: 100,
	}
}

func (r *RunSetting) Valid() error {
	if !(r.Gamma > 0) || math.IsInf(r.Gamma, 0) {
		return errs.Configf("run: gamma must be > 0, got %v", r.Gamma)
	}
	if r.RestartInterval <= 0 {
		return errs.Configf("run: restart_interval must be > 0, got %d", r.RestartInterval)
	}
	for i, t := range r.Times {
		if !(t >= 0) || math.IsInf(t, 0) {
			return errs.Configf("run: times[%d] must be a finite non-negative value, got %v", i, t)
		}
	}
	return nil
}

// RequireData 檢查從檔案建立新 run 時必要的輸入；缺一即為 ConfigurationError。
func (r *RunSetting) RequireData() error {
	if len(r.DataFolders) == 0 {
		return errs.Configf("run: data_folders is required for a fresh run")
	}
	if r.KintFile == "" {
		return errs.Configf("run: kint_file is required for a fresh run")
	}
	if r.ExpFile == "" {
		return errs.Configf("run: exp_file is required for a fresh run")
	}
	if len(r.Times) == 0 {
		return errs.Configf("run: times is required for a fresh run")
	}
	if r.ContactsPrefix == "" || r.HbondsPrefix == "" {
		return errs.Configf("run: contacts_prefix / hbonds_prefix must not be empty")
	}
	return nil
}
