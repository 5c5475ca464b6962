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
	"github.com/zintix-labs/hdxlab/sdk/forward"
)

// Problem 由 Dataset 推導出的靜態量，建好之後整個 run 不再改變。
type Problem struct {
	Data   *Dataset
	Target *forward.Target

	NRes        int
	NFrames     int
	NSegs       int
	NTimes      int
	NDatapoints int
}

// NewProblem 驗證 Dataset 並建立 Problem。
func NewProblem(d *Dataset) (*Problem, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	tg, err := forward.NewTarget(d.MinusKT, d.ExpDfrac, d.Filter)
	if err != nil {
		return nil, err
	}
	r, n, s, t := d.Dims()
	return &Problem{
		Data:        d,
		Target:      tg,
		NRes:        r,
		NFrames:     n,
		NSegs:       s,
		NTimes:      t,
		NDatapoints: tg.N,
	}, nil
}
