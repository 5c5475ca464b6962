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
)

// NaNFloat 在 JSON 中以 null 表示 NaN（encoding/json 無法直接輸出 NaN）。
type NaNFloat float64

func (f NaNFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *NaNFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = NaNFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = NaNFloat(v)
	return nil
}

func ToNaNFloats(v []float64) []NaNFloat {
	if v == nil {
		return nil
	}
	out := make([]NaNFloat, len(v))
	for i, x := range v {
		out[i] = NaNFloat(x)
	}
	return out
}

func FromNaNFloats(v []NaNFloat) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
