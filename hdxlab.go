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

// Package hdxlab 以最大熵（MaxEnt）重加權模擬 ensemble，使 ensemble 平均的 HDX 預測符合實驗。
//
// 組成：
//  1. Engine：重加權迴圈。每次迭代由 lambdas 算出 frame 權重、預測 deuterated fraction、
//     計算與實驗的誤差與梯度並更新 lambdas；可選擇性地以 MC 取樣前向模型係數 (Bc, Bh)。
//  2. Run：組裝入口。依 restart > run object > 從檔案讀入 的優先順序建立 Engine 並跑到終止。
//  3. Sweep：對多個 gamma 各跑一次獨立的 run（可平行），並輸出合併的 work 紀錄。
//
// 一次 run 內部嚴格循序；不同 run 之間沒有共享的可變狀態。
package hdxlab

// Status 是 Engine 的狀態
type Status uint8

const (
	StatusInitializing Status = iota
	StatusIterating
	StatusConverged
	StatusMaxIters
	StatusFailed
	StatusInterrupted
)

var statusName = map[Status]string{
	StatusInitializing: "initializing",
	StatusIterating:    "iterating",
	StatusConverged:    "converged",
	StatusMaxIters:     "maxiters_reached",
	StatusFailed:       "failed",
	StatusInterrupted:  "interrupted",
}

func (s Status) String() string {
	return statusName[s]
}

// Terminal 回報是否為終止狀態
func (s Status) Terminal() bool {
	return s >= StatusConverged
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for k, v := range statusName {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	*s = StatusFailed
	return nil
}
