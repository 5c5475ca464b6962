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

// Package core 提供 hdxlab 使用的亂數核心。
//
// 亂數只用在兩個地方：隨機初始 frame 權重、以及 MC 參數取樣的提議/接受判定。
// 為了讓一次 run 可以被完整重播（含從 checkpoint 接續），Core 必須同時滿足：
//   - 決定性：同一個 seed 產生同一條序列。
//   - 可快照：Snapshot/Restore 以 []byte 交換內部狀態，寫進 checkpoint。
package core

// PRNG 定義 Core 所需的亂數來源，需同時支援取樣與狀態保存/還原。
type PRNG interface {
	RAND
	Restorable
}

// Restorable 定義可快照與還原的狀態介面。
type Restorable interface {
	// Snapshot 回傳可用於還原的序列化狀態。
	Snapshot() ([]byte, error)
	// Restore 依序列化狀態還原 PRNG 內部狀態。
	Restore([]byte) error
}

// RAND 定義核心亂數取樣能力。
type RAND interface {
	// Uint64 回傳非負 uint64 亂數。
	Uint64() uint64
	// Float64 回傳 [0,1) 的浮點亂數。
	Float64() float64
	// IntN 回傳 [0,max) 的 int 亂數，若 max <= 0 回傳 -1。
	IntN(int) int
}

type PRNGFactory interface {
	// New 以指定 seed 建立新的 PRNG。
	//
	// 合約：在同一個實作與同一個版本下，New(seed) 必須是決定性的。
	New(int64) PRNG
}

// DefaultPRNG 實作預設的 PRNGFactory（PCG64）
type DefaultPRNG struct{}

// New 滿足合約
func (d *DefaultPRNG) New(seed int64) PRNG {
	return newPCG64WithSeed(seed)
}

func Default() *DefaultPRNG {
	return &DefaultPRNG{}
}

// Core 封裝 PRNG，並提供常用取樣方法。
type Core struct {
	PRNG
}

// New 允許使用外部自實現的 PRNG 建立 Core。
func New(rng PRNG) *Core {
	return &Core{rng}
}

// NewWithSeed 以預設 PRNG 建立 Core。
func NewWithSeed(seed int64) *Core {
	return &Core{Default().New(seed)}
}

// Centered 回傳 [-0.5, 0.5) 的均勻亂數。
func (c *Core) Centered() float64 {
	return c.Float64() - 0.5
}

// Uniform 回傳 [lo, hi) 的均勻亂數。
func (c *Core) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*c.Float64()
}

// Fill 以 [0,1) 均勻亂數填滿 dst。
func (c *Core) Fill(dst []float64) {
	for i := range dst {
		dst[i] = c.Float64()
	}
}
