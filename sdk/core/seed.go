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

package core

import (
	"crypto/rand"
	"math"
	"math/big"
	"sync/atomic"
)

const mask63 = uint64(1<<63) - 1

// RandomSeed 由 crypto/rand 產生一個正的 int64 seed。
//
// 呼叫端必須把回傳值記錄下來（initial params、checkpoint），否則 run 無法重播。
func RandomSeed() int64 {
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err == nil && n.Int64() > 0 {
			return n.Int64()
		}
	}
}

// SeedMaker 由一個 base seed 決定性地派生子 seed。
//
// 一次 run 需要兩條彼此獨立的亂數流（隨機初始權重、MC 取樣）；
// gamma sweep 則需要每個 run 一個 seed。全部由同一個 base seed 派生，只要記錄 base seed 即可重播。
type SeedMaker struct {
	state atomic.Uint64 // always in [0, 2^63)
}

func NewSeedMaker(seed int64) *SeedMaker {
	s := &SeedMaker{}
	s.state.Store(uint64(seed) & mask63)
	return s
}

// Next 推進 state（full-period LCG mod 2^63）並以可逆的 mix63 打散。
//
// 可能在 sweep 的多個 goroutine 中被呼叫，因此以 CAS 迴圈推進。
func (s *SeedMaker) Next() int64 {
	for {
		old := s.state.Load()
		next := (old*6364136223846793005 + 1442695040888963407) & mask63
		if s.state.CompareAndSwap(old, next) {
			return int64(mix63(next))
		}
	}
}

func mix63(x uint64) uint64 {
	x &= mask63
	x ^= x >> 30
	x = (x * 0xBF58476D1CE4E5B9) & mask63 // 乘奇數 ⇒ mod 2^63 可逆
	x ^= x >> 27
	x = (x * 0x94D049BB133111EB) & mask63
	x ^= x >> 31
	return x & mask63
}
