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

// Package grid 提供 segment × residue × time 的三維陣列。
//
// HDX 的所有比較都發生在這個三維空間上：一個 segment 覆蓋若干 residue，每個 (segment, residue)
// 在每個時間點都有一個值。Grid 把軸的順序固定為 s → r → t（row-major），
// 所有 broadcast 都在進入時檢查形狀，不合的一律回傳 KindData 錯誤，不做隱式擴張。
package grid

import (
	"math"

	"github.com/zintix-labs/hdxlab/errs"
)

// Shape 三個軸的長度
type Shape struct {
	Segs  int `json:"segs"`
	Res   int `json:"res"`
	Times int `json:"times"`
}

// Len 回傳元素總數
func (s Shape) Len() int {
	return s.Segs * s.Res * s.Times
}

func (s Shape) Valid() error {
	if s.Segs <= 0 || s.Res <= 0 || s.Times <= 0 {
		return errs.Dataf("grid: invalid shape segs=%d res=%d times=%d", s.Segs, s.Res, s.Times)
	}
	return nil
}

// Grid float64 三維陣列
type Grid struct {
	shape Shape
	data  []float64
}

// New 建立全為 0 的 Grid
func New(shape Shape) *Grid {
	return &Grid{shape: shape, data: make([]float64, shape.Len())}
}

// Full 建立全為 v 的 Grid
func Full(shape Shape, v float64) *Grid {
	g := New(shape)
	for i := range g.data {
		g.data[i] = v
	}
	return g
}

func (g *Grid) Shape() Shape { return g.shape }

// Data 直接回傳底層 slice（s → r → t）。
func (g *Grid) Data() []float64 { return g.data }

func (g *Grid) Index(s, r, t int) int {
	return (s*g.shape.Res+r)*g.shape.Times + t
}

func (g *Grid) At(s, r, t int) float64 {
	return g.data[g.Index(s, r, t)]
}

func (g *Grid) Set(s, r, t int, v float64) {
	g.data[g.Index(s, r, t)] = v
}

func (g *Grid) Clone() *Grid {
	c := &Grid{shape: g.shape, data: make([]float64, len(g.data))}
	copy(c.data, g.data)
	return c
}

// CountNaN 回傳 NaN 元素個數
func (g *Grid) CountNaN() int {
	n := 0
	for _, v := range g.data {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
