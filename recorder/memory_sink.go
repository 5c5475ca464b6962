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

package recorder

import (
	"sync"
)

// MemorySink 把紀錄留在記憶體，供 HTTP API 回傳與測試使用。
type MemorySink struct {
	mu         sync.Mutex
	Params     []Params
	Sources    []string // Restarted 的來源
	Seeds      []int64
	Iterations []Row
	Restarts   []Row
	Works      []WorkRow
	Closed     bool

	// MaxIterations > 0 時只保留最後 MaxIterations 筆迭代紀錄
	MaxIterations int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Start(p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Params = append(m.Params, p)
	return nil
}

func (m *MemorySink) Restarted(source string, p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sources = append(m.Sources, source)
	m.Params = append(m.Params, p)
	return nil
}

func (m *MemorySink) RandomSeed(seed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seeds = append(m.Seeds, seed)
	return nil
}

func (m *MemorySink) RandomWeights(int64, []float64) error { return nil }

func (m *MemorySink) Iteration(r Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Iterations = append(m.Iterations, r)
	if m.MaxIterations > 0 && len(m.Iterations) > 2*m.MaxIterations {
		m.Iterations = append(m.Iterations[:0], m.Iterations[len(m.Iterations)-m.MaxIterations:]...)
	}
	return nil
}

func (m *MemorySink) Restart(r Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Restarts = append(m.Restarts, r)
	return nil
}

func (m *MemorySink) Work(w WorkRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Works = append(m.Works, w)
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Tail 回傳最後 n 筆迭代紀錄的複本
func (m *MemorySink) Tail(n int) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.Iterations) {
		n = len(m.Iterations)
	}
	return append([]Row(nil), m.Iterations[len(m.Iterations)-n:]...)
}
