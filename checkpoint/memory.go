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

package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/zintix-labs/hdxlab/errs"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]byte{}, entries: map[string]Entry{}}
}

func (m *MemoryStore) Init(context.Context) error { return nil }

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec.RunID == "" {
		return errs.Warnf("checkpoint: run id required").WithKind(errs.KindIO)
	}
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.RunID] = b
	m.entries[rec.RunID] = entryOf(rec)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, runID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.records[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
