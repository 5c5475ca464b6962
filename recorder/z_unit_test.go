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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestParamsLine(t *testing.T) {
	p := Params{Temp: 300, KT: 300 * 0.008314598, Tolerance: 1e-10, Bc: 0.35, Bh: 2, Gamma: 1e-2, StepFactor: 1e-5, NFrames: 10}
	want := "300.0,  2.494, 1.00e-10,  0.35,  2.00, 1.00e-02, 0.000010, 10\n"
	if got := p.line(); got != want {
		t.Fatalf("params line\n got %q\nwant %q", got, want)
	}
}

func TestFileSinkFreshThenRestarted(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out", "rw_")
	s := NewFileSink(prefix)
	p := Params{Temp: 300, KT: 2.494, Tolerance: 1e-10, Bc: 0.35, Bh: 2, Gamma: 0.1, StepFactor: 1e-5, NFrames: 4}
	if err := s.Start(p); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RandomSeed(77); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.RandomWeights(77, []float64{0.5, 0.25}); err != nil {
		t.Fatalf("weights: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.Iteration(Row{Iter: i, MSE: 0.1}); err != nil {
			t.Fatalf("iteration: %v", err)
		}
	}
	if err := s.Restart(Row{Iter: 3, MSE: 0.1, Work: 1.5}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	// checkpoint 時 per-iteration 必須已落盤
	if got := strings.Count(read(t, prefix+"per_iteration_output.dat"), "\n"); got != 4 {
		t.Fatalf("per-iteration lines after restart row got %d want 4", got)
	}
	if err := s.Work(WorkRow{Gamma: 0.1, MSE: 0.1, Work: 1.5}); err != nil {
		t.Fatalf("work: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	params := read(t, prefix+"initial_params.dat")
	if !strings.HasPrefix(params, paramsHeader) || !strings.Contains(params, "RandomState = 77") {
		t.Fatalf("initial params content: %q", params)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(prefix), "initial_weights_RandomState77.dat")); err != nil {
		t.Fatalf("random weights dump missing: %v", err)
	}
	if w := read(t, prefix+"work.dat"); !strings.HasPrefix(w, workHeader) || strings.Count(w, "\n") != 2 {
		t.Fatalf("work content: %q", w)
	}

	s2 := NewFileSink(prefix)
	if err := s2.Restarted("ckpt.zst", p); err != nil {
		t.Fatalf("restarted: %v", err)
	}
	if err := s2.Iteration(Row{Iter: 4}); err != nil {
		t.Fatalf("iteration: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	iter := read(t, prefix+"per_iteration_output.dat")
	if !strings.Contains(iter, "# RESTARTED FROM FILE ckpt.zst :\n"+iterHeader) {
		t.Fatalf("restart marker missing: %q", iter)
	}
	if !strings.HasPrefix(iter, iterHeader+"1, ") || !strings.HasSuffix(iter, "\n4, 0.00000e+00, 0.00000e+00, 0.00000e+00, 0.00000e+00, 0.00000e+00,  0.00000,  0.00000\n") {
		t.Fatalf("restarted file should keep earlier rows: %q", iter)
	}
}

func TestMemorySinkTail(t *testing.T) {
	m := NewMemorySink()
	m.MaxIterations = 3
	for i := 1; i <= 10; i++ {
		_ = m.Iteration(Row{Iter: i})
	}
	tail := m.Tail(3)
	if len(tail) != 3 || tail[2].Iter != 10 || tail[0].Iter != 8 {
		t.Fatalf("tail got %+v", tail)
	}
	if len(m.Iterations) > 6 {
		t.Fatalf("memory sink kept %d rows", len(m.Iterations))
	}
	var _ Sink = m
	var _ Sink = Nop{}
	var _ Sink = NewFileSink("x")
}
