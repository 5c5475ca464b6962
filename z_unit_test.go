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

package hdxlab

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/demo"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/recorder"
	"github.com/zintix-labs/hdxlab/sdk/forward"
	"gonum.org/v1/gonum/floats"
)

func demoData(t *testing.T) *ensemble.Dataset {
	t.Helper()
	o := demo.DefaultOptions()
	o.Residues, o.Frames, o.Segments = 10, 16, 3
	d, err := demo.Generate(o)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	return d
}

func testOptions(sink recorder.Sink) RunOptions {
	o := DefaultRunOptions()
	o.Method.DoParams = false
	o.Method.MaxIters = 200
	o.Method.StepFactor = 1e-2
	o.Run.Seed = 7
	o.Run.RestartInterval = 50
	o.Sink = sink
	return o
}

func checkWeights(t *testing.T, w []float64) {
	t.Helper()
	for i, v := range w {
		if !(v >= 0) || math.IsInf(v, 0) {
			t.Fatalf("weight[%d] = %v", i, v)
		}
	}
	if s := floats.Sum(w); math.Abs(s-1) > 1e-9 {
		t.Fatalf("weights sum to %v", s)
	}
}

func TestStatusText(t *testing.T) {
	for s := StatusInitializing; s <= StatusInterrupted; s++ {
		b, _ := s.MarshalText()
		var back Status
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("status %v round trip got %v (%v)", s, back, err)
		}
	}
	if StatusIterating.Terminal() || !StatusMaxIters.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("terminal classification is wrong")
	}
}

func TestFreshRunWithoutDataIsConfigError(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	_, err := Run(context.Background(), 0.01, nil, nil, o)
	if !errs.IsKind(err, errs.KindConfig) {
		t.Fatalf("want config error, got %v", err)
	}
	if len(sink.Iterations) != 0 || len(sink.Params) != 0 {
		t.Fatalf("nothing should be recorded before setup succeeds")
	}
}

func TestRunRejectsBadGamma(t *testing.T) {
	_, err := Prepare(context.Background(), -1, demoData(t), nil, testOptions(recorder.NewMemorySink()))
	if !errs.IsKind(err, errs.KindConfig) {
		t.Fatalf("want config error, got %v", err)
	}
}

func TestReweightingLowersError(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	res, err := Run(context.Background(), 0.1, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Status.Terminal() || res.Status == StatusFailed {
		t.Fatalf("unexpected status %v", res.Status)
	}
	if res.Iterations > o.Method.MaxIters || res.Iterations != len(sink.Iterations) {
		t.Fatalf("iterations %d rows %d", res.Iterations, len(sink.Iterations))
	}
	checkWeights(t, res.Weights)
	first := sink.Iterations[0]
	if !(res.MSE <= first.MSE) {
		t.Fatalf("mse went from %v to %v", first.MSE, res.MSE)
	}
	if res.Work < -1e-12 {
		t.Fatalf("work must be non-negative, got %v", res.Work)
	}
	if len(sink.Works) != 1 || sink.Works[0].Gamma != 0.1 {
		t.Fatalf("work rows %+v", sink.Works)
	}
	last := sink.Restarts[len(sink.Restarts)-1]
	if last.Iter != res.Iterations {
		t.Fatalf("final restart row at %d, run ended at %d", last.Iter, res.Iterations)
	}
	if !sink.Closed {
		t.Fatalf("sink not closed")
	}
}

func TestParamsOnlyMinimisationKeepsLambdasZero(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Method.DoReweight = false
	o.Method.DoParams = true
	o.Method.DoMCMin = true
	o.Method.ParamMaxIters = 20
	o.Method.MaxIters = 30
	o.Method.RadouBc, o.Method.RadouBh = 0.1, 5
	res, err := Run(context.Background(), 0.01, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, l := range res.Lambdas {
		if l != 0 {
			t.Fatalf("lambda[%d] = %v", i, l)
		}
	}
	rows := sink.Iterations
	for i := 1; i < len(rows); i++ {
		if rows[i].MSE > rows[i-1].MSE {
			t.Fatalf("mse increased at iteration %d: %v -> %v", rows[i].Iter, rows[i-1].MSE, rows[i].MSE)
		}
	}
	if res.MCProposed == 0 {
		t.Fatalf("sampler never ran")
	}
}

func TestCheckpointRestoreContinuesIdentically(t *testing.T) {
	ctx := context.Background()
	d := demoData(t)
	store := checkpoint.NewMemoryStore()
	o := testOptions(recorder.NewMemorySink())
	o.Method.DoParams = true
	o.Method.DoMCSampl = true
	o.Method.ParamMaxIters = 10
	o.Method.ParamEvery = 2
	o.Method.MCEquilSteps = 5
	o.Run.RestartInterval = 5
	o.Store = store

	a, err := Prepare(ctx, 0.05, d, nil, o)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := a.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	sink := recorder.NewMemorySink()
	b, err := Prepare(ctx, 0, nil, checkpoint.StoreSource(store, a.RunID()), RunOptions{Sink: sink})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(sink.Sources) != 1 || !strings.Contains(sink.Sources[0], a.RunID()) {
		t.Fatalf("restart marker not written: %v", sink.Sources)
	}
	if b.Gamma() != 0.05 || b.State().Iter != 5 {
		t.Fatalf("restart adopted gamma %v iter %d", b.Gamma(), b.State().Iter)
	}

	for i := 0; i < 3; i++ {
		if err := a.Step(ctx); err != nil {
			t.Fatalf("a: %v", err)
		}
		if err := b.Step(ctx); err != nil {
			t.Fatalf("b: %v", err)
		}
	}
	sa, sb := a.State(), b.State()
	if sa.Bc != sb.Bc || sa.Bh != sb.Bh || sa.MSE != sb.MSE || sa.StepFactor != sb.StepFactor {
		t.Fatalf("restored run diverged: %+v vs %+v", sa, sb)
	}
	if !floats.Equal(sa.Lambdas, sb.Lambdas) || !floats.Equal(sa.Weights, sb.Weights) {
		t.Fatalf("restored lambdas/weights diverged")
	}
	if !floats.Equal(sa.LambdasC, sb.LambdasC) || !floats.Equal(sa.LambdasH, sb.LambdasH) {
		t.Fatalf("restored channel lambdas diverged")
	}
}

func TestRestartRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	e, err := Prepare(ctx, 0.01, demoData(t), nil, testOptions(recorder.NewMemorySink()))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := e.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	rec, err := e.Record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.Version = checkpoint.CurrentVersion + 1
	b, err := checkpoint.Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "old.ckpt")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sink := recorder.NewMemorySink()
	_, err = Prepare(ctx, 0, nil, checkpoint.FileSource(path), RunOptions{Sink: sink})
	if !errs.IsKind(err, errs.KindSchema) {
		t.Fatalf("want schema error, got %v", err)
	}
	if len(sink.Sources) != 0 {
		t.Fatalf("rejected checkpoint must not be adopted")
	}
}

func TestCancelledLoopIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := checkpoint.NewMemoryStore()
	o := testOptions(recorder.NewMemorySink())
	o.Store = store
	e, err := Prepare(ctx, 0.01, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	cancel()
	res, err := e.Loop(ctx)
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if res.Status != StatusInterrupted {
		t.Fatalf("status %v", res.Status)
	}
	list, err := store.List(context.Background())
	if err != nil || len(list) != 1 || list[0].Status != StatusInterrupted.String() {
		t.Fatalf("final checkpoint missing: %+v (%v)", list, err)
	}
}

func TestRandomInitialWeightsFollowSeed(t *testing.T) {
	ctx := context.Background()
	d := demoData(t)
	prep := func() (*Engine, *recorder.MemorySink) {
		sink := recorder.NewMemorySink()
		o := testOptions(sink)
		o.Method.RandomInitial = true
		e, err := Prepare(ctx, 0.01, d, nil, o)
		if err != nil {
			t.Fatalf("prepare: %v", err)
		}
		return e, sink
	}
	a, sa := prep()
	b, _ := prep()
	if !floats.Equal(a.State().IniWeights, b.State().IniWeights) {
		t.Fatalf("same seed gave different random weights")
	}
	if len(sa.Seeds) != 1 || sa.Seeds[0] != a.State().WeightSeed {
		t.Fatalf("weight seed not recorded: %v", sa.Seeds)
	}
	checkWeights(t, a.State().Weights)
}

func TestSweepRunsEveryGamma(t *testing.T) {
	dir := t.TempDir()
	o := testOptions(nil)
	o.Method.MaxIters = 40
	o.Run.OutPrefix = filepath.Join(dir, "sw_")
	gammas := []float64{0.1, 0.01, 1}
	res, err := Sweep(context.Background(), gammas, demoData(t), SweepOptions{Base: o, Workers: 2})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res) != 3 || res[0].Gamma != 0.01 || res[2].Gamma != 1 {
		t.Fatalf("results not sorted by gamma: %+v", res)
	}
	if res[0].RunID == res[1].RunID || res[0].Seed == res[1].Seed {
		t.Fatalf("runs share identity")
	}
	b, err := os.ReadFile(o.Run.OutPrefix + "work.dat")
	if err != nil {
		t.Fatalf("combined work: %v", err)
	}
	if lines := strings.Count(string(b), "\n"); lines != 4 {
		t.Fatalf("combined work has %d lines:\n%s", lines, b)
	}
	if _, err := os.Stat(o.Run.OutPrefix + "gamma_0.1_per_iteration_output.dat"); err != nil {
		t.Fatalf("per-gamma trace missing: %v", err)
	}
}

func TestSweepRejectsSharedSink(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Run.OutPrefix = filepath.Join(t.TempDir(), "sw_")
	_, err := Sweep(context.Background(), []float64{0.1, 0.01, 1}, demoData(t), SweepOptions{Base: o, Workers: 3})
	if !errs.IsKind(err, errs.KindConfig) {
		t.Fatalf("want config error, got %v", err)
	}
	if len(sink.Params) != 0 || len(sink.Iterations) != 0 {
		t.Fatalf("shared sink must not be written")
	}
}

func TestSweepNewSinkGivesEachGammaItsOwnSink(t *testing.T) {
	o := testOptions(nil)
	o.Method.MaxIters = 20
	gammas := []float64{0.1, 0.01, 1}
	sinks := make(map[float64]*recorder.MemorySink)
	newSink := func(g float64, _ string) recorder.Sink {
		s := recorder.NewMemorySink()
		sinks[g] = s
		return s
	}
	res, err := Sweep(context.Background(), gammas, demoData(t), SweepOptions{Base: o, Workers: 3, NewSink: newSink})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(sinks) != len(gammas) {
		t.Fatalf("sinks created %d, want %d", len(sinks), len(gammas))
	}
	for _, r := range res {
		s := sinks[r.Gamma]
		if len(s.Iterations) != r.Iterations || len(s.Works) != 1 || s.Works[0].Gamma != r.Gamma || !s.Closed {
			t.Fatalf("gamma %v: rows %d iterations %d works %+v", r.Gamma, len(s.Iterations), r.Iterations, s.Works)
		}
	}
}

func TestOscillationShrinksStepFactor(t *testing.T) {
	ctx := context.Background()
	e, err := Prepare(ctx, 0.1, demoData(t), nil, testOptions(recorder.NewMemorySink()))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := e.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if e.st.LambdaMod == 0 {
		t.Fatalf("lambdas did not move")
	}

	// lambdamod 比上一次大：視為震盪
	sf := e.st.StepFactor
	e.st.LambdaMod = 0
	if err := e.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !(e.st.DeltaLambdaMod > 0) {
		t.Fatalf("deltalambdamod %v, want > 0", e.st.DeltaLambdaMod)
	}
	if want := sf / e.method.StepFactorScaling; e.st.StepFactor != want {
		t.Fatalf("stepfactor %v, want %v", e.st.StepFactor, want)
	}

	// lambdamod 變小：步長不變
	sf = e.st.StepFactor
	e.st.LambdaMod = 1e300
	if err := e.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if e.st.StepFactor != sf {
		t.Fatalf("stepfactor changed without oscillation: %v -> %v", sf, e.st.StepFactor)
	}
}

type failingStore struct {
	*checkpoint.MemoryStore
}

func (failingStore) Save(context.Context, *checkpoint.Record) error {
	return errs.NewWarn("disk full").WithKind(errs.KindIO)
}

func TestCheckpointSaveFailureDoesNotStopRun(t *testing.T) {
	var buf bytes.Buffer
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Method.MaxIters = 30
	o.Run.RestartInterval = 5
	o.Store = failingStore{checkpoint.NewMemoryStore()}
	o.Log = slog.New(slog.NewTextHandler(&buf, nil))
	res, err := Run(context.Background(), 0.1, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusConverged && res.Status != StatusMaxIters {
		t.Fatalf("status %v", res.Status)
	}
	if res.Iterations <= o.Run.RestartInterval || len(sink.Restarts) < 2 {
		t.Fatalf("run stopped early: iterations %d restarts %d", res.Iterations, len(sink.Restarts))
	}
	if n := strings.Count(buf.String(), "checkpoint.failed"); n != len(sink.Restarts) {
		t.Fatalf("checkpoint.failed logged %d times, restarts %d", n, len(sink.Restarts))
	}
}

func TestDeltaLambdaModDecays(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Method.MaxIters = 200
	if _, err := Run(context.Background(), 0.1, demoData(t), nil, o); err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := sink.Iterations[1:]
	if len(rows) < 20 {
		t.Fatalf("only %d rows", len(rows))
	}
	q := len(rows) / 4
	meanAbs := func(rs []recorder.Row) float64 {
		sum := 0.0
		for _, r := range rs {
			sum += math.Abs(r.DeltaLambdaMod)
		}
		return sum / float64(len(rs))
	}
	head, tail := meanAbs(rows[:q]), meanAbs(rows[len(rows)-q:])
	if !(tail < head) {
		t.Fatalf("|deltalambdamod| did not decay: head %v tail %v", head, tail)
	}
}

func TestMaxItersStatus(t *testing.T) {
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Method.MaxIters = 5
	o.Method.Tolerance = 1e-15
	res, err := Run(context.Background(), 0.1, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusMaxIters || res.Iterations != 5 {
		t.Fatalf("status %v after %d iterations", res.Status, res.Iterations)
	}
	if last := sink.Restarts[len(sink.Restarts)-1]; last.Iter != 5 {
		t.Fatalf("final restart row at %d", last.Iter)
	}
}

func TestSampledRowsMatchTheirCoefficients(t *testing.T) {
	ctx := context.Background()
	sink := recorder.NewMemorySink()
	o := testOptions(sink)
	o.Method.DoReweight = false
	o.Method.DoParams = true
	o.Method.DoMCSampl = true
	o.Method.ParamMaxIters = 10
	o.Method.MaxIters = 15
	o.Method.RadouBc, o.Method.RadouBh = 0.1, 5
	e, err := Prepare(ctx, 0.01, demoData(t), nil, o)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	res, err := e.Loop(ctx)
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if res.MCProposed == 0 {
		t.Fatalf("sampler never ran")
	}
	p := e.Problem()
	moved := false
	for _, r := range sink.Iterations {
		if r.Bc != o.Method.RadouBc || r.Bh != o.Method.RadouBh {
			moved = true
		}
		lnpi, err := forward.ProtectionFactor(p.Data.Contacts, p.Data.HBonds, r.Bc, r.Bh)
		if err != nil {
			t.Fatalf("lnpi: %v", err)
		}
		ave, err := forward.AverageProtection(res.Weights, lnpi)
		if err != nil {
			t.Fatalf("ave: %v", err)
		}
		ev, err := p.Target.Evaluate(ave)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if math.Abs(ev.MSE-r.MSE) > 1e-12 || math.Abs(ev.MeanDev-r.MeanDev) > 1e-12 {
			t.Fatalf("iteration %d: row mse %v / dev %v, coefficients give %v / %v", r.Iter, r.MSE, r.MeanDev, ev.MSE, ev.MeanDev)
		}
	}
	if !moved {
		t.Fatalf("coefficients never changed")
	}
}
