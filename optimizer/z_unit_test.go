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

package optimizer

import (
	"math"
	"testing"

	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"github.com/zintix-labs/hdxlab/sdk/forward"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/mat"
)

func newProblem(t *testing.T) *ensemble.Problem {
	t.Helper()
	resIDs := []int{1, 2, 3, 4}
	segs := [][2]int{{0, 2}, {2, 4}}
	filter, err := grid.MaskFromSegments(resIDs, segs, 3, nil)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	times := []float64{0.1, 1, 10}
	kint := []float64{0.5, 1.5, 0.2, 3}
	mkt := mat.NewDense(4, 3, nil)
	for r, k := range kint {
		for j, tt := range times {
			mkt.Set(r, j, -k*tt)
		}
	}
	d := &ensemble.Dataset{
		ResIDs:   resIDs,
		Contacts: mat.NewDense(4, 5, []float64{2, 4, 6, 3, 5, 1, 0, 2, 1, 3, 8, 9, 7, 6, 10, 0, 1, 0, 2, 1}),
		HBonds:   mat.NewDense(4, 5, []float64{1, 0, 1, 1, 0, 0, 0, 1, 0, 0, 1, 1, 1, 1, 1, 0, 0, 0, 1, 0}),
		MinusKT:  mkt,
		ExpDfrac: mat.NewDense(2, 3, []float64{0.2, 0.6, 0.9, 0.05, 0.3, 0.7}),
		Filter:   filter,
		Times:    times,
		Segments: segs,
	}
	p, err := ensemble.NewProblem(d)
	if err != nil {
		t.Fatalf("problem: %v", err)
	}
	return p
}

func evaluate(t *testing.T, p *ensemble.Problem, st *ensemble.State) *forward.Evaluation {
	t.Helper()
	lnpi, err := forward.ProtectionFactor(p.Data.Contacts, p.Data.HBonds, st.Bc, st.Bh)
	if err != nil {
		t.Fatalf("lnpi: %v", err)
	}
	ave, err := forward.AverageProtection(st.Weights, lnpi)
	if err != nil {
		t.Fatalf("ave: %v", err)
	}
	if !st.SigmaSet {
		st.SigmaLnpi, st.AveSigmaLnpi, _ = forward.ProtectionSpread(st.Weights, lnpi)
		st.SigmaSet = true
	}
	ev, err := p.Target.Evaluate(ave)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	st.MSE = ev.MSE
	return ev
}

func setup(t *testing.T, mutate func(m *spec.MethodSetting)) (*ensemble.Problem, *spec.MethodSetting, *ensemble.State) {
	t.Helper()
	p := newProblem(t)
	m := spec.DefaultMethodSetting()
	m.ParamMaxIters = 50
	mutate(&m)
	if err := m.Init(); err != nil {
		t.Fatalf("method: %v", err)
	}
	st, err := ensemble.NewState(p, &m, p.Data.InitialWeights())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	st.Iter = 1
	return p, &m, st
}

func TestMinimizeNeverWorsens(t *testing.T) {
	p, m, st := setup(t, func(m *spec.MethodSetting) { m.DoMCMin = true })
	ev := evaluate(t, p, st)
	start := st.MSE
	s, err := NewSampler(p, m, 1e-2, core.NewWithSeed(11))
	if err != nil {
		t.Fatalf("sampler: %v", err)
	}
	out, err := s.Sample(st, ev)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if out.MSE > start {
		t.Fatalf("minimisation worsened mse %v -> %v", start, out.MSE)
	}
	if st.Bc < 0 || st.Bh < 0 || st.Bc != out.Bc || st.Bh != out.Bh {
		t.Fatalf("coefficients invalid: state %v/%v outcome %v/%v", st.Bc, st.Bh, out.Bc, out.Bh)
	}
	// 採用的係數必須重現回報的 MSE
	if got := evaluate(t, p, st).MSE; math.Abs(got-out.MSE) > 1e-12 {
		t.Fatalf("adopted coefficients give mse %v, reported %v", got, out.MSE)
	}
	if out.UpdatedLambdas {
		t.Fatalf("minimisation must not touch lambdas")
	}
}

func TestSamplingDeterministicAndNonNegative(t *testing.T) {
	run := func() (float64, float64, int) {
		p, m, st := setup(t, func(m *spec.MethodSetting) {
			m.DoMCSampl = true
			m.DoReweight = false
			m.ParamStepFactor = 2 // 大步長，經常提議負值
		})
		s, _ := NewSampler(p, m, 1e-2, core.NewWithSeed(5))
		acc := 0
		for i := 0; i < 5; i++ {
			ev := evaluate(t, p, st)
			out, err := s.Sample(st, ev)
			if err != nil {
				t.Fatalf("sample: %v", err)
			}
			if st.Bc < 0 || st.Bh < 0 {
				t.Fatalf("negative coefficient bc=%v bh=%v", st.Bc, st.Bh)
			}
			if out.Accepted > out.Steps {
				t.Fatalf("accepted %d > steps %d", out.Accepted, out.Steps)
			}
			acc += out.Accepted
			st.Iter++
		}
		return st.Bc, st.Bh, acc
	}
	bc1, bh1, a1 := run()
	bc2, bh2, a2 := run()
	if bc1 != bc2 || bh1 != bh2 || a1 != a2 {
		t.Fatalf("same seed produced different chains")
	}
}

func TestCoupledSamplingUpdatesChannels(t *testing.T) {
	p, m, st := setup(t, func(m *spec.MethodSetting) { m.DoMCSampl = true })
	if !m.Coupled() {
		t.Fatalf("expected coupled mode")
	}
	ev := evaluate(t, p, st)
	s, _ := NewSampler(p, m, 0.5, core.NewWithSeed(9))
	out, err := s.Sample(st, ev)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !out.UpdatedLambdas {
		t.Fatalf("coupled sampling should update lambdas")
	}
	if out.Rate < 0 || out.Rate > 1 {
		t.Fatalf("rate out of range %v", out.Rate)
	}
	want := CombineChannels(st.FinalLambdaH, st.FinalLambdaC, st.Bh, st.Bc)
	for i := range want {
		if math.Abs(want[i]-st.FinalLambda[i]) > 1e-12 {
			t.Fatalf("final lambda %d got %v want %v", i, st.FinalLambda[i], want[i])
		}
		if math.Abs(st.FinalLambdaC[i]-0.5*st.AveLambdaC[i]) > 1e-12 {
			t.Fatalf("final channel lambda must be gamma-scaled")
		}
	}
	if len(st.MCResFracsAve) != p.Target.Shape().Len() {
		t.Fatalf("residue fraction average has wrong length")
	}
}

func TestSmoothingAndHelpers(t *testing.T) {
	s := &Sampler{method: &spec.MethodSetting{MCEquilSteps: 4}}
	if got := s.smoothing(5); math.Abs(got-4.0/6.0) > 1e-12 {
		t.Fatalf("smoothing got %v", got)
	}
	s.method.MCEquilSteps = -1
	if s.smoothing(100) != 1 {
		t.Fatalf("no equilibration means rate 1")
	}

	if ClampRate(math.Inf(1)) != 0 || ClampRate(math.NaN()) != 0 || ClampRate(3) != 1 || ClampRate(0.25) != 0.25 {
		t.Fatalf("clamp wrong")
	}
	got := CombineChannels([]float64{4}, []float64{3}, 2, 0)
	if got[0] != 2 {
		t.Fatalf("zero bc should drop the contacts channel, got %v", got)
	}
	got = CombineChannels([]float64{4}, []float64{3}, 2, 1.5)
	if math.Abs(got[0]-2) > 1e-12 {
		t.Fatalf("combine got %v want 2", got)
	}

	a := newAccumulator(1, 2, true)
	a.add(1, 2, 0.1, []float64{0.5, math.NaN()}, []float64{1})
	a.add(3, 4, 0.3, []float64{0.7, 0.1}, []float64{3})
	ave := a.average(2)
	if ave.bc != 2 || ave.bh != 3 || math.Abs(ave.mse-0.2) > 1e-12 {
		t.Fatalf("averages wrong: %+v", ave)
	}
	if ave.lambdasC[0] != 5 || ave.lambdasH[0] != 7 {
		t.Fatalf("channel averages wrong: %v %v", ave.lambdasC, ave.lambdasH)
	}
	if math.Abs(ave.resfracs[0]-0.6) > 1e-12 || !math.IsNaN(ave.resfracs[1]) {
		t.Fatalf("resfracs average wrong: %v", ave.resfracs)
	}
}

func TestNewSamplerRequiresMode(t *testing.T) {
	m := spec.DefaultMethodSetting()
	m.DoParams = false
	if _, err := NewSampler(nil, &m, 1, core.NewWithSeed(1)); err == nil {
		t.Fatalf("sampler without params mode must fail")
	}
}
