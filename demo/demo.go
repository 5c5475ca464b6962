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

// Package demo 產生決定性的合成 ensemble，供 CLI 示範、HTTP 示範與測試使用。
//
// 合成方式：先以亂數產生每個 residue 的 contacts / hbonds 與內稟交換速率，
// 再以一組偏向後段 frame 的「真實」權重經前向模型算出實驗值。
// 因此以等權重起始的重加權一定有可以改善的空間。
package demo

import (
	"math"

	"github.com/zintix-labs/hdxlab/demo/demo_configs"
	"github.com/zintix-labs/hdxlab/ensemble"
	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/core"
	"github.com/zintix-labs/hdxlab/sdk/forward"
	"github.com/zintix-labs/hdxlab/sdk/grid"
	"github.com/zintix-labs/hdxlab/spec"
	"gonum.org/v1/gonum/mat"
)

// Options 合成資料的大小
type Options struct {
	Residues int       `json:"residues"`
	Frames   int       `json:"frames"`
	Segments int       `json:"segments"`
	Times    []float64 `json:"times"`
	Seed     int64     `json:"seed"`
	Noise    float64   `json:"noise"` // 實驗值上的均勻雜訊幅度
	Bc       float64   `json:"bc"`    // 產生實驗值時使用的係數
	Bh       float64   `json:"bh"`
}

func DefaultOptions() Options {
	return Options{
		Residues: 24,
		Frames:   60,
		Segments: 6,
		Times:    []float64{0.167, 1.0, 10.0, 120.0},
		Seed:     20251018,
		Noise:    0.01,
		Bc:       0.35,
		Bh:       2.0,
	}
}

func (o *Options) valid() error {
	if o.Residues < 2 || o.Frames < 2 || o.Segments < 1 || len(o.Times) == 0 {
		return errs.Configf("demo: need residues>=2 frames>=2 segments>=1 and times, got %d/%d/%d/%d",
			o.Residues, o.Frames, o.Segments, len(o.Times))
	}
	if o.Segments > o.Residues {
		return errs.Configf("demo: %d segments for %d residues", o.Segments, o.Residues)
	}
	return nil
}

// Generate 產生合成資料；同一組 Options 永遠得到相同結果。
func Generate(o Options) (*ensemble.Dataset, error) {
	if err := o.valid(); err != nil {
		return nil, err
	}
	c := core.NewWithSeed(o.Seed)
	R, N, T := o.Residues, o.Frames, len(o.Times)

	resIDs := make([]int, R)
	contacts := mat.NewDense(R, N, nil)
	hbonds := mat.NewDense(R, N, nil)
	mkt := mat.NewDense(R, T, nil)
	for r := 0; r < R; r++ {
		resIDs[r] = r + 1
		base := c.Uniform(1, 12)
		pHB := c.Float64()
		kint := math.Pow(10, c.Uniform(-1, 1.5))
		for n := 0; n < N; n++ {
			// 後段 frame 的 contacts 逐漸增加，使真實權重與等權重有明顯差異
			drift := 3 * float64(n) / float64(N)
			contacts.Set(r, n, math.Max(0, base+drift+c.Uniform(-2, 2)))
			if c.Float64() < pHB {
				hbonds.Set(r, n, 1)
			}
		}
		for j, t := range o.Times {
			mkt.Set(r, j, -kint*t)
		}
	}

	// segment i 覆蓋 (bounds[i], bounds[i+1]]
	segments := make([][2]int, o.Segments)
	width := R / o.Segments
	for i := range segments {
		start := i * width
		end := start + width
		if i == o.Segments-1 {
			end = R
		}
		segments[i] = [2]int{start, end}
	}
	filter, err := grid.MaskFromSegments(resIDs, segments, T, nil)
	if err != nil {
		return nil, err
	}

	truth := make([]float64, N)
	for n := range truth {
		truth[n] = math.Exp(2 * float64(n) / float64(N))
	}
	exp, err := predict(contacts, hbonds, mkt, filter, truth, o.Bc, o.Bh)
	if err != nil {
		return nil, err
	}
	if o.Noise > 0 {
		rows, cols := exp.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				v := exp.At(i, j)
				if math.IsNaN(v) {
					continue
				}
				exp.Set(i, j, math.Min(1, math.Max(0, v+c.Uniform(-o.Noise, o.Noise))))
			}
		}
	}

	d := &ensemble.Dataset{
		ResIDs:   resIDs,
		Contacts: contacts,
		HBonds:   hbonds,
		MinusKT:  mkt,
		ExpDfrac: exp,
		Filter:   filter,
		Times:    append([]float64(nil), o.Times...),
		Segments: segments,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// predict 以指定權重經前向模型算出 segment 層級的 deuterated fraction。
func predict(contacts, hbonds, mkt *mat.Dense, filter *grid.Mask, weights []float64, bc, bh float64) (*mat.Dense, error) {
	lnpi, err := forward.ProtectionFactor(contacts, hbonds, bc, bh)
	if err != nil {
		return nil, err
	}
	w, err := forward.FrameWeights(weights, make([]float64, len(weights)))
	if err != nil {
		return nil, err
	}
	ave, err := forward.AverageProtection(w, lnpi)
	if err != nil {
		return nil, err
	}
	// 實驗值矩陣此時尚未產生，先以 0 佔位
	segs, times := filter.Shape().Segs, filter.Shape().Times
	tg, err := forward.NewTarget(mkt, mat.NewDense(segs, times, nil), filter)
	if err != nil {
		return nil, err
	}
	ev, err := tg.Evaluate(ave)
	if err != nil {
		return nil, err
	}
	return ev.SegmentD, nil
}

// Config 回傳內嵌的示範設定
func Config() (*spec.Config, error) {
	b, err := demo_configs.FS.ReadFile("demo.yaml")
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "demo: read embedded config")
	}
	return spec.GetConfigByYAML(b)
}
