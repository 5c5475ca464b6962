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

package stats

import (
	"fmt"
	"io"

	"github.com/zintix-labs/hdxlab"
	"golang.org/x/text/message"
)

// SweepReport 多個 gamma 的比較
type SweepReport struct {
	Runs []*RunReport `json:"Runs"`
	// Knee 是 (work, MSE) 曲線的轉折點 gamma；少於三個 run 時為 0
	Knee      float64 `json:"Knee"`
	KneeIndex int     `json:"KneeIndex"`
}

// NewSweepReport 建立報告；results 應已依 gamma 排序。
func NewSweepReport(results []*hdxlab.Result, refVar float64) *SweepReport {
	sr := &SweepReport{Runs: make([]*RunReport, len(results)), KneeIndex: -1}
	work := make([]float64, len(results))
	mse := make([]float64, len(results))
	for i, res := range results {
		sr.Runs[i] = NewRunReport(res, refVar)
		work[i], mse[i] = res.Work, res.MSE
	}
	if k := knee(work, mse); k >= 0 {
		sr.KneeIndex = k
		sr.Knee = results[k].Gamma
	}
	return sr
}

func (s *SweepReport) WriteWith(w io.Writer, rep Render[SweepReport]) error {
	return rep.Write(w, s)
}

func (s *SweepReport) StdOut() {
	fmt.Println(s.Table())
}

// Table 每個 gamma 一列
func (s *SweepReport) Table() string {
	p := message.NewPrinter(lang)
	head := []string{"gamma", "status", "iters", "MSE", "p-value", "work", "ESS %", ""}
	rows := make([][]string, len(s.Runs))
	for i, r := range s.Runs {
		mark := ""
		if i == s.KneeIndex {
			mark = "knee"
		}
		rows[i] = []string{
			p.Sprintf("%.3e", r.Summary.Gamma),
			r.Summary.Status,
			p.Sprintf("%d", r.Summary.Iterations),
			p.Sprintf("%.5e", r.Fit.MSE),
			fmtOptional(p, "%.4f", r.Fit.PValue),
			p.Sprintf("%.5e", r.Fit.Work),
			p.Sprintf("%.2f", 100*r.Weights.ESSFraction),
			mark,
		}
	}
	return fmtGrid(head, rows)
}
