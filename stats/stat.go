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
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/zintix-labs/hdxlab"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"
)

var lang language.Tag = language.English

// RunReport 單一 gamma 的 run 報告
type RunReport struct {
	Summary *SummaryReport `json:"Summary"`
	Fit     *FitReport     `json:"Fit"`
	Weights *WeightReport  `json:"Weights"`
	MC      *MCReport      `json:"MC,omitempty"`
	elapsed time.Duration
}

type SummaryReport struct {
	RunID      string  `json:"RunID"`
	Gamma      float64 `json:"Gamma"`
	Status     string  `json:"Status"`
	Iterations int     `json:"Iterations"`
	Seed       int64   `json:"Seed"`
	Elapsed    float64 `json:"ElapsedSec"`
}

// FitReport 與實驗值的吻合程度
type FitReport struct {
	MSE           float64  `json:"MSE"`
	RMSE          float64  `json:"RMSE"`
	MeanDeviation float64  `json:"MeanDeviation"`
	NDatapoints   int      `json:"NDatapoints"`
	RefVar        float64  `json:"RefVar"`
	Chi2          *float64 `json:"Chi2,omitempty"` // refVar 或資料點數不合法時省略
	PValue        *float64 `json:"PValue,omitempty"`
	Bc            float64  `json:"Bc"`
	Bh            float64  `json:"Bh"`
	Work          float64  `json:"Work"` // kJ/mol
}

// WeightReport 重加權後的 frame 權重分布
type WeightReport struct {
	Frames      int       `json:"Frames"`
	ESS         float64   `json:"ESS"` // 1/Σw²
	ESSFraction float64   `json:"ESSFraction"`
	MaxWeight   float64   `json:"MaxWeight"`
	RatioP10    float64   `json:"RatioP10"` // N·w 的分位數
	RatioP50    float64   `json:"RatioP50"`
	RatioP90    float64   `json:"RatioP90"`
	Bucket      []string  `json:"Bucket"`
	Collect     []int     `json:"Collect"`
	Dist        []float64 `json:"Dist"`
}

// MCReport 係數取樣的接受率（Clopper–Pearson 95% CI）
type MCReport struct {
	Accepted   int     `json:"Accepted"`
	Proposed   int     `json:"Proposed"`
	AcceptRate float64 `json:"AcceptRate"`
	AcceptCI   CI      `json:"AcceptCI"`
}

// NewRunReport 由 Result 建立報告；refVar 為 χ² 使用的參考變異數（mc_refvar）。
func NewRunReport(res *hdxlab.Result, refVar float64) *RunReport {
	r := &RunReport{
		Summary: &SummaryReport{
			RunID:      res.RunID,
			Gamma:      res.Gamma,
			Status:     res.Status.String(),
			Iterations: res.Iterations,
			Seed:       res.Seed,
			Elapsed:    res.Elapsed.Seconds(),
		},
		Fit: &FitReport{
			MSE:           res.MSE,
			RMSE:          math.Sqrt(res.MSE),
			MeanDeviation: res.MeanDeviation,
			NDatapoints:   res.NDatapoints,
			RefVar:        refVar,
			Bc:            res.Bc,
			Bh:            res.Bh,
			Work:          res.Work,
		},
		Weights: newWeightReport(res.Weights),
		elapsed: res.Elapsed,
	}
	if chi2, p := chiSquare(res.MSE, res.NDatapoints, refVar); !math.IsNaN(p) {
		r.Fit.Chi2, r.Fit.PValue = &chi2, &p
	}
	if res.MCProposed > 0 {
		rate, ci := proportionCICP(res.MCAccepted, res.MCProposed, 0.95)
		r.MC = &MCReport{Accepted: res.MCAccepted, Proposed: res.MCProposed, AcceptRate: rate, AcceptCI: ci}
	}
	return r
}

func newWeightReport(w []float64) *WeightReport {
	n := len(w)
	wr := &WeightReport{Frames: n, Bucket: Buckets.Names()}
	wr.Collect = Buckets.Count(w)
	wr.Dist = make([]float64, len(wr.Collect))
	if n == 0 {
		return wr
	}
	for i, c := range wr.Collect {
		wr.Dist[i] = float64(c) / float64(n)
	}
	wr.ESS = effectiveSize(w)
	wr.ESSFraction = wr.ESS / float64(n)
	wr.MaxWeight = floats.Max(w)
	q := ratioQuantiles(w, 0.1, 0.5, 0.9)
	wr.RatioP10, wr.RatioP50, wr.RatioP90 = q[0], q[1], q[2]
	return wr
}

func (r *RunReport) WriteWith(w io.Writer, rep Render[RunReport]) error {
	return rep.Write(w, r)
}

// StdOut 印出摘要表格
func (r *RunReport) StdOut() {
	formatDuration(r.elapsed, r.Summary.Iterations)
	fmt.Println(r.Table())
}

// Table 回傳摘要表格字串
func (r *RunReport) Table() string {
	p := message.NewPrinter(lang)
	s, f, wr := r.Summary, r.Fit, r.Weights
	basic := map[string]string{
		"Run ID":       s.RunID,
		"Gamma":        p.Sprintf("%.3e", s.Gamma),
		"Status":       s.Status,
		"Iterations":   p.Sprintf("%d", s.Iterations),
		"Seed":         fmt.Sprintf("%d", s.Seed),
		"MSE":          p.Sprintf("%.5e", f.MSE),
		"Mean Dev":     p.Sprintf("%.5e", f.MeanDeviation),
		"Datapoints":   p.Sprintf("%d", f.NDatapoints),
		"Chi2 p-value": fmtOptional(p, "%.4f", f.PValue),
		"Bc / Bh":      p.Sprintf("%.4f / %.4f", f.Bc, f.Bh),
		"Work":         p.Sprintf("%.5e kJ/mol", f.Work),
		"ESS":          p.Sprintf("%.1f (%.2f %%)", wr.ESS, 100*wr.ESSFraction),
		"Max Weight":   p.Sprintf("%.4f", wr.MaxWeight),
	}
	keys := []string{"Run ID", "Gamma", "Status", "Iterations", "Seed", "MSE", "Mean Dev", "Datapoints", "Chi2 p-value", "Bc / Bh", "Work", "ESS", "Max Weight"}
	if r.MC != nil {
		basic["MC Accept"] = p.Sprintf("%.2f %% [%.2f%%,%.2f%%]", 100*r.MC.AcceptRate, 100*r.MC.AcceptCI.Lo, 100*r.MC.AcceptCI.Hi)
		keys = append(keys, "MC Accept")
	}
	return fmtTable("HDX Reweighting", keys, basic)
}

// ============================================================
// ** 內部方法 **
// ============================================================

func fmtOptional(p *message.Printer, format string, v *float64) string {
	if v == nil {
		return "n/a"
	}
	return p.Sprintf(format, *v)
}

func formatDuration(d time.Duration, iters int) {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	ips := int(float64(iters) / sec)
	if sec < 60.0 {
		p.Printf("used: %.2f seconds\nips : %d iters/sec\n", sec, ips)
		return
	}
	s := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		p.Printf("used: %dm %ds\nips : %d iters/sec\n", m, s, ips)
		return
	}
	p.Printf("used: %dh:%dm:%ds\nips : %d iters/sec\n", h, m, s, ips)
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := 0
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)
	left := max((totalInner-titleW)/2, 0)
	right := max(totalInner-titleW-left, 0)

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider
	return fmtStr
}

// fmtGrid 以欄為單位對齊的多列表格
func fmtGrid(head []string, rows [][]string) string {
	width := make([]int, len(head))
	for i, h := range head {
		width[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if w := runewidth.StringWidth(c); w > width[i] {
				width[i] = w
			}
		}
	}
	var sb strings.Builder
	divider := "+"
	for _, w := range width {
		divider += strings.Repeat("-", w+2) + "+"
	}
	divider += "\n"
	line := func(cells []string) {
		sb.WriteString("|")
		for i, c := range cells {
			sb.WriteString(" " + runewidth.FillRight(c, width[i]) + " |")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(divider)
	line(head)
	sb.WriteString(divider)
	for _, row := range rows {
		line(row)
	}
	sb.WriteString(divider)
	return sb.String()
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}
