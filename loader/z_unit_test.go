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

package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/spec"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeFolder 寫入一個資料夾：residue 3, 5, 7，每個 residue frames 個值。
func writeFolder(t *testing.T, dir string, frames int, offset float64) {
	t.Helper()
	for _, id := range []int{3, 5, 7} {
		var c, h strings.Builder
		for f := 0; f < frames; f++ {
			fmt.Fprintf(&c, "%g\n", float64(id)+offset+float64(f))
			fmt.Fprintf(&h, "%d\n", f%2)
		}
		write(t, filepath.Join(dir, fmt.Sprintf("Contacts_chain_0_res_%d.tmp", id)), c.String())
		write(t, filepath.Join(dir, fmt.Sprintf("Hbonds_chain_0_res_%d.tmp", id)), h.String())
	}
	write(t, filepath.Join(dir, "Contacts_README"), "ignored: no residue id\n")
}

func TestLoadConcatenatesFolders(t *testing.T) {
	root := t.TempDir()
	a, b := filepath.Join(root, "a"), filepath.Join(root, "b")
	for _, d := range []string{a, b} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	writeFolder(t, a, 3, 0)
	writeFolder(t, b, 2, 100)
	kint := filepath.Join(root, "kint.dat")
	write(t, kint, "# resid kint\n3 0.5\n5 -1\n7 2.0\n")
	expt := filepath.Join(root, "expt.dat")
	write(t, expt, "2 5 0.1 0.4\n5 7 0.3 0.9\n")

	rs := spec.DefaultRunSetting()
	rs.DataFolders = []string{a, b}
	rs.KintFile = kint
	rs.ExpFile = expt
	rs.Times = []float64{1, 10}

	d, err := Load(&rs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, n, s, tt := d.Dims()
	if r != 3 || n != 5 || s != 2 || tt != 2 {
		t.Fatalf("dims got %d %d %d %d", r, n, s, tt)
	}
	if d.ResIDs[0] != 3 || d.ResIDs[2] != 7 {
		t.Fatalf("residues not sorted: %v", d.ResIDs)
	}
	if d.Contacts.At(1, 2) != 7 || d.Contacts.At(1, 3) != 105 {
		t.Fatalf("frames not concatenated: %v %v", d.Contacts.At(1, 2), d.Contacts.At(1, 3))
	}
	if d.MinusKT.At(2, 1) != -20 || d.MinusKT.At(1, 0) != 0 {
		t.Fatalf("minus kt wrong")
	}
	// residue 5 has a negative rate ⇒ excluded; segment (2,5] keeps residue 3, (5,7] keeps 7
	if d.Filter.Has(0, 1, 0) || !d.Filter.Has(0, 0, 0) || !d.Filter.Has(1, 2, 1) {
		t.Fatalf("filter membership wrong")
	}
	if d.Filter.Count() != 4 {
		t.Fatalf("datapoints got %d want 4", d.Filter.Count())
	}
}

func TestLoadErrors(t *testing.T) {
	rs := spec.DefaultRunSetting()
	if _, err := Load(&rs); !errs.IsKind(err, errs.KindConfig) {
		t.Fatalf("missing inputs should be a config error, got %v", err)
	}

	root := t.TempDir()
	writeFolder(t, root, 2, 0)
	if err := os.Remove(filepath.Join(root, "Hbonds_chain_0_res_7.tmp")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, _, err := ReadContactsHbonds([]string{root}, "Contacts_", "Hbonds_"); !errs.IsKind(err, errs.KindData) {
		t.Fatalf("mismatched residue sets should be a data error, got %v", err)
	}

	expt := filepath.Join(root, "expt.dat")
	write(t, expt, "1 4 0.1\n")
	if _, _, err := ReadExpt(expt, 2); err == nil {
		t.Fatalf("short experimental row must fail")
	}
	if _, err := ReadKint(filepath.Join(root, "missing.dat")); !errs.IsKind(err, errs.KindIO) {
		t.Fatalf("missing file should be an io error, got %v", err)
	}
}

func TestReadWeights(t *testing.T) {
	p := filepath.Join(t.TempDir(), "w.dat")
	write(t, p, "0.1\n0.2 0.3\n# comment\n\n0.4\n")
	w, err := ReadWeights(p)
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	if len(w) != 4 || w[3] != 0.4 {
		t.Fatalf("weights got %v", w)
	}
}
