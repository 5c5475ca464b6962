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
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zintix-labs/hdxlab/errs"
	"gonum.org/v1/gonum/mat"
)

var residueRe = regexp.MustCompile(`res_(-?\d+)`)

// ReadContactsHbonds 讀入所有資料夾的 contacts 與 hbonds，回傳排序後的 residue id 與兩個 R×N 矩陣。
func ReadContactsHbonds(folders []string, contactsPrefix, hbondsPrefix string) ([]int, *mat.Dense, *mat.Dense, error) {
	cIDs, cRows, err := readChannel(folders, contactsPrefix)
	if err != nil {
		return nil, nil, nil, err
	}
	hIDs, hRows, err := readChannel(folders, hbondsPrefix)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(cIDs) != len(hIDs) {
		return nil, nil, nil, errs.Dataf("loader: %d contacts residues but %d hbonds residues", len(cIDs), len(hIDs))
	}
	for i := range cIDs {
		if cIDs[i] != hIDs[i] {
			return nil, nil, nil, errs.Dataf("loader: residue sets differ (contacts %d, hbonds %d)", cIDs[i], hIDs[i])
		}
	}
	contacts, err := toDense(cRows, cIDs, "contacts")
	if err != nil {
		return nil, nil, nil, err
	}
	hbonds, err := toDense(hRows, hIDs, "hbonds")
	if err != nil {
		return nil, nil, nil, err
	}
	_, cn := contacts.Dims()
	_, hn := hbonds.Dims()
	if cn != hn {
		return nil, nil, nil, errs.Dataf("loader: contacts have %d frames, hbonds %d", cn, hn)
	}
	return cIDs, contacts, hbonds, nil
}

// readChannel 讀入單一 channel；每個資料夾的 residue 集合必須相同。
func readChannel(folders []string, prefix string) ([]int, map[int][]float64, error) {
	rows := map[int][]float64{}
	var ids []int
	for fi, folder := range folders {
		paths, err := filepath.Glob(filepath.Join(folder, prefix+"*"))
		if err != nil {
			return nil, nil, errs.WrapKind(err, errs.KindConfig, "loader: bad file pattern")
		}
		if len(paths) == 0 {
			return nil, nil, errs.Dataf("loader: no %s* files in %s", prefix, folder)
		}
		seen := map[int]bool{}
		for _, p := range paths {
			id, ok := residueID(filepath.Base(p))
			if !ok {
				continue
			}
			if seen[id] {
				return nil, nil, errs.Dataf("loader: residue %d appears twice in %s", id, folder)
			}
			seen[id] = true
			vals, err := readColumn(p)
			if err != nil {
				return nil, nil, err
			}
			if fi > 0 {
				if _, ok := rows[id]; !ok {
					return nil, nil, errs.Dataf("loader: residue %d in %s is missing from %s", id, folder, folders[0])
				}
			}
			rows[id] = append(rows[id], vals...)
		}
		if fi == 0 {
			for id := range seen {
				ids = append(ids, id)
			}
		} else if len(seen) != len(ids) {
			return nil, nil, errs.Dataf("loader: %s has %d %s residues, %s has %d", folder, len(seen), prefix, folders[0], len(ids))
		}
	}
	if len(ids) == 0 {
		return nil, nil, errs.Dataf("loader: no %s residue files carry res_<id>", prefix)
	}
	sort.Ints(ids)
	return ids, rows, nil
}

func residueID(name string) (int, bool) {
	m := residueRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	return id, err == nil
}

func toDense(rows map[int][]float64, ids []int, name string) (*mat.Dense, error) {
	n := len(rows[ids[0]])
	if n == 0 {
		return nil, errs.Dataf("loader: %s residue %d has no frames", name, ids[0])
	}
	out := mat.NewDense(len(ids), n, nil)
	for r, id := range ids {
		row := rows[id]
		if len(row) != n {
			return nil, errs.Dataf("loader: %s residue %d has %d frames, want %d", name, id, len(row), n)
		}
		out.SetRow(r, row)
	}
	return out, nil
}

// readColumn 讀入一個每行（或以空白分隔）皆為數值的檔案。
func readColumn(path string) ([]float64, error) {
	var out []float64
	err := scanFile(path, func(line int, fields []string) error {
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return errs.Dataf("loader: %s:%d: %q is not a number", path, line, f)
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// ReadKint 讀入 `resid kint` 表。
func ReadKint(path string) (map[int]float64, error) {
	out := map[int]float64{}
	err := scanFile(path, func(line int, fields []string) error {
		if len(fields) < 2 {
			return errs.Dataf("loader: %s:%d: want `resid kint`", path, line)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return errs.Dataf("loader: %s:%d: bad residue id %q", path, line, fields[0])
		}
		k, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return errs.Dataf("loader: %s:%d: bad rate %q", path, line, fields[1])
		}
		out[id] = k
		return nil
	})
	return out, err
}

// ReadExpt 讀入實驗表，回傳 segment 邊界與 S×T 的 deuterated fraction。
func ReadExpt(path string, ntimes int) ([][2]int, *mat.Dense, error) {
	var segs [][2]int
	var data []float64
	err := scanFile(path, func(line int, fields []string) error {
		if len(fields) != 2+ntimes {
			return errs.Dataf("loader: %s:%d: want start end and %d fractions, got %d fields", path, line, ntimes, len(fields))
		}
		start, err1 := strconv.Atoi(fields[0])
		end, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return errs.Dataf("loader: %s:%d: bad segment bounds", path, line)
		}
		segs = append(segs, [2]int{start, end})
		for _, f := range fields[2:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return errs.Dataf("loader: %s:%d: %q is not a number", path, line, f)
			}
			data = append(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(segs) == 0 {
		return nil, nil, errs.Dataf("loader: %s has no segments", path)
	}
	return segs, mat.NewDense(len(segs), ntimes, data), nil
}

// ReadWeights 讀入初始 frame 權重。
func ReadWeights(path string) ([]float64, error) {
	w, err := readColumn(path)
	if err != nil {
		return nil, err
	}
	if len(w) == 0 {
		return nil, errs.Dataf("loader: %s has no weights", path)
	}
	return w, nil
}

func scanFile(path string, fn func(line int, fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "loader: open "+path)
	}
	defer f.Close()
	return scan(f, fn)
}

func scan(r io.Reader, fn func(line int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := fn(n, strings.Fields(text)); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errs.WrapKind(err, errs.KindIO, "loader: read failed")
	}
	return nil
}
