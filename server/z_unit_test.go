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

package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/zintix-labs/hdxlab"
	"github.com/zintix-labs/hdxlab/checkpoint"
	"github.com/zintix-labs/hdxlab/demo"
	"github.com/zintix-labs/hdxlab/server"
	v1 "github.com/zintix-labs/hdxlab/server/api/v1"
	"github.com/zintix-labs/hdxlab/server/httperr"
	"github.com/zintix-labs/hdxlab/server/svrcfg"
)

func smallDemo() demo.Options {
	o := demo.DefaultOptions()
	o.Residues, o.Frames, o.Segments = 8, 12, 2
	o.Times = []float64{1, 10}
	return o
}

func newServer(t *testing.T, store checkpoint.Store) *httptest.Server {
	t.Helper()
	svr, err := server.Build(&svrcfg.SvrCfg{Store: store, MaxIters: 500})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ts := httptest.NewServer(svr.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("status %d request id %q", resp.StatusCode, resp.Header.Get("X-Request-Id"))
	}
	var h v1.HealthResponse
	decode(t, resp, &h)
	if h.Status != "ok" || h.CheckpointVer != checkpoint.CurrentVersion {
		t.Fatalf("health %+v", h)
	}
}

func TestDefaults(t *testing.T) {
	ts := newServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/defaults")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var cfg struct {
		Method map[string]any `json:"method"`
	}
	decode(t, resp, &cfg)
	if cfg.Method["do_reweight"] != true || cfg.Method["tolerance"] != 1e-10 {
		t.Fatalf("defaults %+v", cfg.Method)
	}
}

func TestDemoRunAndCheckpoints(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ts := newServer(t, store)
	o := smallDemo()
	resp := post(t, ts.URL+"/v1/demo", v1.DemoRequest{
		Gamma:   0.05,
		Options: &o,
		Method:  json.RawMessage(`{"maxiters": 30, "param_every": 5}`),
		Trace:   10,
	})
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	var out v1.RunResponse
	decode(t, resp, &out)
	res := out.Result
	if res == nil || !res.Status.Terminal() || res.Status == hdxlab.StatusFailed {
		t.Fatalf("result %+v", res)
	}
	if res.Gamma != 0.05 || res.Iterations > 30 || len(out.Trace) == 0 || len(out.Trace) > 2*10 {
		t.Fatalf("gamma %v iterations %d trace %d", res.Gamma, res.Iterations, len(out.Trace))
	}
	if out.Report == nil || out.Report.Summary.RunID != res.RunID {
		t.Fatalf("report missing")
	}
	if got := resp.Header.Get("X-Run-Id"); got != res.RunID {
		t.Fatalf("X-Run-Id = %q, want %q", got, res.RunID)
	}

	lresp, err := http.Get(ts.URL + "/v1/checkpoints")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer lresp.Body.Close()
	var list []checkpoint.Entry
	decode(t, lresp, &list)
	if len(list) != 1 || list[0].RunID != res.RunID || list[0].Iter != res.Iterations {
		t.Fatalf("list %+v", list)
	}

	gresp, err := http.Get(ts.URL + "/v1/checkpoints/" + res.RunID)
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	defer gresp.Body.Close()
	if gresp.Header.Get("Content-Type") != "application/zstd" || gresp.Header.Get("Content-Encoding") != "" {
		t.Fatalf("checkpoint headers %v", gresp.Header)
	}
	z, _ := io.ReadAll(gresp.Body)
	raw, err := checkpoint.Decompress(z)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if _, err := checkpoint.Decode(raw); err != nil {
		t.Fatalf("downloaded checkpoint does not decode: %v", err)
	}

	rresp := post(t, ts.URL+"/v1/checkpoints/"+res.RunID+"/resume", struct{}{})
	if rresp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(rresp.Body)
		t.Fatalf("resume status %d: %s", rresp.StatusCode, b)
	}
	var resumed v1.RunResponse
	decode(t, rresp, &resumed)
	if resumed.Result.RunID != res.RunID || resumed.Result.Iterations <= res.Iterations {
		t.Fatalf("resume did not continue: %d -> %d", res.Iterations, resumed.Result.Iterations)
	}
}

func TestRunWithDataset(t *testing.T) {
	ts := newServer(t, nil)
	d, err := demo.Generate(smallDemo())
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	seed := int64(11)
	resp := post(t, ts.URL+"/v1/run", v1.RunRequest{
		Gamma:   0.1,
		Dataset: d.ToJSON(),
		Method:  json.RawMessage(`{"do_params": false, "maxiters": 20}`),
		Seed:    &seed,
	})
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	var out v1.RunResponse
	decode(t, resp, &out)
	if out.Result.Seed != seed || out.Result.MCProposed != 0 {
		t.Fatalf("result %+v", out.Result)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newServer(t, nil)
	d, err := demo.Generate(smallDemo())
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	broken := d.ToJSON()
	broken.Contacts = broken.Contacts[:1]
	o := smallDemo()

	cases := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown field", "/v1/demo", map[string]any{"gama": 1}, http.StatusBadRequest},
		{"bad method", "/v1/demo", v1.DemoRequest{Options: &o, Method: json.RawMessage(`{"do_mcmin": true, "do_mcsampl": true}`)}, http.StatusBadRequest},
		{"over limit", "/v1/demo", v1.DemoRequest{Options: &o, Method: json.RawMessage(`{"maxiters": 100000}`)}, http.StatusBadRequest},
		{"missing dataset", "/v1/run", v1.RunRequest{Gamma: 0.1}, http.StatusBadRequest},
		{"bad dataset", "/v1/run", v1.RunRequest{Gamma: 0.1, Dataset: broken}, http.StatusUnprocessableEntity},
		{"no store", "/v1/checkpoints/x/resume", struct{}{}, http.StatusNotFound},
	}
	for _, c := range cases {
		resp := post(t, ts.URL+c.path, c.body)
		if resp.StatusCode != c.status {
			b, _ := io.ReadAll(resp.Body)
			t.Fatalf("%s: status %d want %d (%s)", c.name, resp.StatusCode, c.status, b)
		}
		var body httperr.Body
		decode(t, resp, &body)
		if body.Error == "" {
			t.Fatalf("%s: empty error body", c.name)
		}
	}
}

func TestGzipResponse(t *testing.T) {
	ts := newServer(t, nil)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/defaults", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("encoding %q", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	var cfg map[string]any
	if err := json.NewDecoder(zr).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := cfg["method"]; !ok {
		t.Fatalf("body %v", cfg)
	}
}
