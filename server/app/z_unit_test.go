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

package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeComp struct {
	stop     chan struct{}
	runErr   error
	shutdown atomic.Int32
}

func newFake(runErr error) *fakeComp {
	return &fakeComp{stop: make(chan struct{}), runErr: runErr}
}

func (f *fakeComp) Run() error {
	if f.runErr != nil {
		return f.runErr
	}
	<-f.stop
	return nil
}

func (f *fakeComp) Shutdown(context.Context) error {
	if f.shutdown.Add(1) == 1 && f.runErr == nil {
		close(f.stop)
	}
	return nil
}

func TestRunContextStopsOnCancel(t *testing.T) {
	f := newFake(nil)
	a := NewWith(f)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.RunContext(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.shutdown.Load() != 1 {
		t.Fatalf("shutdown called %d times", f.shutdown.Load())
	}
}

func TestRunContextReturnsComponentError(t *testing.T) {
	boom := errors.New("boom")
	healthy, broken := newFake(nil), newFake(boom)
	err := NewWith(healthy, broken).RunContext(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("want component error, got %v", err)
	}
	if healthy.shutdown.Load() != 1 {
		t.Fatalf("healthy component not shut down")
	}
}

func TestRunWithoutComponents(t *testing.T) {
	if err := New().Run(); err == nil {
		t.Fatalf("empty app should fail")
	}
}
