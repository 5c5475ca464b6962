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

package main

import (
	"fmt"
	"os"

	"github.com/zintix-labs/hdxlab/errs"
	"github.com/zintix-labs/hdxlab/sdk/perf"
)

// makefile runner
func main() {
	bindVar()
	if err := perf.RunPProf(execute, cfg.pprofmode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// 設定錯誤 2，其餘 1
func exitCode(err error) int {
	if errs.IsKind(err, errs.KindConfig) {
		return 2
	}
	return 1
}
