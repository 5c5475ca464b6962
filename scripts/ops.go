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
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// 開發用任務：go run ./scripts <task>
//
//	test         go test ./... -cover -count=1，只顯示 ok / FAIL
//	test-detail  go test ./... -v -count=1，略過 [no test files]
//	demo         以內嵌示範資料跑一次 run
//	sweep        以內嵌示範資料跑 gamma sweep
//	profile      同 demo，另外寫出 cpu profile
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts [test|test-detail|demo|sweep|profile]")
		os.Exit(1)
	}
	if err := selectTask(os.Args[1]); err != nil {
		printColor(colorRed, err.Error())
		os.Exit(1)
	}
}

func selectTask(task string) error {
	switch task {
	case "test":
		printColor(colorGreen, "running tests")
		return filtered([]string{"test", "./...", "-cover", "-count=1"}, func(line string) string {
			switch {
			case strings.HasPrefix(line, "ok"):
				return colorGreen
			case strings.HasPrefix(line, "FAIL"), strings.Contains(line, "build failed"), strings.Contains(line, "setup failed"):
				return colorRed
			}
			return ""
		})
	case "test-detail":
		printColor(colorGreen, "running tests (detail)")
		return filtered([]string{"test", "./...", "-v", "-count=1"}, func(line string) string {
			if strings.Contains(line, "[no test files]") {
				return ""
			}
			return colorDefault
		})
	case "demo":
		return goRun("run", "./cmd/run", "-demo", "-out", "build/demo/")
	case "sweep":
		return goRun("run", "./cmd/run", "-demo", "-gammas", "1e-3,1e-2,1e-1,1", "-workers", "4", "-out", "build/sweep/")
	case "profile":
		return goRun("run", "./cmd/run", "-demo", "-q", "-p", "cpu", "-out", "build/demo/")
	default:
		return fmt.Errorf("unknown task: %s", task)
	}
}

func goRun(args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// filtered 執行 go 子命令，逐行交給 pick 決定顏色；回傳空字串的行不顯示。
func filtered(args []string, pick func(line string) string) error {
	if err := exec.Command("go", "clean", "-testcache").Run(); err != nil {
		printColor(colorYellow, err.Error())
	}

	cmd := exec.Command("go", args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	// 編譯錯誤在 stderr
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return err
	}
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		line := sc.Text()
		if c := pick(line); c != "" {
			printColor(c, line)
		}
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("tests finished with errors: %w", err)
	}
	return nil
}

// ANSI 顏色代碼；colorDefault 只是個非空標記，輸出時不加色碼
const (
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorRed     = "\033[31m"
	colorDefault = "\033[0m"
	colorReset   = "\033[0m"
)

func printColor(color, msg string) {
	fmt.Printf("%s%s%s\n", color, msg, colorReset)
}
