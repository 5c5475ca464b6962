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

// Package logger 組裝 slog.Logger：依模式建立 handler，並提供把任何 handler 變成非阻塞的 AsyncHandler。
//
// 兩種注入方式：
//   - 直接傳入 *slog.Logger：NewDefaultLogger(mode) 或自行組裝。
//   - 傳入 slog.Handler：NewLogger(h)，可與 JSON/Text handler、ReplaceAttr、LevelVar 組合。
//
// 重加權迴圈本身只依賴 *slog.Logger；nil 代表完全靜默。
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/zintix-labs/hdxlab/errs"
)

// enum LogMode
type LogMode uint8

const (
	ModeDev LogMode = iota
	ModeProd
	ModeSilence
)

// ParseMode 解析 dev / prod / silence（不分大小寫）
func ParseMode(s string) (LogMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev":
		return ModeDev, nil
	case "prod":
		return ModeProd, nil
	case "silence", "silent", "off":
		return ModeSilence, nil
	default:
		return ModeDev, errs.Configf("logger: unknown log mode %q", s)
	}
}

func NewDefaultLogger(mode LogMode) *slog.Logger {
	return slog.New(buildHandler(mode, nil))
}

// NewDefaultAsyncLogger 回傳依模式預設組裝的非同步 Logger
func NewDefaultAsyncLogger(mode LogMode) *slog.Logger {
	return slog.New(NewAsyncHandler(buildHandler(mode, nil), 8192))
}

// NewLevelLogger 與 NewDefaultLogger 相同，但層級由 lv 控制（可在執行期調整）。
func NewLevelLogger(mode LogMode, lv *slog.LevelVar) *slog.Logger {
	return slog.New(buildHandler(mode, lv))
}

func NewLogger(h slog.Handler) *slog.Logger {
	if h == nil {
		h = buildHandler(ModeDev, nil)
	}
	return slog.New(h)
}

// NewAsync 依模式建立 handler 並包成 AsyncHandler；呼叫端負責在結束時 Close。
func NewAsync(buf int, mode LogMode) (*slog.Logger, *AsyncHandler) {
	ah := NewAsyncHandler(buildHandler(mode, nil), buf)
	return slog.New(ah), ah
}

// ForRun 回傳帶有 run_id 與 gamma 屬性的子 Logger
func ForRun(log *slog.Logger, runID string, gamma float64) *slog.Logger {
	if log == nil {
		return nil
	}
	return log.With(slog.String("run_id", runID), slog.Float64("gamma", gamma))
}

func buildHandler(mode LogMode, lv *slog.LevelVar) slog.Handler {
	level := func(def slog.Level) slog.Leveler {
		if lv != nil {
			return lv
		}
		return def
	}
	switch mode {
	case ModeProd:
		// JSON + stdout
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level(slog.LevelInfo)})
	case ModeSilence:
		return slog.DiscardHandler
	default:
		return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level(slog.LevelDebug)})
	}
}
