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

// Package errs 定義 hdxlab 統一的錯誤型別。
//
// 每個錯誤帶有兩個維度：
//   - ErrLevel：嚴重度（Fatal 需立即中止、Warn 可回報後繼續、Log 僅記錄）。
//   - Kind：錯誤類別，讓上層（CLI / HTTP 邊界）能夠分辨「設定缺漏」「checkpoint 結構不符」等情境。
package errs

import (
	"errors"
	"fmt"
)

// ErrLevel : Error 分級，使最上層理解問題嚴重程度
type ErrLevel uint8

const (
	None ErrLevel = iota
	Fatal
	Warn
	Log
)

var errLvMap = map[ErrLevel]string{
	None:  "",
	Fatal: "fatal",
	Warn:  "warn",
	Log:   "log",
}

func ErrLv(errlv ErrLevel) string {
	if str, ok := errLvMap[errlv]; ok {
		return str
	}
	return ""
}

// Kind 錯誤類別
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig       // 必要設定缺漏或數值不合法（ConfigurationError）
	KindSchema       // restart checkpoint 結構/版本不符
	KindData         // 輸入資料（contacts/hbonds/kint/expt/run object）形狀或內容錯誤
	KindIO           // 檔案、資料庫讀寫失敗
	KindNumeric      // 數值退化；只用於回報，運算路徑本身不會丟出
)

var kindMap = map[Kind]string{
	KindUnknown: "",
	KindConfig:  "config",
	KindSchema:  "schema",
	KindData:    "data",
	KindIO:      "io",
	KindNumeric: "numeric",
}

func (k Kind) String() string {
	return kindMap[k]
}

// E 是統一的錯誤型別。
// Message 為主訊息；Extra 為呼叫端可追加的額外上下文；
// Cause 可串接下層錯誤（wrap）；ErrLv 為嚴重度；Kind 為錯誤類別。
type E struct {
	Message string
	Extra   string
	Cause   error
	ErrLv   ErrLevel
	Kind    Kind
}

// Error 實作 error 介面並回傳格式化後的錯誤訊息。
func (e *E) Error() string {
	base := fmt.Sprintf("errlv=%s", ErrLv(e.ErrLv))
	if e.Kind != KindUnknown {
		base += " kind=" + e.Kind.String()
	}
	base += " " + e.Message
	if e.Extra != "" {
		base += " | extra: " + e.Extra
	}
	if e.Cause != nil {
		base += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return base
}

// Unwrap 讓 errors.Is / errors.As 能夠向下展開。
func (e *E) Unwrap() error { return e.Cause }

func New(errLv ErrLevel, msg string) *E {
	return &E{Message: msg, ErrLv: errLv}
}

func NewFatal(msg string) *E {
	return &E{Message: msg, ErrLv: Fatal}
}

func NewWarn(msg string) *E {
	return &E{Message: msg, ErrLv: Warn}
}

func Fatalf(format string, a ...any) *E {
	return NewFatal(fmt.Sprintf(format, a...))
}

func Warnf(format string, a ...any) *E {
	return NewWarn(fmt.Sprintf(format, a...))
}

// Configf 建立致命的設定錯誤（ConfigurationError）。
func Configf(format string, a ...any) *E {
	return &E{Message: fmt.Sprintf(format, a...), ErrLv: Fatal, Kind: KindConfig}
}

// Schemaf 建立致命的 checkpoint 結構錯誤。
func Schemaf(format string, a ...any) *E {
	return &E{Message: fmt.Sprintf(format, a...), ErrLv: Fatal, Kind: KindSchema}
}

// Dataf 建立致命的輸入資料錯誤。
func Dataf(format string, a ...any) *E {
	return &E{Message: fmt.Sprintf(format, a...), ErrLv: Fatal, Kind: KindData}
}

// WithKind 設定錯誤類別並回傳自身，方便串接。
func (e *E) WithKind(k Kind) *E {
	e.Kind = k
	return e
}

// Wrap 使用給定訊息包裝底層錯誤。
//
// ErrLevel / Kind 規則：
//   - 若 cause 已經是 *E，則沿用其 ErrLv 與 Kind（保持原本嚴重度與類別）。
//   - 若 cause 不是本包定義的 *E（多半是標準庫或三方依賴錯誤），ErrLv 一律視為 Fatal。
func Wrap(cause error, msg string) *E {
	var e *E
	r := New(Fatal, msg)
	if errors.As(cause, &e) {
		r.ErrLv = e.ErrLv
		r.Kind = e.Kind
	}
	r.Cause = cause
	return r
}

// WrapKind 與 Wrap 相同，但強制指定 Kind（例如把 os/sql 的錯誤標成 KindIO）。
func WrapKind(cause error, k Kind, msg string) *E {
	r := Wrap(cause, msg)
	r.Kind = k
	return r
}

func AsErr(err error) (*E, bool) {
	var e *E
	if errors.As(err, &e) {
		return e, true
	}
	return e, false
}

// IsKind 回報錯誤鏈上是否存在指定類別的 *E。
func IsKind(err error, k Kind) bool {
	for err != nil {
		var e *E
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsFatal 回報錯誤是否為致命等級；非本包錯誤一律視為致命。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := AsErr(err); ok {
		return e.ErrLv == Fatal
	}
	return true
}
