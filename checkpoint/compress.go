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

package checkpoint

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zintix-labs/hdxlab/errs"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encOnce  sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	codecErr error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	encOnce.Do(func() {
		enc, codecErr = zstd.NewWriter(nil)
		if codecErr != nil {
			return
		}
		dec, codecErr = zstd.NewReader(nil)
	})
	return enc, dec, codecErr
}

// Compress 以 zstd 壓縮
func Compress(b []byte) ([]byte, error) {
	e, _, err := codec()
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: create zstd writer")
	}
	return e.EncodeAll(b, make([]byte, 0, len(b)/4)), nil
}

// Decompress 解壓縮；沒有 zstd 標頭的資料視為未壓縮直接回傳。
func Decompress(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, zstdMagic) {
		return b, nil
	}
	_, d, err := codec()
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: create zstd reader")
	}
	out, err := d.DecodeAll(b, nil)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindSchema, "checkpoint: corrupt zstd payload")
	}
	return out, nil
}
