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

package middleware

import (
	"bufio"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") ||
		r.Header.Get("Upgrade") != ""
}

func isNoBodyStatus(code int) bool {
	// 204 No Content, 304 Not Modified, 1xx Informational
	return (code >= 100 && code < 200) || code == http.StatusNoContent || code == http.StatusNotModified
}

// CompressConfig 壓縮設定
type CompressConfig struct {
	GzipLevel int
	ZstdLevel zstd.EncoderLevel
	// SkipTypes 本身已壓縮的內容型別（例如 checkpoint 下載），不再壓縮
	SkipTypes []string
}

var DefaultCompressConfig = CompressConfig{
	GzipLevel: gzip.DefaultCompression,
	ZstdLevel: zstd.SpeedFastest,
	SkipTypes: []string{"application/zstd", "application/gzip", "application/octet-stream"},
}

// Compression 以預設設定壓縮回應（zstd 優先，其次 gzip）
var Compression = NewCompression(DefaultCompressConfig)

type compressor struct {
	cfg      CompressConfig
	gzipPool sync.Pool
	zstdPool sync.Pool
}

// NewCompression 建立壓縮 middleware。是否壓縮在第一次寫入標頭時決定。
func NewCompression(cfg CompressConfig) func(http.Handler) http.Handler {
	c := &compressor{cfg: cfg}
	return c.middleware
}

func (c *compressor) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		enc := pickEncoding(r.Header.Get("Accept-Encoding"))
		if enc == "" {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressResponseWriter{ResponseWriter: w, c: c, encoding: enc}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}

func pickEncoding(accept string) string {
	switch {
	case strings.Contains(accept, "zstd"):
		return "zstd"
	case strings.Contains(accept, "gzip"):
		return "gzip"
	default:
		return ""
	}
}

func (c *compressor) skip(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return slices.Contains(c.cfg.SkipTypes, mt)
}

func (c *compressor) getZstd(w io.Writer) *zstd.Encoder {
	if v := c.zstdPool.Get(); v != nil {
		zw := v.(*zstd.Encoder)
		zw.Reset(w)
		return zw
	}
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(c.cfg.ZstdLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic(err)
	}
	return zw
}

func (c *compressor) getGzip(w io.Writer) *gzip.Writer {
	if v := c.gzipPool.Get(); v != nil {
		gw := v.(*gzip.Writer)
		gw.Reset(w)
		return gw
	}
	gw, err := gzip.NewWriterLevel(w, c.cfg.GzipLevel)
	if err != nil {
		gw = gzip.NewWriter(w)
	}
	return gw
}

// --- ResponseWriter Wrapper ---

type compressResponseWriter struct {
	http.ResponseWriter
	c        *compressor
	encoding string
	decided  bool
	zw       *zstd.Encoder
	gw       *gzip.Writer
}

// decide 在標頭送出前決定是否壓縮
func (cw *compressResponseWriter) decide(code int) {
	if cw.decided {
		return
	}
	cw.decided = true
	h := cw.Header()
	if isNoBodyStatus(code) || h.Get("Content-Encoding") != "" || cw.c.skip(h.Get("Content-Type")) {
		return
	}
	h.Del("Content-Length")
	h.Set("Content-Encoding", cw.encoding)
	h.Add("Vary", "Accept-Encoding")
	if cw.encoding == "zstd" {
		cw.zw = cw.c.getZstd(cw.ResponseWriter)
	} else {
		cw.gw = cw.c.getGzip(cw.ResponseWriter)
	}
}

func (cw *compressResponseWriter) WriteHeader(code int) {
	cw.decide(code)
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressResponseWriter) Write(b []byte) (int, error) {
	if !cw.decided {
		if cw.Header().Get("Content-Type") == "" {
			cw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		cw.decide(http.StatusOK)
	}
	switch {
	case cw.zw != nil:
		return cw.zw.Write(b)
	case cw.gw != nil:
		return cw.gw.Write(b)
	default:
		return cw.ResponseWriter.Write(b)
	}
}

func (cw *compressResponseWriter) Flush() {
	switch {
	case cw.zw != nil:
		_ = cw.zw.Flush()
	case cw.gw != nil:
		_ = cw.gw.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// close 寫出壓縮尾端並把 encoder 歸還 pool
func (cw *compressResponseWriter) close() {
	if cw.zw != nil {
		_ = cw.zw.Close()
		cw.c.zstdPool.Put(cw.zw)
		cw.zw = nil
	}
	if cw.gw != nil {
		_ = cw.gw.Close()
		cw.c.gzipPool.Put(cw.gw)
		cw.gw = nil
	}
}

func (cw *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying response writer does not support Hijacker")
	}
	return hj.Hijack()
}
