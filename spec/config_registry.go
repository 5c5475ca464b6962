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

package spec

import (
	"bytes"
	"encoding/json"

	"github.com/zintix-labs/hdxlab/errs"
	"gopkg.in/yaml.v3"
)

// Config 是設定檔的頂層結構。
type Config struct {
	Method MethodSetting `yaml:"method" json:"method"`
	Run    RunSetting    `yaml:"run"    json:"run"`
}

// DefaultConfig 回傳全部欄位皆為預設值的設定。
func DefaultConfig() *Config {
	return &Config{Method: DefaultMethodSetting(), Run: DefaultRunSetting()}
}

func (c *Config) init() error {
	if err := c.Method.Init(); err != nil {
		return err
	}
	return c.Run.Valid()
}

// GetConfigByYAML 解析 YAML 設定；未出現的欄位保留預設值，未知欄位直接報錯。
func GetConfigByYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 嚴格檢查：多寫/拼錯欄位就報錯
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.WrapKind(err, errs.KindConfig, "failed to decode yaml config")
	}

	// 設定檔初始化
	if err := cfg.init(); err != nil {
		return nil, errs.Wrap(err, "config initialized err")
	}
	return cfg, nil
}

// GetConfigByJSON 解析 JSON 設定，規則與 YAML 相同。
func GetConfigByJSON(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.WrapKind(err, errs.KindConfig, "can not decode json config")
	}

	if err := cfg.init(); err != nil {
		return nil, errs.Wrap(err, "config initialized err")
	}
	return cfg, nil
}

// DecodeMethodOverrides 將一段 YAML/JSON（JSON 是 YAML 的子集）疊加到 base 上。
//
// HTTP API 以這種方式只覆寫部分方法參數。
func DecodeMethodOverrides(base MethodSetting, data []byte) (MethodSetting, error) {
	out := base
	if len(bytes.TrimSpace(data)) == 0 {
		err := out.Init()
		return out, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return base, errs.WrapKind(err, errs.KindConfig, "spec: decode method overrides failed")
	}
	if err := out.Init(); err != nil {
		return base, err
	}
	return out, nil
}
