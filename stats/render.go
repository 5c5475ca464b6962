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

package stats

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// Render 定義報告的輸出行為
type Render[T any] interface {
	Write(w io.Writer, r *T) error
}

// Json渲染
type JsonRender[T any] struct{}

func (JsonRender[T]) Write(w io.Writer, r *T) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// YAML渲染
type YAMLRender[T any] struct{}

func (YAMLRender[T]) Write(w io.Writer, r *T) error {
	// 不管欄位，只要是陣列（YAML Sequence），就維持外層預設展開；
	// 只有「最內層的一維陣列」或「本身就是一維陣列」時才輸出成 flow style：[..., ...]
	return forceReadableList(w, r)
}

// RenderByName 依名稱（json / yaml）取得渲染器
func RenderByName[T any](name string) (Render[T], bool) {
	switch name {
	case "json":
		return JsonRender[T]{}, true
	case "yaml", "yml":
		return YAMLRender[T]{}, true
	default:
		return nil, false
	}
}

// YAML 內層方法
func forceReadableList[T any](w io.Writer, t *T) error {
	var node yaml.Node
	if err := node.Encode(t); err != nil {
		return err
	}
	styleReadableSequences(&node)

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(&node)
}

// styleReadableSequences 把最內層的一維 sequence 設為 flow style，外層維度維持展開。
func styleReadableSequences(n *yaml.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case yaml.DocumentNode, yaml.MappingNode:
		for _, c := range n.Content {
			styleReadableSequences(c)
		}
	case yaml.SequenceNode:
		hasChildSeq := false
		for _, c := range n.Content {
			if c != nil && c.Kind == yaml.SequenceNode {
				hasChildSeq = true
				break
			}
		}
		for _, c := range n.Content {
			styleReadableSequences(c)
		}
		if !hasChildSeq {
			n.Style = yaml.FlowStyle
		}
	}
}
