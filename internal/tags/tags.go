// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tags classifies a paper by domain, method, task, and dataset.
package tags

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-digest/internal/llm"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// ErrNoJSON reports a reply without any JSON object in it.
var ErrNoJSON = errors.New("no JSON object in tag response")

var tagPromptTmpl = template.Must(template.New("tags").Parse(`分析以下論文，生成結構化分類標籤，**只回覆 JSON，不要任何其他文字**：

標題：{{.Title}}
摘要：{{.Abstract}}

請回覆以下格式：
{
  "domain": [],
  "method": [],
  "task": [],
  "dataset": [],
  "open_source": false
}

說明：
- domain: 研究領域，從以下選擇（可多選）：NLP、CV、RL、Multimodal、Audio、Robotics、Theory、Graph、Medical、Code、Other
- method: 主要使用的方法/技術（例如：Transformer、Diffusion、RLHF、RAG、LoRA、Mamba、SSM、GNN）
- task: 應用任務（例如：Text Generation、Image Classification、Object Detection、QA、Summarization）
- dataset: 論文中使用或提出的資料集名稱，沒有則填空陣列
- open_source: 論文是否提及公開 code、model 或 dataset（true/false）
`))

const maxTokens = 512

// Generate asks backend to classify the paper and normalizes the reply.
// On error the returned Tags are empty, never nil-listed.
func Generate(ctx context.Context, backend llm.Completer, title, abstract string, maxRetries int) (types.Tags, error) {
	var buf bytes.Buffer
	if err := tagPromptTmpl.Execute(&buf, struct{ Title, Abstract string }{title, abstract}); err != nil {
		return types.EmptyTags(), fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := llm.CompleteWithRetry(ctx, backend, llm.Request{
		Prompt:    buf.String(),
		MaxTokens: maxTokens,
	}, maxRetries)
	if err != nil {
		return types.EmptyTags(), err
	}
	return Parse(reply)
}

// Parse extracts the first {...} span of reply and normalizes it: a string
// becomes a one-element list, anything else that is not a list of strings
// becomes an empty list, and open_source accepts booleans or "true"/"yes".
func Parse(reply string) (types.Tags, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return types.EmptyTags(), ErrNoJSON
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return types.EmptyTags(), fmt.Errorf("decoding tags: %w", err)
	}

	return types.Tags{
		Domain:     stringList(raw["domain"]),
		Method:     stringList(raw["method"]),
		Task:       stringList(raw["task"]),
		Dataset:    stringList(raw["dataset"]),
		OpenSource: truthy(raw["open_source"]),
	}, nil
}

func stringList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		seen := make(map[string]bool, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			return true
		}
	}
	return false
}
