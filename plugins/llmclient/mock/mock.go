package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subtrans/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 译文前缀，默认 "MOCK"
	// APIKey: 仅用于限流分组（调试用），默认使用内置常量，不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode: 可选的响应模式（用于集成测试与无网络联调）。
	//  - "" / "rounds": 四轮输出，最终轮为围栏块，每条译文为 Prefix + ": " + 原文（与 fenced/rounds 解码器即插即用）。
	//  - "echo": 仅一个围栏块，原样回显目标分组。
	//  - "merge_lines": 把目标分组合并为一行，用于触发段数不一致。
	//  - "no_fence": 不带围栏的纯文本，用于触发找不到译文。
	//  - "prompt": 回显 Prompt 摘要。
	ResponseMode string `json:"response_mode,omitempty"`
}

type Client struct {
	prefix string
	mode   string
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	if o.APIKey == "" {
		o.APIKey = "MOCK_DEBUG_KEY"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	switch mode {
	case "":
		mode = "rounds"
	case "rounds", "echo", "merge_lines", "no_fence", "prompt":
	default:
		return nil, fmt.Errorf("mock: unknown response_mode %q: %w", o.ResponseMode, contract.ErrInvalidInput)
	}
	return &Client{prefix: o.Prefix, mode: mode}, nil
}

// Prefixed 为分组中每一段加上前缀，保持分隔符数量不变。
func Prefixed(prefix, chunk string) string {
	segs := strings.Split(chunk, contract.Delimiter)
	for i, s := range segs {
		segs[i] = prefix + ": " + s
	}
	return strings.Join(segs, contract.Delimiter)
}

func (c *Client) Invoke(ctx context.Context, t contract.Tagged, p contract.Prompt) (contract.Raw, error) {
	select {
	case <-ctx.Done():
		return contract.Raw{}, ctx.Err()
	default:
	}
	switch c.mode {
	case "rounds":
		out := Prefixed(c.prefix, t.Chunk)
		var sb strings.Builder
		sb.Grow(3*len(t.Chunk) + len(out) + 128)
		sb.WriteString("[Literal]\n")
		sb.WriteString(t.Chunk)
		sb.WriteString("\n\n[Idiomatic]\n")
		sb.WriteString(t.Chunk)
		sb.WriteString("\n\n[Critique]\n- ok\n\n[Refined]\n")
		sb.WriteString(contract.Fence + "\n" + out + "\n" + contract.Fence)
		return contract.Raw{Text: sb.String()}, nil
	case "echo":
		return contract.Raw{Text: contract.Fence + "\n" + t.Chunk + "\n" + contract.Fence}, nil
	case "merge_lines":
		merged := strings.ReplaceAll(t.Chunk, contract.Delimiter, " ")
		return contract.Raw{Text: contract.Fence + "\n" + c.prefix + ": " + merged + "\n" + contract.Fence}, nil
	case "no_fence":
		return contract.Raw{Text: c.prefix + ": " + t.Chunk}, nil
	}

	// 兜底：回显 Prompt 摘要
	switch v := p.(type) {
	case contract.TextPrompt:
		return contract.Raw{Text: fmt.Sprintf("%s(text): %s", c.prefix, string(v))}, nil
	case contract.ChatPrompt:
		if len(v) == 0 {
			return contract.Raw{Text: fmt.Sprintf("%s(chat): <empty>", c.prefix)}, nil
		}
		// 取最后一条消息内容
		last := v[len(v)-1]
		return contract.Raw{Text: fmt.Sprintf("%s(chat:%s): %s", c.prefix, last.Role, last.Content)}, nil
	default:
		return contract.Raw{Text: fmt.Sprintf("%s(unknown prompt type)", c.prefix)}, nil
	}
}

var _ contract.LLMClient = (*Client)(nil)
