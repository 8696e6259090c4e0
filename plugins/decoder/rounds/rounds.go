// Package rounds 按轮次标签解析四轮输出：定位最后一个精修轮标签，只在其后取围栏内容。
// 与按位置取最后围栏段的 fenced 解码器互为备选，由配置选择。
package rounds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subtrans/pkg/contract"
	"subtrans/plugins/decoder/fenced"
)

// Options: 轮次解码器选项。
type Options struct {
	// RefinedLabels: 精修轮的标签候选，任一命中即可；为空时用默认值。
	RefinedLabels []string `json:"refined_labels"`
	// AllowUnfenced: 精修轮没有围栏时，取标签后的整段文本。默认 false。
	AllowUnfenced bool `json:"allow_unfenced"`
}

// DefaultRefinedLabels 覆盖内置英文模板与常见中文四轮模板的写法。
var DefaultRefinedLabels = []string{"[Refined]", "【精修】", "【提升】"}

// Round 是一轮带标签的输出片段。
type Round struct {
	Label string
	Body  string
}

type decoder struct {
	labels   []string
	unfenced bool
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("rounds options: %w", err)
		}
	}
	labels := make([]string, 0, len(opts.RefinedLabels))
	for _, l := range opts.RefinedLabels {
		if strings.TrimSpace(l) != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		labels = DefaultRefinedLabels
	}
	return &decoder{labels: labels, unfenced: opts.AllowUnfenced}, nil
}

func (d *decoder) Decode(ctx context.Context, raw contract.Raw) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	r, ok := Refined(raw.Text, d.labels)
	if !ok {
		return "", &contract.NoTranslationFoundError{}
	}
	if strings.Contains(r.Body, contract.Fence) {
		return First(r.Body)
	}
	if d.unfenced {
		if v := strings.TrimSpace(r.Body); v != "" {
			return v, nil
		}
	}
	return "", &contract.NoTranslationFoundError{}
}

// Refined 返回最后一个精修标签之后的片段。
func Refined(s string, labels []string) (Round, bool) {
	at, label := -1, ""
	for _, l := range labels {
		if i := strings.LastIndex(s, l); i > at {
			at, label = i, l
		}
	}
	if at < 0 {
		return Round{}, false
	}
	return Round{Label: label, Body: s[at+len(label):]}, true
}

// First 取 body 中第一个完整围栏块的内容；未闭合的围栏取到结尾。
func First(body string) (string, error) {
	parts := strings.Split(body, contract.Fence)
	// parts[0] 为围栏前的说明文字，奇数下标为围栏内
	for i := 1; i < len(parts); i += 2 {
		if v := strings.TrimSpace(fenced.StripInfo(parts[i])); v != "" {
			return v, nil
		}
	}
	return "", &contract.NoTranslationFoundError{}
}
