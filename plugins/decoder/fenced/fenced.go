package fenced

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"subtrans/pkg/contract"
)

// Options: 围栏解码器选项。
type Options struct {
	// KeepInfoString: 保留紧贴开围栏的语言标记（如 ```text）。默认剥离。
	KeepInfoString bool `json:"keep_info_string"`
}

type decoder struct {
	keepInfo bool
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("fenced options: %w", err)
		}
	}
	return &decoder{keepInfo: opts.KeepInfoString}, nil
}

// Decode 按围栏标记切分原始输出，丢弃空白段，取最后一段作为译文。
// 没有任何围栏或没有非空段时返回 *contract.NoTranslationFoundError，不回退为原文。
func (d *decoder) Decode(ctx context.Context, raw contract.Raw) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return Last(raw.Text, !d.keepInfo)
}

var infoRe = regexp.MustCompile(`^[A-Za-z0-9_+-]+\r?\n`)

// Last 返回 s 中最后一个非空围栏段（已去首尾空白）。
// 偶数下标为围栏外文字，奇数下标为开围栏之后的内容；语言标记只在后者剥离。
func Last(s string, stripInfo bool) (string, error) {
	if !strings.Contains(s, contract.Fence) {
		return "", &contract.NoTranslationFoundError{}
	}
	parts := strings.Split(s, contract.Fence)
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if stripInfo && i%2 == 1 {
			p = StripInfo(p)
		}
		if v := strings.TrimSpace(p); v != "" {
			return v, nil
		}
	}
	return "", &contract.NoTranslationFoundError{}
}

// StripInfo 去掉围栏内容首行的语言标记；剥离后无剩余内容时原样返回（```Bonjour\n``` 中首行即译文）。
func StripInfo(body string) string {
	loc := infoRe.FindStringIndex(body)
	if loc == nil || strings.TrimSpace(body[loc[1]:]) == "" {
		return body
	}
	return body[loc[1]:]
}
