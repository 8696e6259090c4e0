package contract

import (
	"context"
	"errors"
)

// Raw: LLM 客户端返回的原始文本载荷（万能容器）。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// LLMClient: 以 Tagged+Prompt 为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源。
// Tagged 仅供调试实现（mock）回显目标分组，真实客户端只读取 Prompt。
type LLMClient interface {
	Invoke(ctx context.Context, t Tagged, p Prompt) (Raw, error)
}

// UpstreamError 用于承载 HTTP 上游错误的最小诊断信息。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

// 最小错误分类（用于上层策略判定）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
)
