package contract

import "context"

// Prompt: 不透明载荷，由具体 PromptBuilder/LLMClient 配对解释。
type Prompt any

// Message: 最小会话消息形状（可用于 ChatPrompt）。
type Message struct {
	Role    string
	Content string
}

// TextPrompt: 文本型提示词载荷。
type TextPrompt string

// ChatPrompt: 会话型提示词载荷（system + user）。
type ChatPrompt []Message

// Languages: 一次运行的源/目标语言（自由文本，如 "English"、"简体中文"）。
type Languages struct {
	Source string
	Target string
}

// Formatter: 在全量分组中包裹第 i 组，形成带上下文的请求文本。纯计算。
type Formatter interface {
	Format(i int, chunks []string) (Tagged, error)
}

// PromptBuilder: 基于 Tagged 构造确定性的 Prompt。
// 约束：
//   - 纯计算，不做 I/O；
//   - 不隐式修改业务内容；
//   - 失败快速返回错误。
type PromptBuilder interface {
	Build(ctx context.Context, t Tagged) (Prompt, error)
	// EstimateOverheadTokens: 估算与分组无关的固定开销（system/glossary/任务说明）。
	EstimateOverheadTokens(estimate TokenEstimator) int
}

// TokenEstimator: 文本→token 的近似估算函数。
// 典型实现：ceil(len(utf8_bytes)/BytesPerToken)。
type TokenEstimator func(s string) int

// Decoder: 从模型原始输出中取出译文分组（仍为 Delimiter 连接的文本）。
// 找不到译文时返回 *NoTranslationFoundError。
type Decoder interface {
	Decode(ctx context.Context, raw Raw) (string, error)
}
