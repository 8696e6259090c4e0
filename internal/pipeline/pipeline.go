package pipeline

import (
	"errors"
	"io"
	"time"

	"subtrans/internal/rate"
	"subtrans/pkg/contract"
)

// - 单点并发：仅编排层管理并发；原子组件均为同步、无内部并发。
// - 无序生产、有序消费：worker 只产出 (index, 译文, 原文) 三元组，合并按 index 严格递增进行。
// - 游标只属于 Merger，worker 永不触碰。
// - 首错取消（fail_fast）：任一分组致命失败即取消其余调用，不写出任何部分结果。

// 执行模式。
const (
	ModeConcurrent = "concurrent"
	ModeSequential = "sequential"
)

// 默认值。
const (
	DefaultGroupSize    = 20
	DefaultConcurrency  = 10
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader        contract.Reader
	Source        contract.Source
	Kind          contract.Kind
	Formatter     contract.Formatter
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Decoder       contract.Decoder
	Writer        contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// TargetLanguage 用于输出命名 <stem>_<target>.srt。
	TargetLanguage string

	GroupSize   int
	Mode        string // concurrent|sequential，空为 concurrent
	Concurrency int    // 同时在途的后端调用上限 K

	// SkipFailed: false（默认）为 fail-fast；true 时失败分组按原文标记并继续。
	SkipFailed bool
	// FatalNoTranslation: 找不到译文时终止（默认仅标记该分组）。
	FatalNoTranslation bool

	// MaxRetries: 后端调用额外重试次数（>=0）。RetryBackoff 为首次退避，之后翻倍。
	MaxRetries   int
	RetryBackoff time.Duration

	// MaxTokens: 单次请求估算 token 上限，<=0 不限制。
	MaxTokens     int
	BytesPerToken int

	// 限流闸门（可选）：若非空，则在调用 LLM 前调用 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey

	// Resume 从检查点之后的分组继续；产出的文档只覆盖剩余分组。
	Resume *Checkpoint
	// OnCommit 在每个分组合并后回调（按分组顺序）。
	OnCommit func(Checkpoint)

	// Stdout 接收 STDIN 输入的结果；为空时 stdin 结果交给 Writer。
	Stdout io.Writer
}

func (s Settings) withDefaults() Settings {
	if s.GroupSize <= 0 {
		s.GroupSize = DefaultGroupSize
	}
	if s.Concurrency < 1 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Mode == "" {
		s.Mode = ModeConcurrent
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = DefaultRetryBackoff
	}
	return s
}

func sanity(c Components, s Settings) error {
	if c.Kind == nil || c.Formatter == nil || c.PromptBuilder == nil || c.LLM == nil || c.Decoder == nil {
		return errors.New("pipeline: missing components")
	}
	switch s.Mode {
	case "", ModeConcurrent, ModeSequential:
	default:
		return errors.New("pipeline: unknown mode " + s.Mode)
	}
	return nil
}
