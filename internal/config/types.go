package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知字段在解析期失败（YAML 先转换为 JSON 再严格解析）。
type Config struct {
	Inputs         []string `json:"inputs"`
	SourceLanguage string   `json:"source_language"`
	TargetLanguage string   `json:"target_language"`

	// GroupSize: 每个分组的字幕条数。
	GroupSize int `json:"group_size"`
	// Mode: concurrent|sequential。
	Mode string `json:"mode"`
	// Concurrency: 同时在途的后端调用上限。
	Concurrency int `json:"concurrency_limit"`
	// FailFast: 任一分组失败即终止（默认 true）；false 时失败分组按原文输出。
	FailFast *bool `json:"fail_fast,omitempty"`
	// FatalNoTranslation: 响应中找不到译文时终止，默认仅标记该分组。
	FatalNoTranslation bool `json:"fatal_no_translation"`
	// MaxRetries: 后端调用额外重试次数（>=0）。0 表示不重试。
	MaxRetries int `json:"max_retries"`
	// MaxTokens: 单次请求估算 token 上限，0 表示不限制。
	MaxTokens int     `json:"max_tokens"`
	Logging   Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Serve Serve `json:"serve"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	Source        string `json:"source"`
	Kind          string `json:"kind"`
	PromptBuilder string `json:"prompt_builder"`
	Decoder       string `json:"decoder"`
	Writer        string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	Source        json.RawMessage `json:"source"`
	Kind          json.RawMessage `json:"kind"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Decoder       json.RawMessage `json:"decoder"`
	Writer        json.RawMessage `json:"writer"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}

// Serve: HTTP 服务模式配置。
type Serve struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	// MaxBodyBytes: 单个请求体上限，<=0 使用默认 8MiB。
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

// FailFastEnabled 返回生效的 fail_fast（未设置时为 true）。
func (c Config) FailFastEnabled() bool {
	return c.FailFast == nil || *c.FailFast
}
