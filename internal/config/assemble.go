package config

import (
	"errors"
	"fmt"
	"strings"

	"subtrans/internal/pipeline"
	"subtrans/internal/rate"
	"subtrans/pkg/contract"
	"subtrans/pkg/registry"
	"subtrans/plugins/prompt/translate"
)

// Assembly 是装配结果：组件、运行设置、限流闸门以及按语言构造提示的工厂。
type Assembly struct {
	Components pipeline.Components
	Settings   pipeline.Settings
	Gate       rate.Gate
	Key        rate.LimitKey
	// NewPromptBuilder 以同一份 prompt_builder options 为指定语言对构造实例（serve 模式逐请求调用）。
	NewPromptBuilder func(contract.Languages) (contract.PromptBuilder, error)
}

// Validate 对翻译运行做静态校验：在 ValidateCommon 之外要求目标语言。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.TargetLanguage) == "" {
		return errors.New("config: target_language not set")
	}
	return ValidateCommon(cfg)
}

// ValidateCommon 校验与语言无关的边界；返回遇到的第一个问题。
func ValidateCommon(cfg Config) error {
	// 输入路径不得为空字符串；"-" 不能与其他根混用。inputs 为空表示 STDIN。
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.GroupSize < 1 {
		return errors.New("config: group_size must be >= 1")
	}
	switch cfg.Mode {
	case "", pipeline.ModeConcurrent, pipeline.ModeSequential:
	default:
		return fmt.Errorf("config: unknown mode %q (concurrent|sequential)", cfg.Mode)
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency_limit must be >= 1")
	}
	if cfg.MaxTokens < 0 {
		return errors.New("config: max_tokens must be >= 0")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if cfg.LLM == "" {
		return errors.New("config: llm not set")
	}
	prov, ok := provider(cfg)
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.LLM)
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.MaxTokens > prov.Limits.MaxTokensPerReq {
		return fmt.Errorf("config: max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", cfg.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	n := names(cfg)
	if registry.Reader[n.Reader] == nil {
		return fmt.Errorf("config: reader %q not registered", n.Reader)
	}
	if registry.Source[n.Source] == nil {
		return fmt.Errorf("config: source %q not registered", n.Source)
	}
	if registry.Kind[n.Kind] == nil {
		return fmt.Errorf("config: kind %q not registered", n.Kind)
	}
	if registry.PromptBuilder[n.PromptBuilder] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", n.PromptBuilder)
	}
	if registry.Decoder[n.Decoder] == nil {
		return fmt.Errorf("config: decoder %q not registered", n.Decoder)
	}
	if registry.Writer[n.Writer] == nil {
		return fmt.Errorf("config: writer %q not registered", n.Writer)
	}
	if registry.LLMClient[prov.Client] == nil {
		return fmt.Errorf("config: llm client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 为一次翻译运行构造全部组件（含按配置语言构造的 PromptBuilder）。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (Assembly, error) {
	if err := Validate(cfg); err != nil {
		return Assembly{}, err
	}
	a, err := build(cfg)
	if err != nil {
		return Assembly{}, err
	}
	pb, err := a.NewPromptBuilder(contract.Languages{Source: cfg.SourceLanguage, Target: cfg.TargetLanguage})
	if err != nil {
		return Assembly{}, err
	}
	a.Components.PromptBuilder = pb
	return a, nil
}

// AssembleServer 与 Assemble 相同，但不要求目标语言，Components.PromptBuilder 留空由调用方逐请求构造。
func AssembleServer(cfg Config) (Assembly, error) {
	if err := ValidateCommon(cfg); err != nil {
		return Assembly{}, err
	}
	return build(cfg)
}

func build(cfg Config) (Assembly, error) {
	n := names(cfg)

	r, err := registry.Reader[n.Reader](cfg.Options.Reader)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: reader options: %w", err)
	}
	src, err := registry.Source[n.Source](cfg.Options.Source)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: source options: %w", err)
	}
	kind, err := registry.Kind[n.Kind](cfg.Options.Kind)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: kind options: %w", err)
	}
	dec, err := registry.Decoder[n.Decoder](cfg.Options.Decoder)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: decoder options: %w", err)
	}
	w, err := registry.Writer[n.Writer](cfg.Options.Writer)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: writer options: %w", err)
	}

	prov, _ := provider(cfg)
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return Assembly{}, fmt.Errorf("config: provider %q: %w", cfg.LLM, err)
	}

	newPB := registry.PromptBuilder[n.PromptBuilder]
	pbRaw := cloneRaw(cfg.Options.PromptBuilder)
	// 先以占位语言试构造一次，令模板/术语表错误在装配期暴露
	if _, err := newPB(pbRaw, contract.Languages{Target: "-"}); err != nil {
		return Assembly{}, fmt.Errorf("config: prompt_builder options: %w", err)
	}

	// 限流 Gate（按 provider 限额构造；分组键从 options 中派生 API Key）
	// 默认使用 API Key 派生分组键（更稳定）；若失败则退化为 provider 名称。
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	mode := cfg.Mode
	if mode == "" {
		mode = pipeline.ModeConcurrent
	}
	set := pipeline.Settings{
		Inputs:             cloneStrings(cfg.Inputs),
		TargetLanguage:     cfg.TargetLanguage,
		GroupSize:          cfg.GroupSize,
		Mode:               mode,
		Concurrency:        cfg.Concurrency,
		SkipFailed:         !cfg.FailFastEnabled(),
		FatalNoTranslation: cfg.FatalNoTranslation,
		MaxRetries:         cfg.MaxRetries,
		MaxTokens:          cfg.MaxTokens,
		Gate:               gate,
		GateKey:            key,
	}

	return Assembly{
		Components: pipeline.Components{
			Reader:    r,
			Source:    src,
			Kind:      kind,
			Formatter: translate.Formatter{},
			LLM:       llm,
			Decoder:   dec,
			Writer:    w,
		},
		Settings: set,
		Gate:     gate,
		Key:      key,
		NewPromptBuilder: func(langs contract.Languages) (contract.PromptBuilder, error) {
			return newPB(pbRaw, langs)
		},
	}, nil
}

// provider 返回生效的 provider 定义；未显式定义但与已注册客户端同名时（如 "mock"）按零配置使用该客户端。
func provider(cfg Config) (Provider, bool) {
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		return p, true
	}
	if registry.LLMClient[cfg.LLM] != nil {
		return Provider{Client: cfg.LLM}, true
	}
	return Provider{}, false
}

func names(cfg Config) Components {
	d := Defaults().Components
	return Components{
		Reader:        effName(cfg.Components.Reader, d.Reader),
		Source:        effName(cfg.Components.Source, d.Source),
		Kind:          effName(cfg.Components.Kind, d.Kind),
		PromptBuilder: effName(cfg.Components.PromptBuilder, d.PromptBuilder),
		Decoder:       effName(cfg.Components.Decoder, d.Decoder),
		Writer:        effName(cfg.Components.Writer, d.Writer),
	}
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
