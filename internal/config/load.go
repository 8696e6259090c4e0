package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"subtrans/internal/pipeline"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "SUBTRANS_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 与目标语言不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		GroupSize:   pipeline.DefaultGroupSize,
		Mode:        pipeline.ModeConcurrent,
		Concurrency: pipeline.DefaultConcurrency,
		MaxRetries:  2,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:        "fs",
			Source:        "srt",
			Kind:          "timed",
			PromptBuilder: "translate",
			Decoder:       "fenced",
			Writer:        "fs",
		},
		Serve: Serve{Addr: "127.0.0.1:8080"},
	}
}

// Load 按扩展名读取配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	}
	return LoadJSON("", raw)
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	// -1 表示文件未给出 max_retries，合并时不覆盖默认值。
	cfg := Config{MaxRetries: -1}
	switch {
	case len(raw) > 0:
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		raw = b
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 将 YAML 文档转换为 JSON 后按 LoadJSON 严格解析，
// 组件 options 子树因此可以直接写成 YAML 映射。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return Config{}, errors.New("yaml: empty document")
	}
	norm, err := normalizeYAML(doc)
	if err != nil {
		return Config{}, err
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", b)
}

// normalizeYAML 将 map[any]any 键统一为字符串，便于 JSON 编码。
func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			n, err := normalizeYAML(x)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			n, err := normalizeYAML(x)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		for i, x := range t {
			n, err := normalizeYAML(x)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	}
	return v, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if v := strings.TrimSpace(over.SourceLanguage); v != "" {
		out.SourceLanguage = v
	}
	if v := strings.TrimSpace(over.TargetLanguage); v != "" {
		out.TargetLanguage = v
	}
	if over.GroupSize != 0 {
		out.GroupSize = over.GroupSize
	}
	if v := strings.TrimSpace(over.Mode); v != "" {
		out.Mode = v
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.FailFast != nil {
		v := *over.FailFast
		out.FailFast = &v
	}
	if over.FatalNoTranslation {
		out.FatalNoTranslation = true
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}
	// 特殊：MaxRetries 的 0 具有语义（禁用重试），需要显式可覆盖。
	// 约定：当 over.MaxRetries >= 0 时认为“存在”，否则（例如 -1）视为未覆盖。
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	if v := strings.TrimSpace(over.Logging.Level); v != "" {
		out.Logging.Level = v
	}

	// 组件名（空不覆盖）
	mergeName(&out.Components.Reader, over.Components.Reader)
	mergeName(&out.Components.Source, over.Components.Source)
	mergeName(&out.Components.Kind, over.Components.Kind)
	mergeName(&out.Components.PromptBuilder, over.Components.PromptBuilder)
	mergeName(&out.Components.Decoder, over.Components.Decoder)
	mergeName(&out.Components.Writer, over.Components.Writer)

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			prov[k] = v
		}
		out.Provider = prov
	}

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.Source, over.Options.Source)
	mergeRaw(&out.Options.Kind, over.Options.Kind)
	mergeRaw(&out.Options.PromptBuilder, over.Options.PromptBuilder)
	mergeRaw(&out.Options.Decoder, over.Options.Decoder)
	mergeRaw(&out.Options.Writer, over.Options.Writer)

	if v := strings.TrimSpace(over.LLM); v != "" {
		out.LLM = v
	}

	if v := strings.TrimSpace(over.Serve.Addr); v != "" {
		out.Serve.Addr = v
	}
	if len(over.Serve.AllowedOrigins) > 0 {
		out.Serve.AllowedOrigins = cloneStrings(over.Serve.AllowedOrigins)
	}
	if over.Serve.MaxBodyBytes != 0 {
		out.Serve.MaxBodyBytes = over.Serve.MaxBodyBytes
	}
	return out
}

func mergeName(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func mergeRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SUBTRANS_；未知键忽略。
// 支持：INPUTS, SOURCE_LANGUAGE, TARGET_LANGUAGE, GROUP_SIZE, MODE, CONCURRENCY_LIMIT,
// FAIL_FAST, FATAL_NO_TRANSLATION, MAX_RETRIES, MAX_TOKENS, LOG_LEVEL, LLM, COMPONENTS_*, SERVE_*
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// 默认：-1 表示未设置，以便 Merge 能区分“未覆盖”和“显式设置为 0”。
	over.MaxRetries = -1
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "SOURCE_LANGUAGE":
			over.SourceLanguage = val
		case "TARGET_LANGUAGE":
			over.TargetLanguage = val
		case "GROUP_SIZE":
			if v, err := atoi(val); err == nil {
				over.GroupSize = v
			}
		case "MODE":
			over.Mode = val
		case "CONCURRENCY_LIMIT":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "FAIL_FAST":
			if v, err := strconv.ParseBool(val); err == nil {
				over.FailFast = &v
			}
		case "FATAL_NO_TRANSLATION":
			if v, err := strconv.ParseBool(val); err == nil {
				over.FatalNoTranslation = v
			}
		case "MAX_RETRIES":
			if v, err := atoi(val); err == nil {
				over.MaxRetries = v
			}
		case "MAX_TOKENS":
			if v, err := atoi(val); err == nil {
				over.MaxTokens = v
			}
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LLM":
			over.LLM = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_SOURCE":
			over.Components.Source = val
		case "COMPONENTS_KIND":
			over.Components.Kind = val
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "SERVE_ADDR":
			over.Serve.Addr = val
		case "SERVE_ALLOWED_ORIGINS":
			over.Serve.AllowedOrigins = splitComma(val)
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if !strings.HasPrefix(nk, "PROVIDER__") {
				continue
			}
			parts := strings.Split(nk, "__")
			if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" {
				continue
			}
			name := strings.TrimSpace(parts[1])
			p := prov[name]
			changed := true
			switch strings.Join(parts[2:], "__") {
			case "CLIENT":
				p.Client = val
				changed = val != ""
			case "LIMITS_RPM":
				v, err := atoi(val)
				p.Limits.RPM, changed = v, err == nil
			case "LIMITS_TPM":
				v, err := atoi(val)
				p.Limits.TPM, changed = v, err == nil
			case "LIMITS_MAX_TOKENS_PER_REQ":
				v, err := atoi(val)
				p.Limits.MaxTokensPerReq, changed = v, err == nil
			case "OPTIONS_JSON":
				// 原样 JSON；空值视为未设置，避免清空现有配置
				if val == "" {
					changed = false
				} else if !json.Valid([]byte(val)) {
					return over, fmt.Errorf("%sPROVIDER__%s__OPTIONS_JSON: invalid JSON", EnvPrefix, name)
				} else {
					p.Options = json.RawMessage(val)
				}
			default:
				changed = false
			}
			// 仅在发生有效变更时记录该 provider；避免空值覆盖配置文件
			if changed {
				prov[name] = p
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
