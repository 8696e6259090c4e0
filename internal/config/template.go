package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock LLM 与合理限额（本地/离线调试友好）；
// - 默认输入为 STDIN（"-"），Writer 写在输入文件旁边；
// - 组件名采用仓库内置实现；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	ff := true
	cfg := Config{
		Inputs:         []string{"-"},
		SourceLanguage: "English",
		TargetLanguage: "Chinese",
		GroupSize:      d.GroupSize,
		Mode:           d.Mode,
		Concurrency:    d.Concurrency,
		FailFast:       &ff,
		MaxRetries:     d.MaxRetries,
		Logging:        d.Logging,
		Components:     d.Components,
		LLM:            "mock",
		Provider: map[string]Provider{
			"mock": {
				Client: "mock",
				// 包含所有 mock 选项键（可为空）
				Options: json.RawMessage(`{"prefix":"","api_key":"","response_mode":""}`),
				Limits:  Limits{RPM: 60, TPM: 100000, MaxTokensPerReq: 0},
			},
			"openai": {
				Client: "openai",
				// 覆盖全部 OpenAI 选项键，值可为空/默认
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "temperature": null,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 500, TPM: 200000},
			},
			"gemini": {
				Client: "gemini",
				// 覆盖全部 Gemini 选项键，值可为空/默认
				Options: json.RawMessage(`{
  "base_url": "",
  "api_version": "v1beta",
  "model": "",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "temperature": null,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 10, TPM: 250000},
			},
		},
		Serve: d.Serve,
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "exts": [".srt"],
  "skip_hidden": true
}`)
	cfg.Options.Source = json.RawMessage(`{
  "max_fragment_bytes": 0,
  "allow_exts": [".srt"],
  "empty_as_text": false
}`)
	// timed 当前无配置项，保持空对象
	cfg.Options.Kind = json.RawMessage(`{}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "inline_system_template": "",
  "system_template_path": "",
  "inline_task_template": "",
  "task_template_path": "",
  "inline_glossary": "",
  "glossary_path": ""
}`)
	cfg.Options.Decoder = json.RawMessage(`{"keep_info_string": false}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "",
  "layout": "",
  "atomic": true,
  "no_clobber": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
