package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a runnable config.json and .env template into dir (default: current directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			// 创建目录（若不存在）
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败", err)
			}
			if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
				return configErr("生成默认配置失败", err)
			}
			// 生成 .env 模板（不覆盖已存在文件）。
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				cmd.PrintErrf("提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# subtrans .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件 > 默认值\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("SUBTRANS_CONFIG_FILE=\n")
	b.WriteString("SUBTRANS_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"INPUTS", "SOURCE_LANGUAGE", "TARGET_LANGUAGE", "GROUP_SIZE", "MODE",
		"CONCURRENCY_LIMIT", "FAIL_FAST", "FATAL_NO_TRANSLATION", "MAX_RETRIES",
		"MAX_TOKENS", "LOG_LEVEL", "LLM",
	} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"READER", "SOURCE", "KIND", "PROMPT_BUILDER", "DECODER", "WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# serve 模式\n")
	b.WriteString(cfgpkg.EnvPrefix + "SERVE_ADDR=\n")
	b.WriteString(cfgpkg.EnvPrefix + "SERVE_ALLOWED_ORIGINS=\n")

	for _, name := range []string{"openai", "gemini"} {
		b.WriteString("\n# Provider 覆盖（" + name + "）\n")
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			b.WriteString(cfgpkg.EnvPrefix + "PROVIDER__" + name + "__" + k + "=\n")
		}
	}

	// 常见供应商 API Key（由 Provider 客户端读取，不经 SUBTRANS_ 前缀）
	b.WriteString("\n# 常见供应商 API Key\n")
	b.WriteString("OPENAI_API_KEY=\n")
	b.WriteString("GOOGLE_API_KEY=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
