package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/diag"
	"subtrans/internal/pipeline"
)

type translateFlags struct {
	config             string
	llm                string
	source             string
	target             string
	groupSize          int
	concurrency        int
	maxRetries         int
	maxTokens          int
	sequential         bool
	noFailFast         bool
	fatalNoTranslation bool
	status             bool
}

func newTranslateCmd() *cobra.Command {
	f := &translateFlags{}
	cmd := &cobra.Command{
		Use:   "translate [roots...]",
		Short: "Translate SRT files, directories or STDIN",
		Long: heredoc.Doc(`
			Translate every .srt file under the given roots. Each input <name>.srt is
			written as <name>_<target>.srt (beside the input unless writer.output_dir is
			set). With no roots, or a single "-", the document is read from STDIN and the
			result is written to STDOUT.
		`),
		Example: heredoc.Doc(`
			subtrans translate -s English -t Chinese ./season1
			subtrans translate -t Chinese --llm openai --sequential ep01.srt
			cat ep01.srt | subtrans translate -t Chinese > ep01_Chinese.srt
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "配置文件路径（.json/.yaml）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	fs.StringVar(&f.llm, "llm", "", "provider 名称（覆盖配置）")
	fs.StringVarP(&f.source, "source", "s", "", "源语言（自由文本，如 English）")
	fs.StringVarP(&f.target, "target", "t", "", "目标语言（自由文本，同时用于输出文件名）")
	fs.IntVar(&f.groupSize, "group-size", 0, "每个分组的字幕条数（覆盖配置，默认 20）")
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "同时在途的 LLM 调用上限（覆盖配置，默认 10）")
	// max-retries 允许显式设置为 0；默认 -1 表示“未覆盖”。
	fs.IntVar(&f.maxRetries, "max-retries", -1, "LLM 调用额外重试次数（覆盖配置；0 表示不重试）")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "单次请求估算 token 上限（覆盖配置）")
	fs.BoolVar(&f.sequential, "sequential", false, "按分组顺序逐个调用（等价 mode=sequential）")
	fs.BoolVar(&f.noFailFast, "no-fail-fast", false, "分组失败时按原文输出并继续，而不是终止")
	fs.BoolVar(&f.fatalNoTranslation, "fatal-no-translation", false, "响应中找不到译文时终止（默认仅标记该分组）")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	return cmd
}

// overlay 只收集显式给出的旗标。
func (f *translateFlags) overlay(cmd *cobra.Command, roots []string) cfgpkg.Config {
	var over cfgpkg.Config
	// 标记 MaxRetries 未设置（避免默认 0 被误判为要覆盖）
	over.MaxRetries = -1
	over.LLM = f.llm
	over.SourceLanguage = f.source
	over.TargetLanguage = f.target
	if f.groupSize > 0 {
		over.GroupSize = f.groupSize
	}
	if f.concurrency > 0 {
		over.Concurrency = f.concurrency
	}
	if f.maxTokens > 0 {
		over.MaxTokens = f.maxTokens
	}
	if f.maxRetries >= 0 {
		over.MaxRetries = f.maxRetries
	}
	if f.sequential {
		over.Mode = pipeline.ModeSequential
	}
	if cmd.Flags().Changed("no-fail-fast") {
		ff := !f.noFailFast
		over.FailFast = &ff
	}
	over.FatalNoTranslation = f.fatalNoTranslation
	if len(roots) > 0 {
		over.Inputs = roots
	}
	return over
}

func runTranslate(cmd *cobra.Command, roots []string, f *translateFlags) error {
	start := time.Now()
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	cfg = cfgpkg.Merge(cfg, f.overlay(cmd, roots))

	// 基本校验 & 装配
	if err := cfgpkg.Validate(cfg); err != nil {
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(stderr, cfg)
		return configErr("配置校验失败", err)
	}

	logger := diag.NewLogger(diag.NewCorrID(), cfg.Logging.Level)
	defer logger.Sync()

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.ErrorWith("pipeline", string(diag.Classify(err)), "first error", &start, "", "")
		return configErr("输出目录不可写或无法创建", err)
	}

	asm, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.ErrorWith("pipeline", string(diag.Classify(err)), "first error", &start, "", "")
		return configErr("装配失败", err)
	}
	set := asm.Settings
	set.Stdout = cmd.OutOrStdout()

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(set.Concurrency, cfg.LLM)

	logEffective(logger, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	t := logger.StartWith("pipeline", "run", "", "")
	rep, err := pipelineRun(ctx, asm.Components, set, logger)
	if err != nil {
		// 分类到最接近的退出码（运行期错误）
		code := string(diag.Classify(err))
		logger.ErrorWith("pipeline", code, "first error", &start, "", "")
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		term.RunFinish(false, time.Since(start))
		return &exitError{code: exitRuntime, quiet: errors.Is(err, context.Canceled), err: fmt.Errorf("运行失败: %w", err)}
	}
	t.Finish("run", int64(rep.Files))
	printWarnings(stderr, rep)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	return nil
}

// 未显式指定配置时依次查找的文件名。
var defaultConfigNames = []string{"config.json", "config.yaml", "config.yml"}

// loadConfig 按优先级构建配置：默认值 < 配置文件（或 SUBTRANS_CONFIG_JSON）< ENV。CLI 覆盖由调用方合并。
func loadConfig(path string) (cfgpkg.Config, error) {
	if path == "" {
		path = os.Getenv("SUBTRANS_CONFIG_FILE")
	}
	cfg := cfgpkg.Defaults()
	var (
		base cfgpkg.Config
		err  error
		have bool
	)
	switch {
	case path != "":
		base, err = cfgpkg.Load(path)
		have = true
	case os.Getenv("SUBTRANS_CONFIG_JSON") != "":
		base, err = cfgpkg.LoadJSON("", []byte(os.Getenv("SUBTRANS_CONFIG_JSON")))
		have = true
	default:
		for _, name := range defaultConfigNames {
			if _, serr := os.Stat(name); serr == nil {
				base, err = cfgpkg.Load(name)
				have = true
				break
			}
		}
	}
	if err != nil {
		return cfg, configErr("配置解析失败", err)
	}
	if have {
		cfg = cfgpkg.Merge(cfg, base)
	}

	// ENV 覆盖（最小集合）
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败", err)
	}
	return cfgpkg.Merge(cfg, overEnv), nil
}

func printWarnings(w io.Writer, rep pipeline.Report) {
	for _, fw := range rep.Warnings {
		fmt.Fprintf(w, "[warn] %s: %s\n", fw.FileID, fw.String())
	}
	if rep.Skipped > 0 {
		fmt.Fprintf(w, "[skip] 跳过非字幕文件 %d 个\n", rep.Skipped)
	}
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(redact(c), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s\n", b)
	return err
}

// redact 去掉 provider options 中的明文 api_key。
func redact(c cfgpkg.Config) cfgpkg.Config {
	if len(c.Provider) == 0 {
		return c
	}
	prov := make(map[string]cfgpkg.Provider, len(c.Provider))
	for name, p := range c.Provider {
		var m map[string]any
		if json.Unmarshal(p.Options, &m) == nil {
			if _, ok := m["api_key"]; ok {
				m["api_key"] = "***"
				if b, err := json.Marshal(m); err == nil {
					p.Options = b
				}
			}
		}
		prov[name] = p
	}
	c.Provider = prov
	return c
}

// logEffective 在 debug 级别输出运行时配置信息（已脱敏）。
func logEffective(logger *diag.Logger, cfg cfgpkg.Config) {
	kv := map[string]string{
		"inputs_count":   fmt.Sprintf("%d", len(cfg.Inputs)),
		"group_size":     fmt.Sprintf("%d", cfg.GroupSize),
		"mode":           cfg.Mode,
		"concurrency":    fmt.Sprintf("%d", cfg.Concurrency),
		"max_tokens":     fmt.Sprintf("%d", cfg.MaxTokens),
		"fail_fast":      fmt.Sprintf("%t", cfg.FailFastEnabled()),
		"target":         cfg.TargetLanguage,
		"llm":            cfg.LLM,
		"reader":         cfg.Components.Reader,
		"source":         cfg.Components.Source,
		"kind":           cfg.Components.Kind,
		"prompt_builder": cfg.Components.PromptBuilder,
		"decoder":        cfg.Components.Decoder,
		"writer":         cfg.Components.Writer,
	}
	// 提取 Provider 关键信息（不含密钥）
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = strings.TrimSpace(s.Model)
		}
	}
	logger.DebugStart("config", "effective", "", "", kv)
}
