package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/diag"
	"subtrans/internal/httpapi"
	"subtrans/internal/pipeline"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nWorld\n"

// runIn 在临时工作目录中执行 CLI，返回退出码与 stdout/stderr。
func runIn(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	t.Chdir(dir)
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func stubRun(t *testing.T, fn func(pipeline.Components, pipeline.Settings) error) *bool {
	t.Helper()
	called := new(bool)
	orig := pipelineRun
	pipelineRun = func(_ context.Context, comp pipeline.Components, set pipeline.Settings, _ *diag.Logger) (pipeline.Report, error) {
		*called = true
		return pipeline.Report{}, fn(comp, set)
	}
	t.Cleanup(func() { pipelineRun = orig })
	return called
}

func templateJSON(t *testing.T, mut func(*cfgpkg.Config)) string {
	t.Helper()
	cfg := cfgpkg.DefaultTemplateConfig()
	if mut != nil {
		mut(&cfg)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestRunInitConfig(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if code, _, errs := runIn(t, dir, "init-config", outDir); code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	b, err := os.ReadFile(filepath.Join(outDir, "config.json"))
	if err != nil {
		t.Fatalf("config not generated: %v", err)
	}
	// 生成的模板应可被严格解析并通过校验
	cfg, err := cfgpkg.LoadJSON("", b)
	if err != nil {
		t.Fatalf("模板无法解析: %v", err)
	}
	if err := cfgpkg.Validate(cfgpkg.Merge(cfgpkg.Defaults(), cfg)); err != nil {
		t.Fatalf("模板未通过校验: %v", err)
	}
	env, err := os.ReadFile(filepath.Join(outDir, ".env"))
	if err != nil || !strings.Contains(string(env), "SUBTRANS_TARGET_LANGUAGE=") {
		t.Fatalf(".env 模板错误: %v %s", err, env)
	}
}

func TestRunInitConfigDefaultDir(t *testing.T) {
	dir := t.TempDir()
	if code, _, _ := runIn(t, dir, "init-config"); code != 0 {
		t.Fatalf("run return %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config not generated: %v", err)
	}
}

func TestRunInitConfigFileExists(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}
	if code, _, _ := runIn(t, dir, "init-config", dir); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "config.json"))
	if string(b) != "{}" {
		t.Fatalf("已存在的配置被覆盖: %s", b)
	}
}

func TestRunSuccess(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, nil))
	called := stubRun(t, func(pipeline.Components, pipeline.Settings) error { return nil })
	if code, _, errs := runIn(t, t.TempDir(), "translate", "--status=false"); code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if !*called {
		t.Fatalf("pipelineRun not called")
	}
}

func TestRunCLIOverrides(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, nil))
	var got pipeline.Settings
	stubRun(t, func(_ pipeline.Components, set pipeline.Settings) error { got = set; return nil })
	code, _, errs := runIn(t, t.TempDir(), "translate", "-t", "Korean", "--group-size", "5", "-j", "2",
		"--sequential", "--no-fail-fast", "--max-retries", "0", "--status=false", "a.srt")
	if code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.TargetLanguage != "Korean" || got.GroupSize != 5 || got.Concurrency != 2 || got.Mode != pipeline.ModeSequential {
		t.Fatalf("覆盖未生效: %+v", got)
	}
	if !got.SkipFailed || got.MaxRetries != 0 || len(got.Inputs) != 1 || got.Inputs[0] != "a.srt" {
		t.Fatalf("覆盖未生效: %+v", got)
	}
}

// ENV 覆盖配置文件，CLI 覆盖 ENV
func TestRunPrecedence(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, func(c *cfgpkg.Config) { c.GroupSize = 7; c.Concurrency = 4 }))
	t.Setenv("SUBTRANS_GROUP_SIZE", "9")
	t.Setenv("SUBTRANS_MAX_RETRIES", "0")
	var got pipeline.Settings
	stubRun(t, func(_ pipeline.Components, set pipeline.Settings) error { got = set; return nil })
	if code, _, errs := runIn(t, t.TempDir(), "translate", "-j", "3", "--status=false"); code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.GroupSize != 9 || got.Concurrency != 3 || got.MaxRetries != 0 {
		t.Fatalf("优先级错误: %+v", got)
	}
}

func TestRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(templateJSON(t, nil)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	called := stubRun(t, func(pipeline.Components, pipeline.Settings) error { return nil })
	if code, _, errs := runIn(t, dir, "translate", "--config", path, "--status=false"); code != 0 || !*called {
		t.Fatalf("run return %d: %s", code, errs)
	}
}

// 工作目录下的 config.yaml 作为默认配置
func TestRunDefaultYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := "target_language: Chinese\nllm: mock\ngroup_size: 3\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var got pipeline.Settings
	stubRun(t, func(_ pipeline.Components, set pipeline.Settings) error { got = set; return nil })
	if code, _, errs := runIn(t, dir, "translate", "--status=false"); code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if got.GroupSize != 3 || got.MaxRetries != 2 {
		t.Fatalf("默认 YAML 未生效: %+v", got)
	}
}

func TestRunConfigFileNotFound(t *testing.T) {
	if code, _, errs := runIn(t, t.TempDir(), "translate", "--config", "nope.json"); code != 3 || !strings.Contains(errs, "配置解析失败") {
		t.Fatalf("expect 3, got %d: %s", code, errs)
	}
}

func TestRunValidateError(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, func(c *cfgpkg.Config) {
		c.TargetLanguage = ""
		c.Provider["mock"] = cfgpkg.Provider{Client: "mock", Options: json.RawMessage(`{"api_key":"secret"}`)}
	}))
	code, _, errs := runIn(t, t.TempDir(), "translate")
	if code != 3 || !strings.Contains(errs, "target_language") {
		t.Fatalf("expect 3, got %d: %s", code, errs)
	}
	if strings.Contains(errs, "secret") {
		t.Fatalf("打印的有效配置未脱敏: %s", errs)
	}
}

func TestRunAssembleError(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, func(c *cfgpkg.Config) {
		c.Options.Reader = json.RawMessage(`{"unknown": true}`)
	}))
	if code, _, errs := runIn(t, t.TempDir(), "translate"); code != 3 || !strings.Contains(errs, "装配失败") {
		t.Fatalf("expect 3, got %d: %s", code, errs)
	}
}

func TestRunPipelineError(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, nil))
	stubRun(t, func(pipeline.Components, pipeline.Settings) error { return errors.New("boom") })
	if code, _, errs := runIn(t, t.TempDir(), "translate", "--status=false"); code != 1 || !strings.Contains(errs, "boom") {
		t.Fatalf("expect 1, got %d: %s", code, errs)
	}
}

// 用户取消不打印错误
func TestRunCanceledQuiet(t *testing.T) {
	t.Setenv("SUBTRANS_CONFIG_JSON", templateJSON(t, nil))
	stubRun(t, func(pipeline.Components, pipeline.Settings) error { return context.Canceled })
	code, _, errs := runIn(t, t.TempDir(), "translate", "--status=false")
	if code != 1 || strings.Contains(errs, "运行失败") {
		t.Fatalf("expect quiet 1, got %d: %s", code, errs)
	}
}

func TestRunUsageError(t *testing.T) {
	if code, _, _ := runIn(t, t.TempDir(), "translate", "--no-such-flag"); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
	if code, _, _ := runIn(t, t.TempDir(), "init-config", "a", "b"); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

// 端到端：mock LLM 翻译真实文件，输出写在输入旁边
func TestRunEndToEndMock(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ep01.srt")
	if err := os.WriteFile(in, []byte(sampleSRT), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	code, _, errs := runIn(t, dir, "translate", "-s", "English", "-t", "zh", "--llm", "mock", "--status=false", "ep01.srt")
	if code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	b, err := os.ReadFile(filepath.Join(dir, "ep01_zh.srt"))
	if err != nil {
		t.Fatalf("输出未生成: %v", err)
	}
	want := "1\n00:00:01,000 --> 00:00:02,000\nMOCK: Hello\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nMOCK: World\nWorld\n"
	if string(b) != want {
		t.Fatalf("输出不一致:\n%q\n%q", b, want)
	}
}

// 未翻译分组以告警形式打印到 stderr
func TestRunWarningsPrinted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.srt"), []byte(sampleSRT), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	t.Setenv("SUBTRANS_PROVIDER__m__CLIENT", "mock")
	t.Setenv("SUBTRANS_PROVIDER__m__OPTIONS_JSON", `{"response_mode":"merge_lines"}`)
	code, _, errs := runIn(t, dir, "translate", "-t", "zh", "--llm", "m", "--status=false", "a.srt")
	if code != 0 {
		t.Fatalf("run return %d: %s", code, errs)
	}
	if !strings.Contains(errs, "[warn]") || !strings.Contains(errs, "entries 1-2") {
		t.Fatalf("缺少告警输出: %s", errs)
	}
}

func TestRunServe(t *testing.T) {
	called := false
	orig := serveListen
	serveListen = func(s *httpapi.Server, _ context.Context) error {
		called = s != nil && s.Handler() != nil
		return nil
	}
	defer func() { serveListen = orig }()
	if code, _, errs := runIn(t, t.TempDir(), "serve", "--llm", "mock", "--addr", "127.0.0.1:0"); code != 0 || !called {
		t.Fatalf("serve return %d: %s", code, errs)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runIn(t, t.TempDir(), "version")
	if code != 0 || !strings.HasPrefix(out, "subtrans ") {
		t.Fatalf("unexpected %d %q", code, out)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	body := "# c\nexport SUBTRANS_T_A=1\nSUBTRANS_T_B=\"x\\ny\"\nSUBTRANS_T_C='q'\nSUBTRANS_T_KEEP=new\nSUBTRANS_T_D=plain # 行尾注释\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SUBTRANS_T_KEEP", "old")
	for _, k := range []string{"SUBTRANS_T_A", "SUBTRANS_T_B", "SUBTRANS_T_C", "SUBTRANS_T_D"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	if err := loadDotEnv(p); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if os.Getenv("SUBTRANS_T_A") != "1" || os.Getenv("SUBTRANS_T_B") != "x\ny" || os.Getenv("SUBTRANS_T_C") != "q" {
		t.Fatalf("解析错误: %q %q %q", os.Getenv("SUBTRANS_T_A"), os.Getenv("SUBTRANS_T_B"), os.Getenv("SUBTRANS_T_C"))
	}
	if os.Getenv("SUBTRANS_T_D") != "plain" {
		t.Fatalf("行尾注释未去除: %q", os.Getenv("SUBTRANS_T_D"))
	}
	if os.Getenv("SUBTRANS_T_KEEP") != "old" {
		t.Fatalf("不应覆盖已有环境变量")
	}
	if err := loadDotEnv(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("不存在的文件应忽略: %v", err)
	}
	bad := filepath.Join(dir, "bad.env")
	os.WriteFile(bad, []byte("A=\"unterminated\n"), 0o644)
	if err := loadDotEnv(bad); err == nil {
		t.Fatalf("格式错误应返回错误")
	}
}

func TestPreflightCheckOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Defaults()
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("未配置 output_dir 应跳过: %v", err)
	}
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"` + filepath.ToSlash(filepath.Join(dir, "new")) + `"}`)
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("父目录可写应通过: %v", err)
	}
	file := filepath.Join(dir, "f")
	_ = os.WriteFile(file, nil, 0o644)
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"` + filepath.ToSlash(file) + `"}`)
	if err := preflightCheckOutputDir(cfg); err == nil {
		t.Fatalf("路径为文件应失败")
	}
}
