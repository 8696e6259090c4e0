package translate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtrans/pkg/contract"
)

var langs = contract.Languages{Source: "English", Target: "简体中文"}

func tagged(t *testing.T) contract.Tagged {
	t.Helper()
	tg, err := Format(1, []string{"L<T>", "T1<T>T2", "<T>R"})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return tg
}

// TestBuildDefault 测试默认模板构造
func TestBuildDefault(t *testing.T) {
	b, err := New(nil, langs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := b.Build(context.Background(), tagged(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp, ok := p.(contract.ChatPrompt)
	if !ok || len(cp) != 2 || cp[0].Role != "system" || cp[1].Role != "user" {
		t.Fatalf("unexpected prompt %#v", p)
	}
	if !strings.Contains(cp[0].Content, "English -> 简体中文") || !strings.Contains(cp[0].Content, "```") {
		t.Fatalf("系统提示缺少语言或代码块说明: %s", cp[0].Content)
	}
	user := cp[1].Content
	if !strings.Contains(user, "<SOURCE_TEXT>\n\nL<T><TRANSLATE_THIS>T1<T>T2</TRANSLATE_THIS><T>R\n\n</SOURCE_TEXT>") {
		t.Fatalf("上下文未完整嵌入: %s", user)
	}
	if strings.Count(user, "<TRANSLATE_THIS>") != 3 {
		t.Fatalf("目标分组应再次单独给出: %s", user)
	}
}

// TestBuildUntagged 未包裹的文本拒绝
func TestBuildUntagged(t *testing.T) {
	b, _ := New(nil, langs)
	_, err := b.Build(context.Background(), contract.Tagged{Text: "plain"})
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}

// TestBuildCanceled 取消
func TestBuildCanceled(t *testing.T) {
	b, _ := New(nil, langs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, tagged(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
}

// TestNewRequiresTarget 缺少目标语言
func TestNewRequiresTarget(t *testing.T) {
	if _, err := New(nil, contract.Languages{Source: "English"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}

// TestEstimateOverhead 测试开销估算
func TestEstimateOverhead(t *testing.T) {
	b, _ := New(&Options{InlineGlossary: "a:b"}, langs)
	withGlos := b.EstimateOverheadTokens(func(s string) int { return len(s) })
	if withGlos == 0 {
		t.Fatalf("expect positive estimate")
	}
	plain, _ := New(nil, langs)
	if plain.EstimateOverheadTokens(func(s string) int { return len(s) }) >= withGlos {
		t.Fatalf("术语表应增加开销")
	}
	if b.EstimateOverheadTokens(nil) != 0 {
		t.Fatalf("nil estimator 应为 0")
	}
}

// TestBuildWithGlossary 测试术语表追加
func TestBuildWithGlossary(t *testing.T) {
	b, _ := New(&Options{InlineGlossary: "t1"}, langs)
	p, err := b.Build(context.Background(), tagged(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp := p.(contract.ChatPrompt)
	if !strings.HasSuffix(cp[0].Content, "<glossary>\nt1\n</glossary>") {
		t.Fatalf("glossary not appended: %q", cp[0].Content)
	}
}

// TestInlineTemplates 内联模板可访问语言与分组
func TestInlineTemplates(t *testing.T) {
	b, err := New(&Options{
		InlineSystemTemplate: "{{.Source}}>{{.Target}}",
		InlineTaskTemplate:   "[{{.Chunk}}]",
	}, langs)
	if err != nil {
		t.Fatalf("new inline: %v", err)
	}
	p, _ := b.Build(context.Background(), tagged(t))
	cp := p.(contract.ChatPrompt)
	if cp[0].Content != "English>简体中文" || cp[1].Content != "[T1<T>T2]" {
		t.Fatalf("unexpected render %#v", cp)
	}
}

// TestNewTemplatePathGlossaryPath 从文件加载
func TestNewTemplatePathGlossaryPath(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys.txt")
	task := filepath.Join(dir, "task.txt")
	glos := filepath.Join(dir, "g.txt")
	os.WriteFile(sys, []byte("s"), 0o644)
	os.WriteFile(task, []byte("u {{.Chunk}}"), 0o644)
	os.WriteFile(glos, []byte("g"), 0o644)
	b, err := New(&Options{SystemTemplatePath: sys, TaskTemplatePath: task, GlossaryPath: glos}, langs)
	if err != nil || b.glos != "g" {
		t.Fatalf("new file: %v", err)
	}
	p, _ := b.Build(context.Background(), tagged(t))
	if cp := p.(contract.ChatPrompt); cp[1].Content != "u T1<T>T2" {
		t.Fatalf("unexpected task %q", cp[1].Content)
	}
}

// TestNewErrors 文件缺失与模板语法错误
func TestNewErrors(t *testing.T) {
	if _, err := New(&Options{SystemTemplatePath: filepath.Join(t.TempDir(), "none")}, langs); err == nil {
		t.Fatalf("expect read error")
	}
	if _, err := New(&Options{InlineTaskTemplate: "{{.Chunk"}, langs); err == nil {
		t.Fatalf("expect parse error")
	}
	if _, err := New(&Options{GlossaryPath: filepath.Join(t.TempDir(), "none")}, langs); err == nil {
		t.Fatalf("expect glossary error")
	}
}

// TestBuildRenderError 模板引用不存在的字段
func TestBuildRenderError(t *testing.T) {
	b, err := New(&Options{InlineTaskTemplate: "{{.Missing}}"}, langs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := b.Build(context.Background(), tagged(t)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want render error, got %v", err)
	}
}
