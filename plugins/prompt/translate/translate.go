package translate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"subtrans/pkg/contract"
)

// Options 为字幕翻译 PromptBuilder 的最小配置。
// - InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置四轮模板）。
// - InlineTaskTemplate / TaskTemplatePath: user 任务模板（同上）。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	InlineTaskTemplate   string `json:"inline_task_template"`
	TaskTemplatePath     string `json:"task_template_path"`
	// 术语对照表（可选）：与 inline/path 一样的二选一优先级；若提供则自动拼接进 system 提示尾部。
	InlineGlossary string `json:"inline_glossary"`
	GlossaryPath   string `json:"glossary_path"`
}

// Builder: 以 Tagged 构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板与术语表在构造期加载。
type Builder struct {
	sysT  *template.Template
	taskT *template.Template
	glos  string
	langs contract.Languages
}

// View 是模板可见的数据。
type View struct {
	Source     string
	Target     string
	TaggedText string
	Chunk      string
	Delimiter  string
	Newline    string
}

// New 创建字幕翻译 PromptBuilder。
func New(opts *Options, langs contract.Languages) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if strings.TrimSpace(langs.Target) == "" {
		return nil, fmt.Errorf("prompt: %w: target language required", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(langs.Source) == "" {
		langs.Source = "the source language"
	}
	sysSrc, err := pick(o.InlineSystemTemplate, o.SystemTemplatePath, defaultSystemTemplate)
	if err != nil {
		return nil, fmt.Errorf("system template read: %w", err)
	}
	taskSrc, err := pick(o.InlineTaskTemplate, o.TaskTemplatePath, defaultTaskTemplate)
	if err != nil {
		return nil, fmt.Errorf("task template read: %w", err)
	}
	sysT, err := template.New("system").Parse(sysSrc)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	taskT, err := template.New("task").Parse(taskSrc)
	if err != nil {
		return nil, fmt.Errorf("task template parse: %w", err)
	}
	glos, err := pick(o.InlineGlossary, o.GlossaryPath, "")
	if err != nil {
		return nil, fmt.Errorf("glossary read: %w", err)
	}
	return &Builder{sysT: sysT, taskT: taskT, glos: glos, langs: langs}, nil
}

// pick: inline 优先，其次文件，最后默认值。
func pick(inline, path, def string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return def, nil
}

// Build: 基于 Tagged 构造 ChatPrompt（system+user）。
func (b *Builder) Build(ctx context.Context, t contract.Tagged) (contract.Prompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if t.Text == "" || !strings.Contains(t.Text, contract.TagOpen) {
		return nil, fmt.Errorf("prompt: %w: untagged context", contract.ErrInvalidInput)
	}
	v := b.view(t)
	sys, err := b.system(v)
	if err != nil {
		return nil, err
	}
	var uw bytes.Buffer
	uw.Grow(len(t.Text) + len(t.Chunk) + 512)
	if err := b.taskT.Execute(&uw, v); err != nil {
		return nil, fmt.Errorf("task render: %v: %w", err, contract.ErrInvalidInput)
	}
	return contract.ChatPrompt([]contract.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: uw.String()},
	}), nil
}

func (b *Builder) view(t contract.Tagged) View {
	return View{
		Source:     b.langs.Source,
		Target:     b.langs.Target,
		TaggedText: t.Text,
		Chunk:      t.Chunk,
		Delimiter:  contract.Delimiter,
		Newline:    contract.Newline,
	}
}

func (b *Builder) system(v View) (string, error) {
	var sysBuf bytes.Buffer
	if err := b.sysT.Execute(&sysBuf, v); err != nil {
		return "", fmt.Errorf("system render: %v: %w", err, contract.ErrInvalidInput)
	}
	sys := sysBuf.String()
	if b.glos == "" {
		return sys, nil
	}
	// 将术语对照表以 <glossary> 包裹追加至 system 尾部
	var sb strings.Builder
	sb.Grow(len(sys) + len(b.glos) + 32)
	sb.WriteString(sys)
	sb.WriteString("\n\n<glossary>\n")
	sb.WriteString(b.glos)
	if !strings.HasSuffix(b.glos, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString("</glossary>")
	return sb.String(), nil
}

// EstimateOverheadTokens: 估算与分组无关的固定提示开销（system+glossary+任务模板骨架）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	v := b.view(contract.Tagged{})
	sys, _ := b.system(v)
	var task bytes.Buffer
	_ = b.taskT.Execute(&task, v)
	return estimate(sys) + estimate(task.String())
}

var _ contract.PromptBuilder = (*Builder)(nil)

// 默认 system 模板：四轮流程，最终译文放在代码块中。
const defaultSystemTemplate = `
# Role: Senior subtitle translator ({{.Source}} -> {{.Target}})

## Background
You have translated subtitles for many feature films. You translate {{.Source}} subtitles into fluent, natural {{.Target}} that an ordinary viewer reads at a glance.

## Attention
- Faithfulness matters, but readability in {{.Target}} matters most.
- Avoid stiff literary wording and obscure allusions.
- Keep the line breaks and rhythm of poems and lyrics.
- The text is a subtitle track: read the whole context before translating the requested part.
- {{.Delimiter}} separates subtitle frames. Translate frame by frame and keep exactly one {{.Delimiter}} between frames. Do not add {{.Delimiter}} before the first frame or a newline after any frame.
- {{.Newline}} marks a line break inside one frame. Keep it where it makes sense.

## Workflow (all four rounds are required)
1. [Literal] Translate strictly frame by frame, dropping nothing.
2. [Idiomatic] Rewrite the literal version in plain, fluent {{.Target}}, keeping every {{.Delimiter}}.
3. [Critique] List concrete suggestions per frame covering accuracy, fluency, style and terminology.
4. [Refined] Apply the suggestions and produce the final subtitles, keeping every {{.Delimiter}}.

## Output format
- Start each round with its label on its own line: [Literal], [Idiomatic], [Critique], [Refined].
- In the [Refined] round, put ONLY the final {{.Target}} subtitles inside a single ` + "```" + ` code block without a language tag.
- Do not use code blocks in any other round.
`

// 默认任务模板。
const defaultTaskTemplate = `
Translate the text from {{.Source}} into {{.Target}}.

The source text is delimited by <SOURCE_TEXT> and </SOURCE_TEXT>:

<SOURCE_TEXT>

{{.TaggedText}}

</SOURCE_TEXT>

Translate ONLY the part delimited by <TRANSLATE_THIS> and </TRANSLATE_THIS>; use the rest as context.

Once more, translate only this part:

<TRANSLATE_THIS>

{{.Chunk}}

</TRANSLATE_THIS>
`
