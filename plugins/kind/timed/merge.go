package timed

import (
	"fmt"
	"io"
	"strings"

	"subtrans/pkg/contract"
)

// Merger 按分组顺序把译文与序号/时间轴/原文对齐，输出双语记录。
// 游标只在这里推进；不做并发保护，调用方保证串行。
type Merger struct {
	cols     contract.Columns
	cursor   int
	warnings []contract.MergeMismatchWarning
}

// NewMerger 以 cursor 为起点构造合并器。
func NewMerger(cols contract.Columns, cursor int) *Merger {
	if cursor < 0 {
		cursor = 0
	}
	return &Merger{cols: cols, cursor: cursor}
}

// Combine 合并一组原文与译文。
// 段数一致：每条输出 序号/时间/译文/原文/空行；
// 段数不一致：每条输出 序号/时间/原文/空行，并记录一条告警。
// 两种情况游标都前进原文段数。
func (m *Merger) Combine(chunk, translated string) (string, error) {
	src := strings.Split(chunk, contract.Delimiter)
	dst := strings.Split(translated, contract.Delimiter)
	if len(src) != len(dst) {
		return m.fallback(src, contract.MergeMismatchWarning{
			SourceLines:     len(src),
			TranslatedLines: len(dst),
		})
	}
	if err := m.check(len(src)); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(src)*5)
	for j := range src {
		k := m.cursor + j
		lines = append(lines,
			m.cols.IDs[k],
			m.cols.Times[k],
			strings.TrimSpace(restore(dst[j])),
			restore(src[j]),
			"",
		)
	}
	m.cursor += len(src)
	return strings.Join(lines, "\n"), nil
}

// Flag 把一组按未翻译处理（仅原文），用于跳过策略或无译文的分组。
func (m *Merger) Flag(chunk, reason string) (string, error) {
	src := strings.Split(chunk, contract.Delimiter)
	return m.fallback(src, contract.MergeMismatchWarning{
		SourceLines: len(src),
		Reason:      reason,
	})
}

func (m *Merger) fallback(src []string, w contract.MergeMismatchWarning) (string, error) {
	if err := m.check(len(src)); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(src)*4)
	for j := range src {
		k := m.cursor + j
		lines = append(lines, m.cols.IDs[k], m.cols.Times[k], restore(src[j]), "")
	}
	w.From = m.cursor + 1
	w.To = m.cursor + len(src)
	m.warnings = append(m.warnings, w)
	m.cursor += len(src)
	return strings.Join(lines, "\n"), nil
}

// check 在写出前确认 [cursor, cursor+n) 全部落在列内。
func (m *Merger) check(n int) error {
	total := m.cols.Len()
	if last := m.cursor + n - 1; last >= total {
		return &contract.IndexOutOfRangeError{Where: "merger", Index: last, Len: total}
	}
	return nil
}

// Cursor 返回下一条待合并条目的 0 起下标。
func (m *Merger) Cursor() int { return m.cursor }

// Warnings 返回已记录告警的副本。
func (m *Merger) Warnings() []contract.MergeMismatchWarning {
	out := make([]contract.MergeMismatchWarning, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// Finish 要求游标恰好等于条目总数。
func (m *Merger) Finish() error {
	if m.cursor != m.cols.Len() {
		return fmt.Errorf("%w: merged %d of %d entries", contract.ErrInvariantViolation, m.cursor, m.cols.Len())
	}
	return nil
}

var _ contract.Merger = (*Merger)(nil)

// Assemble 将各组输出块按序拼接为完整文档，块与块之间补一个换行以恢复记录间空行。
func Assemble(blocks []string) io.Reader {
	if len(blocks) == 0 {
		return strings.NewReader("")
	}
	rs := make([]io.Reader, 0, len(blocks)*2)
	for i, b := range blocks {
		if i > 0 {
			rs = append(rs, strings.NewReader("\n"))
		}
		rs = append(rs, strings.NewReader(b))
	}
	return io.MultiReader(rs...)
}
