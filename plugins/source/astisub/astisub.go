// Package astisub 基于 go-astisub 的 SRT Source，作为内置解析器之外的可选实现。
// 行内样式标签（如 <i>）由 astisub 解析并丢弃，仅保留纯文本。
package astisub

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	asub "github.com/asticode/go-astisub"

	"subtrans/pkg/contract"
)

// Options 可选配置。
type Options struct {
	// AllowExts: 同 srt Source；nil 时默认 [".srt"]，空切片不限制。
	AllowExts []string `json:"allow_exts"`
	// EmptyAsText: 没有文本行的条目按空串处理。
	EmptyAsText bool `json:"empty_as_text"`
}

type Source struct {
	allow     map[string]struct{}
	emptyText bool
}

func New(opts *Options) *Source {
	s := &Source{}
	if opts != nil {
		s.emptyText = opts.EmptyAsText
	}
	switch {
	case opts == nil || opts.AllowExts == nil:
		s.allow = map[string]struct{}{".srt": {}}
	case len(opts.AllowExts) > 0:
		s.allow = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e != "" {
				s.allow[strings.ToLower(e)] = struct{}{}
			}
		}
	}
	return s
}

// Parse 读取整个 SRT 并转换为 []RawEntry；多个 Line 以 "\n" 连接。
func (s *Source) Parse(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.allow != nil && fileID != "stdin" {
		if _, ok := s.allow[strings.ToLower(path.Ext(string(fileID)))]; !ok {
			return nil, contract.ErrSkipFile
		}
	}
	subs, err := asub.ReadFromSRT(trimBOM(r))
	if err != nil {
		return nil, fmt.Errorf("srt format error: %v: %w", err, contract.ErrInvalidInput)
	}
	entries := make([]contract.RawEntry, 0, len(subs.Items))
	for _, it := range subs.Items {
		e := contract.RawEntry{Start: it.StartAt, End: it.EndAt}
		if len(it.Lines) > 0 || s.emptyText {
			lines := make([]string, 0, len(it.Lines))
			for _, l := range it.Lines {
				var b strings.Builder
				for _, li := range l.Items {
					b.WriteString(li.Text)
				}
				lines = append(lines, b.String())
			}
			text := strings.Join(lines, "\n")
			e.Line = &text
		}
		entries = append(entries, e)
	}
	return entries, ctx.Err()
}

// trimBOM 去掉开头的 UTF-8 BOM。
func trimBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\uFEFF" {
		_, _ = br.Discard(3)
	}
	return br
}

var _ contract.Source = (*Source)(nil)
