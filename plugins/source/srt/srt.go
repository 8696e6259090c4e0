package srt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"subtrans/pkg/contract"
)

// Options 为 SRT Source 的可选配置（最小必要）。
type Options struct {
	// MaxFragmentBytes: 单条文本最大字节数。0 表示不限制。
	MaxFragmentBytes int `json:"max_fragment_bytes"`
	// AllowExts: 允许处理的文件扩展名（大小写不敏感，包含点，如 [".srt"]）。
	// 为空时采用默认 [".srt"]；显式设为空切片则表示不限制。
	AllowExts []string `json:"allow_exts"`
	// EmptyAsText: 没有文本行的条目按空串处理；默认 false，即视为缺少文本。
	EmptyAsText bool `json:"empty_as_text"`
}

// Source 实现 SRT 解析。
type Source struct {
	maxBytes  int
	allow     map[string]struct{}
	emptyText bool
}

// New 创建 SRT Source。
func New(opts *Options) *Source {
	s := &Source{}
	if opts != nil && opts.MaxFragmentBytes > 0 {
		s.maxBytes = opts.MaxFragmentBytes
	}
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

var timeLineRe = regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2,}):(\d{2}):(\d{2})[,.](\d{3})`)

const bom = "\uFEFF"

// Parse 将单个 SRT 文件解析为 []RawEntry。
// 扩展名不在允许列表内时返回 contract.ErrSkipFile。
func (s *Source) Parse(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.RawEntry, error) {
	if s.allow != nil && fileID != "stdin" {
		ext := strings.ToLower(path.Ext(string(fileID)))
		if _, ok := s.allow[ext]; !ok {
			return nil, contract.ErrSkipFile
		}
	}
	br := bufio.NewReader(r)
	var entries []contract.RawEntry
	first := true

	for {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		// 读取一个块：序号行、时间轴行、文本若干行，空行结束
		seqLine, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if first {
			seqLine = strings.TrimPrefix(seqLine, bom)
			first = false
		}
		if eof {
			break
		}
		if strings.TrimSpace(seqLine) == "" { // 跳过多余空行
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(seqLine)); err != nil {
			return nil, fmt.Errorf("srt format error: invalid sequence line: %q: %w", seqLine, contract.ErrInvalidInput)
		}

		timeLine, _, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		start, end, err := parseTimeLine(timeLine)
		if err != nil {
			return nil, err
		}

		var texts []string
		sumBytes := 0
		for {
			line, _, err := readTrimmedLine(br)
			if err != nil {
				return nil, err
			}
			if line == "" {
				break
			}
			// 预测 join 后的大小（分隔符个数为当前行数）
			if s.maxBytes > 0 {
				predicted := sumBytes + len(line) + len(texts)
				if predicted > s.maxBytes {
					return nil, fmt.Errorf("fragment too large: %d > %d: %w", predicted, s.maxBytes, contract.ErrBudgetExceeded)
				}
			}
			texts = append(texts, line)
			sumBytes += len(line)
		}

		entry := contract.RawEntry{Start: start, End: end}
		if len(texts) > 0 || s.emptyText {
			text := strings.Join(texts, "\n")
			// UTF-8 校验（最小必要：非法字节快速失败）
			if !utf8.ValidString(text) {
				return nil, fmt.Errorf("decode error: invalid UTF-8 in entry %s: %w", seqLine, contract.ErrInvalidInput)
			}
			entry.Line = &text
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseTimeLine(s string) (time.Duration, time.Duration, error) {
	m := timeLineRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("srt format error: invalid time line: %q: %w", s, contract.ErrInvalidInput)
	}
	return stamp(m[1:5]), stamp(m[5:9]), nil
}

func stamp(p []string) time.Duration {
	h, _ := strconv.Atoi(p[0])
	mi, _ := strconv.Atoi(p[1])
	se, _ := strconv.Atoi(p[2])
	ms, _ := strconv.Atoi(p[3])
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute +
		time.Duration(se)*time.Second + time.Duration(ms)*time.Millisecond
}

// readTrimmedLine 读取一行，归一 CRLF→LF 并去除结尾换行；eof 仅在读到空且到达结尾时为真。
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			eof = true
		} else {
			return "", false, err
		}
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

var _ contract.Source = (*Source)(nil)
