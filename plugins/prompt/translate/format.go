package translate

import (
	"strings"

	"subtrans/pkg/contract"
)

// Format 以第 i 组为翻译目标，其余分组作为上下文原样拼接（无分隔）：
//
//	chunks[:i] + TagOpen + chunks[i] + TagClose + chunks[i+1:]
//
// i 越界返回 *contract.IndexOutOfRangeError。纯函数。
func Format(i int, chunks []string) (contract.Tagged, error) {
	if i < 0 || i >= len(chunks) {
		return contract.Tagged{}, &contract.IndexOutOfRangeError{Where: "formatter", Index: i, Len: len(chunks)}
	}
	var sb strings.Builder
	n := len(contract.TagOpen) + len(contract.TagClose)
	for _, c := range chunks {
		n += len(c)
	}
	sb.Grow(n)
	for j, c := range chunks {
		if j == i {
			sb.WriteString(contract.TagOpen)
			sb.WriteString(c)
			sb.WriteString(contract.TagClose)
			continue
		}
		sb.WriteString(c)
	}
	return contract.Tagged{Index: i, Text: sb.String(), Chunk: chunks[i]}, nil
}

// Formatter 是 Format 的接口适配。
type Formatter struct{}

func (Formatter) Format(i int, chunks []string) (contract.Tagged, error) { return Format(i, chunks) }

var _ contract.Formatter = Formatter{}
