package contract

import (
	"fmt"
	"strings"
)

// 校验库函数（纯函数，无 I/O）。

// ValidateColumns 校验三列等长。
func ValidateColumns(c Columns) error {
	if len(c.IDs) != len(c.Times) || len(c.IDs) != len(c.Texts) {
		return fmt.Errorf("%w: columns length mismatch ids=%d times=%d texts=%d",
			ErrInvariantViolation, len(c.IDs), len(c.Times), len(c.Texts))
	}
	return nil
}

// ChunkSpan 返回第 chunk 组覆盖的 1 起条目区间（闭区间），total 为条目总数。
// 面向用户的错误与告警只使用条目区间，不暴露分组下标。
func ChunkSpan(chunk, groupSize, total int) (from, to int) {
	if groupSize <= 0 || chunk < 0 {
		return 0, 0
	}
	from = chunk*groupSize + 1
	to = from + groupSize - 1
	if to > total {
		to = total
	}
	return from, to
}

// CountLines 返回分组文本按 Delimiter 切分后的段数。
func CountLines(chunk string) int {
	return strings.Count(chunk, Delimiter) + 1
}
