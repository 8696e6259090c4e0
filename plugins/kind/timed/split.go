package timed

import (
	"fmt"
	"strings"

	"subtrans/pkg/contract"
)

// DefaultGroupSize 每组字幕条数。
const DefaultGroupSize = 20

// Split 按 groupSize 条一组拼接文本，组内以 Delimiter 连接。
// 共 ceil(n/groupSize) 组，顺序与输入一致。
func Split(texts []string, groupSize int) ([]string, error) {
	if len(texts) == 0 {
		return nil, &contract.EmptyInputError{What: "no subtitle text to split"}
	}
	if groupSize <= 0 {
		return nil, fmt.Errorf("split: %w: group size %d", contract.ErrInvalidInput, groupSize)
	}
	n := (len(texts) + groupSize - 1) / groupSize
	chunks := make([]string, 0, n)
	for i := 0; i < len(texts); i += groupSize {
		end := i + groupSize
		if end > len(texts) {
			end = len(texts)
		}
		chunks = append(chunks, strings.Join(texts[i:end], contract.Delimiter))
	}
	return chunks, nil
}
