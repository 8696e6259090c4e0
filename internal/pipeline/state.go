package pipeline

import (
	"fmt"

	"subtrans/pkg/contract"
)

// Checkpoint 是一次已提交合并的位置：第 ChunkIndex 组（0 起）已合并，
// Cursor 为此时 Merger 的游标。整数分组下标是唯一的续跑凭据，不按内容查找。
type Checkpoint struct {
	FileID     contract.FileID `json:"file_id"`
	ChunkIndex int             `json:"chunk_index"`
	ChunkCount int             `json:"chunk_count"`
	Cursor     int             `json:"cursor"`
}

// IsTerminal 报告是否已合并最后一组。
func (c Checkpoint) IsTerminal() bool {
	return c.ChunkCount > 0 && c.ChunkIndex == c.ChunkCount-1
}

// Next 返回下一组的下标；已是最后一组时返回 false。
func (c Checkpoint) Next() (int, bool) {
	if c.IsTerminal() {
		return 0, false
	}
	return c.ChunkIndex + 1, true
}

// resumePoint 校验检查点与当前文档是否吻合，返回起始分组与游标。
// 无检查点（或 FileID 不匹配）时从头开始。
func resumePoint(cp *Checkpoint, fileID contract.FileID, chunkCount, entries int) (start, cursor int, resumed bool, err error) {
	if cp == nil || (cp.FileID != "" && cp.FileID != fileID) {
		return 0, 0, false, nil
	}
	if cp.ChunkCount != chunkCount {
		return 0, 0, false, fmt.Errorf("%w: checkpoint has %d chunks, document has %d", contract.ErrInvalidInput, cp.ChunkCount, chunkCount)
	}
	if cp.ChunkIndex < 0 || cp.ChunkIndex >= chunkCount || cp.Cursor < 0 || cp.Cursor > entries {
		return 0, 0, false, fmt.Errorf("%w: checkpoint chunk %d cursor %d", contract.ErrInvalidInput, cp.ChunkIndex, cp.Cursor)
	}
	next, ok := cp.Next()
	if !ok {
		next = chunkCount
	}
	return next, cp.Cursor, true, nil
}
