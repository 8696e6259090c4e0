package contract

import (
	"fmt"
	"time"
)

// 协议常量：模型与合并器共享同一套标记，修改任一值都会破坏已有提示词模板。
const (
	// Newline: 单条字幕内部换行的占位符（保证一条字幕在分组文本中只占一段）。
	Newline = "<nl>"
	// Delimiter: 分组内相邻字幕之间的分隔标记。
	Delimiter = "<T>"
	// TagOpen/TagClose: 上下文中待翻译分组的包裹标记。
	TagOpen  = "<TRANSLATE_THIS>"
	TagClose = "</TRANSLATE_THIS>"
	// Fence: 模型最终译文所在代码块的围栏。
	Fence = "```"
)

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// RawEntry: 字幕源解析出的单条原始记录。
// Line 为 nil 表示该条缺少文本（抽取阶段会失败）；空串是合法文本。
type RawEntry struct {
	Start time.Duration
	End   time.Duration
	Line  *string
}

// Columns: 抽取后的三列平行数组，运行期长度恒等。
//   - IDs:   1 起的序号（"1","2",...）
//   - Times: "HH:MM:SS,mmm --> HH:MM:SS,mmm"
//   - Texts: 内部换行已替换为 Newline
type Columns struct {
	IDs   []string
	Times []string
	Texts []string
}

// Len 返回条目数（以 IDs 为准）。
func (c Columns) Len() int { return len(c.IDs) }

// Tagged: 一次翻译请求的上下文载荷。
// Text 为全量分组拼接且 Index 组被 TagOpen/TagClose 包裹；Chunk 为原样的目标分组。
type Tagged struct {
	Index int
	Text  string
	Chunk string
}

// FormatTimestamp 以 SRT 形式输出时间点：HH:MM:SS,mmm。
// 负值按 0 处理；小时不封顶。
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatTimeRange 输出 "start --> end"。
func FormatTimeRange(start, end time.Duration) string {
	return FormatTimestamp(start) + " --> " + FormatTimestamp(end)
}
