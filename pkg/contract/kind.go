package contract

import (
	"context"
	"io"
)

// Source: 将单文件字节流解析为有序 RawEntry（字幕格式适配层）。
// 约束：不跨文件合并；无内部并发；仅做 CRLF→LF 与 BOM 的最小归一。
type Source interface {
	Parse(ctx context.Context, fileID FileID, r io.Reader) ([]RawEntry, error)
}

// Kind: 一类时间码文本的处理能力集合（抽取/分组/合并）。
// 编排层只依赖该接口，新增格式时实现一个新的 Kind 即可。
type Kind interface {
	Name() string
	Extract(entries []RawEntry) (Columns, error)
	Split(texts []string, groupSize int) ([]string, error)
	// NewMerger 以 cursor 为起点构造合并器；全新运行时 cursor=0。
	NewMerger(cols Columns, cursor int) Merger
	// Assemble 将按序合并出的各组输出块拼接为完整文档。
	Assemble(blocks []string) io.Reader
}

// Merger: 游标式合并器。必须按分组顺序调用，非并发安全。
type Merger interface {
	// Combine 合并一组原文与译文，返回该组的输出块。
	Combine(chunk, translated string) (string, error)
	// Flag 将一组标记为未翻译（仅输出原文），并记录原因。
	Flag(chunk, reason string) (string, error)
	Cursor() int
	Warnings() []MergeMismatchWarning
	// Finish 校验游标恰好走完全部条目。
	Finish() error
}

// Reader: 输入源抽象（文件/目录/STDIN），按文件回调只读字节流。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}

// ArtifactID: 输出工件标识；实现上与 FileID 共用表示。
type ArtifactID = FileID

// Writer: 将结果流式持久化；同一 ArtifactID 单写者，错误直接上抛不重试。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
