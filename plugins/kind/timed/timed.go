// Package timed 处理逐行时间码文本（SRT 一类）：抽取三列、分组、游标合并。
package timed

import (
	"io"

	"subtrans/pkg/contract"
)

// Options: 当前无可配置项，保留以便注册表严格解码。
type Options struct{}

// Kind 是 contract.Kind 的时间码文本实现。
type Kind struct{}

// New 创建 timed Kind。
func New(_ *Options) *Kind { return &Kind{} }

func (*Kind) Name() string { return "timed" }

func (*Kind) Extract(entries []contract.RawEntry) (contract.Columns, error) {
	return Extract(entries)
}

func (*Kind) Split(texts []string, groupSize int) ([]string, error) {
	return Split(texts, groupSize)
}

func (*Kind) NewMerger(cols contract.Columns, cursor int) contract.Merger {
	return NewMerger(cols, cursor)
}

func (*Kind) Assemble(blocks []string) io.Reader { return Assemble(blocks) }

var _ contract.Kind = (*Kind)(nil)
