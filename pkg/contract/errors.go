package contract

import (
	"errors"
	"fmt"
)

// 哨兵错误：上层统一以 errors.Is 判定，不做字符串匹配。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")

	ErrMissingText     = errors.New("missing text")
	ErrEmptyInput      = errors.New("empty input")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrBackend         = errors.New("backend failure")
	ErrNoTranslation   = errors.New("no translation found")

	// ErrSkipFile: Source 判定该文件不属于本格式（如扩展名不符），编排层跳过且不写出。
	ErrSkipFile = errors.New("skip file")
)

// MissingTextError: 第 Index 条（0 起）字幕没有文本。
type MissingTextError struct {
	Index int
}

func (e *MissingTextError) Error() string {
	return fmt.Sprintf("entry %d: missing text", e.Index+1)
}

func (e *MissingTextError) Unwrap() error { return ErrMissingText }

// EmptyInputError: 拆分阶段收到空文本序列。
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	if e.What == "" {
		return "empty input"
	}
	return "empty input: " + e.What
}

func (e *EmptyInputError) Unwrap() error { return ErrEmptyInput }

// IndexOutOfRangeError: 分组下标或合并游标越界。属于内部不变量违例，不重试。
type IndexOutOfRangeError struct {
	Where string // formatter|merger
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0,%d)", e.Where, e.Index, e.Len)
}

func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange || target == ErrInvariantViolation
}

// BackendError: 翻译后端不可用/超时/拒绝。Err 保留底层原因。
type BackendError struct {
	From, To int // 1 起的条目区间（闭区间）；未知时为 0
	Err      error
}

func (e *BackendError) Error() string {
	if e.From > 0 {
		return fmt.Sprintf("backend failed for entries %d-%d: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("backend failed: %v", e.Err)
}

func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Err} }

// NoTranslationFoundError: 响应中没有任何非空围栏代码块。
type NoTranslationFoundError struct {
	From, To int
}

func (e *NoTranslationFoundError) Error() string {
	if e.From > 0 {
		return fmt.Sprintf("no translation found for entries %d-%d", e.From, e.To)
	}
	return "no translation found"
}

func (e *NoTranslationFoundError) Unwrap() error { return ErrNoTranslation }

// MergeMismatchWarning: 某分组的译文段数与原文不一致，已按原文回退输出。
// 非致命；From/To 为 1 起的条目编号。
type MergeMismatchWarning struct {
	From            int
	To              int
	SourceLines     int
	TranslatedLines int
	Reason          string
}

func (w MergeMismatchWarning) String() string {
	if w.Reason != "" {
		return fmt.Sprintf("entries %d-%d left untranslated: %s", w.From, w.To, w.Reason)
	}
	return fmt.Sprintf("entries %d-%d left untranslated: %d source lines, %d translated", w.From, w.To, w.SourceLines, w.TranslatedLines)
}
