package timed

import (
	"strconv"
	"strings"

	"subtrans/pkg/contract"
)

// Extract 将原始条目拆为三列平行数组。
// 序号为 index+1；时间为 "start --> end"；文本换行替换为 Newline。
// 任一条目缺少文本即失败，返回 *contract.MissingTextError。
func Extract(entries []contract.RawEntry) (contract.Columns, error) {
	cols := contract.Columns{
		IDs:   make([]string, 0, len(entries)),
		Times: make([]string, 0, len(entries)),
		Texts: make([]string, 0, len(entries)),
	}
	for i, e := range entries {
		if e.Line == nil {
			return contract.Columns{}, &contract.MissingTextError{Index: i}
		}
		cols.IDs = append(cols.IDs, strconv.Itoa(i+1))
		cols.Times = append(cols.Times, contract.FormatTimeRange(e.Start, e.End))
		cols.Texts = append(cols.Texts, encodeNewlines(*e.Line))
	}
	return cols, nil
}

func encodeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", contract.Newline)
}

// restore 把 Newline 还原为真实换行。
func restore(s string) string {
	return strings.ReplaceAll(s, contract.Newline, "\n")
}
