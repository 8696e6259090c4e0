package diag

import (
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 轮转文件命名：当前文件固定为 subtrans-current.txt，历史文件为 subtrans-current-<时间戳>.txt。
const (
	logPrefix  = "subtrans-"
	currentLog = logPrefix + "current.txt"
)

// 默认轮转参数。
const (
	DefaultLogMaxMB   = 10
	DefaultLogBackups = 5
)

// NewLogFile 返回按大小轮转的日志文件（作为 zap 的 WriteSyncer），时间戳使用 UTC。
// maxMB<=0 或 keep<0 时使用默认值；keep==0 表示不清理历史文件。
func NewLogFile(dir string, maxMB, keep int) *lumberjack.Logger {
	if maxMB <= 0 {
		maxMB = DefaultLogMaxMB
	}
	if keep < 0 {
		keep = DefaultLogBackups
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, currentLog),
		MaxSize:    maxMB,
		MaxBackups: keep,
	}
}
