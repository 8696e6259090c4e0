package diag

import (
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 为组件级结构化日志器：单行 JSON，字段固定
// （level/ts/corr_id/comp/stage/code/dur_ms/count/file_id/chunk/msg/kv）。
// 底层为 zap，默认写入 logs/ 下的 lumberjack 轮转文件。
type Logger struct {
	z    *zap.Logger
	sink *lumberjack.Logger
}

// NewLogger 通过配置的 level 初始化，写入 logs/subtrans-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewLogFile("logs", DefaultLogMaxMB, DefaultLogBackups)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入任意 io.Writer（测试与 serve 模式使用）。
func NewLoggerTo(corrID, level string, w io.Writer) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTime,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), parseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// NewNop 返回丢弃一切输出的日志器。
func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

func utcTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With 返回附加固定字段的子日志器（如 serve 模式的 request_id）。
func (l *Logger) With(key, val string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{z: l.z.With(zap.String(key, val)), sink: l.sink}
}

// Sync 刷新底层输出并关闭轮转文件。
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Event 为一条事件的可选字段。
type Event struct {
	Comp   string
	Stage  string // start|finish|error|warn
	Code   string
	Dur    time.Duration
	Count  int64
	FileID string
	Chunk  string
	KV     map[string]string
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fs = append(fs, zap.String("code", ev.Code))
	}
	if ev.Dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.Dur.Milliseconds()))
	}
	if ev.Count != 0 {
		fs = append(fs, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fs = append(fs, zap.String("file_id", ev.FileID))
	}
	if ev.Chunk != "" {
		fs = append(fs, zap.String("chunk", ev.Chunk))
	}
	if len(ev.KV) > 0 {
		fs = append(fs, zap.Object("kv", kvObject(ev.KV)))
	}
	return fs
}

// kvObject 以稳定键序输出 kv。
type kvObject map[string]string

func (m kvObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, m[k])
	}
	return nil
}

func (l *Logger) log(lv zapcore.Level, msg string, ev Event) {
	if l == nil {
		return
	}
	if ce := l.z.Check(lv, msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// StartWith 记录带 file_id/chunk 的 start；返回计时器用于 Finish。
func (l *Logger) StartWith(comp, msg, fileID, chunk string) *Timer {
	l.log(zapcore.InfoLevel, msg, Event{Comp: comp, Stage: "start", FileID: fileID, Chunk: chunk})
	return &Timer{l: l, comp: comp, fileID: fileID, chunk: chunk, t0: time.Now()}
}

// ErrorWith 记录 error 事件。
func (l *Logger) ErrorWith(comp, code, msg string, since *time.Time, fileID, chunk string) {
	l.ErrorWithKV(comp, code, msg, since, fileID, chunk, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, since *time.Time, fileID, chunk string, kv map[string]string) {
	var dur time.Duration
	if since != nil {
		dur = time.Since(*since)
	}
	l.log(zapcore.ErrorLevel, msg, Event{Comp: comp, Stage: "error", Code: code, Dur: dur, FileID: fileID, Chunk: chunk, KV: kv})
}

// Warn 记录非致命告警（如合并段数不一致、找不到译文而标记的分组）。
func (l *Logger) Warn(comp, code, msg, fileID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, msg, Event{Comp: comp, Stage: "warn", Code: code, FileID: fileID, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, msg, Event{Comp: comp, Stage: "finish", Dur: time.Since(start), Count: count})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, chunk string, kv map[string]string) {
	l.log(zapcore.DebugLevel, msg, Event{Comp: comp, Stage: "start", FileID: fileID, Chunk: chunk, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	chunk  string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, msg, Event{Comp: t.comp, Stage: "finish", Dur: time.Since(t.t0), Count: count, FileID: t.fileID, Chunk: t.chunk})
}
