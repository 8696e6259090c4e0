package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径为跨平台稳定的 FileID：反斜杠转正斜杠后 path.Clean。
// 保留相对/绝对语义，不做隐式绝对化。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// OutputName 依据输入标识与目标语言生成输出工件名：<stem>_<lang><ext>。
// 无扩展名时使用 .srt。目录部分保持不变。
func OutputName(id FileID, lang string) ArtifactID {
	s := string(id)
	dir, base := path.Split(s)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".srt"
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ArtifactID(dir + stem + ext)
	}
	return ArtifactID(dir + stem + "_" + lang + ext)
}
