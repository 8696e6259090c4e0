package registry

import (
	"bytes"
	"encoding/json"

	"subtrans/pkg/contract"
	"subtrans/plugins/decoder/fenced"
	"subtrans/plugins/decoder/rounds"
	"subtrans/plugins/kind/timed"
	flaky "subtrans/plugins/llmclient/flaky"
	gmi "subtrans/plugins/llmclient/gemini"
	mock "subtrans/plugins/llmclient/mock"
	oai "subtrans/plugins/llmclient/openai"
	ppt "subtrans/plugins/prompt/translate"
	rfs "subtrans/plugins/reader/filesystem"
	asub "subtrans/plugins/source/astisub"
	ssrt "subtrans/plugins/source/srt"
	wfs "subtrans/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.Source, error)

// NewKind 工厂签名：接收原样 JSON Options。
type NewKind func(raw json.RawMessage) (contract.Kind, error)

// NewPromptBuilder 工厂签名：Options 之外还需要源/目标语言，每次运行（或每个 HTTP 请求）构造一次。
type NewPromptBuilder func(raw json.RawMessage, langs contract.Languages) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Source 工厂注册表。
var Source = map[string]NewSource{
	// srt: SubRip 解析为 RawEntry
	"srt": func(raw json.RawMessage) (contract.Source, error) {
		var opts ssrt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ssrt.New(&opts), nil
	},
	// astisub: 基于 go-astisub 解析，丢弃行内样式
	"astisub": func(raw json.RawMessage) (contract.Source, error) {
		var opts asub.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return asub.New(&opts), nil
	},
}

// Kind 工厂注册表。
var Kind = map[string]NewKind{
	// timed: 时间码文本（编号 + 时间区间 + 文本）
	"timed": func(raw json.RawMessage) (contract.Kind, error) {
		var opts timed.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return timed.New(&opts), nil
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// translate: 全文上下文 + 目标分组的四轮翻译提示
	"translate": func(raw json.RawMessage, langs contract.Languages) (contract.PromptBuilder, error) {
		var opts ppt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ppt.New(&opts, langs)
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": func(raw json.RawMessage) (contract.LLMClient, error) { return oai.New(raw) },
	"gemini": func(raw json.RawMessage) (contract.LLMClient, error) { return gmi.New(raw) },
	"mock":   func(raw json.RawMessage) (contract.LLMClient, error) { return mock.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.LLMClient, error) { return flaky.New(raw) },
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// fenced: 取响应中最后一个非空围栏代码块
	"fenced": func(raw json.RawMessage) (contract.Decoder, error) { return fenced.New(raw) },
	// rounds: 按轮次标签定位精修稿，再取其中的代码块
	"rounds": func(raw json.RawMessage) (contract.Decoder, error) { return rounds.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
