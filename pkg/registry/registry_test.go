package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"subtrans/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
	})
	t.Run("source", func(t *testing.T) {
		if _, err := Source["srt"](json.RawMessage(`{"allow_exts":[".srt"]}`)); err != nil {
			t.Fatalf("source: %v", err)
		}
		if _, err := Source["srt"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("source 未对未知字段报错")
		}
		if _, err := Source["astisub"](json.RawMessage(`{"empty_as_text":true}`)); err != nil {
			t.Fatalf("astisub: %v", err)
		}
		if _, err := Source["astisub"](json.RawMessage(`{"max_fragment_bytes":1}`)); err == nil {
			t.Fatalf("astisub 未对未知字段报错")
		}
	})
	t.Run("kind", func(t *testing.T) {
		k, err := Kind["timed"](nil)
		if err != nil || k.Name() != "timed" {
			t.Fatalf("kind: %v", err)
		}
		if _, err := Kind["timed"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("kind 未对未知字段报错")
		}
	})
	t.Run("prompt", func(t *testing.T) {
		langs := contract.Languages{Source: "English", Target: "Chinese"}
		pb, err := PromptBuilder["translate"](json.RawMessage(`{}`), langs)
		if err != nil {
			t.Fatalf("prompt: %v", err)
		}
		if _, err := pb.Build(context.Background(), contract.Tagged{Text: contract.TagOpen + "a" + contract.TagClose, Chunk: "a"}); err != nil {
			t.Fatalf("build: %v", err)
		}
		if _, err := PromptBuilder["translate"](json.RawMessage(`{"x":1}`), langs); err == nil {
			t.Fatalf("prompt 未对未知字段报错")
		}
		if _, err := PromptBuilder["translate"](nil, contract.Languages{}); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("缺少目标语言应报错: %v", err)
		}
	})
	t.Run("decoder", func(t *testing.T) {
		for _, name := range []string{"fenced", "rounds"} {
			d, err := Decoder[name](json.RawMessage(`{}`))
			if err != nil {
				t.Fatalf("decoder %s: %v", name, err)
			}
			got, err := d.Decode(context.Background(), contract.Raw{Text: "[Refined]\n```\nhi\n```"})
			if err != nil || got != "hi" {
				t.Fatalf("decoder %s: %q %v", name, got, err)
			}
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		bad := json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp))
		if _, err := Writer["fs"](bad); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
	})
	t.Run("llm-local", func(t *testing.T) {
		for _, name := range []string{"mock", "flaky"} {
			if _, err := LLMClient[name](json.RawMessage(`{}`)); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}
	})
	t.Run("llm-openai", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		if _, err := LLMClient["openai"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("openai 未按预期报错: %v", err)
		}
	})
	t.Run("llm-gemini", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		if _, err := LLMClient["gemini"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("gemini 未按预期报错: %v", err)
		}
	})
}
