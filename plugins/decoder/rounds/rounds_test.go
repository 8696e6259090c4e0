package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"subtrans/pkg/contract"
)

const fourRounds = "[Literal]\n```\nwhere<T>here\n```\n\n[Idiomatic]\nWhere<T>Here\n\n[Critique]\n- fine\n\n[Refined]\n```\n哪里？<T>这里\n```\nHope this helps."

// TestDecodeRefined 标签定位，忽略围栏后的附言
func TestDecodeRefined(t *testing.T) {
	d, _ := New(nil)
	got, err := d.Decode(context.Background(), contract.Raw{Text: fourRounds})
	if err != nil || got != "哪里？<T>这里" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

// TestDecodeNoLabel 缺少精修标签
func TestDecodeNoLabel(t *testing.T) {
	d, _ := New(nil)
	_, err := d.Decode(context.Background(), contract.Raw{Text: "[Literal]\n```\na\n```"})
	if !errors.Is(err, contract.ErrNoTranslation) {
		t.Fatalf("只有直译轮的围栏不应被采用, got %v", err)
	}
}

// TestDecodeUnfenced 精修轮无围栏
func TestDecodeUnfenced(t *testing.T) {
	raw := contract.Raw{Text: "[Refined]\n  A<T>B \n"}
	d, _ := New(nil)
	if _, err := d.Decode(context.Background(), raw); !errors.Is(err, contract.ErrNoTranslation) {
		t.Fatalf("默认应要求围栏, got %v", err)
	}
	d, _ = New(json.RawMessage(`{"allow_unfenced":true}`))
	if got, err := d.Decode(context.Background(), raw); err != nil || got != "A<T>B" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

// TestDecodeCustomLabels 中文四轮输出（最终轮由说明文字引出）
func TestDecodeCustomLabels(t *testing.T) {
	raw := "【思考】本轮是直译。\n\n【翻译】\n你好<T>再见\n\n【思考】本轮提升根据建议修改。\n\n``` \n你好呀<T>回见\n```"
	d, _ := New(json.RawMessage(`{"refined_labels":["本轮提升"]}`))
	got, err := d.Decode(context.Background(), contract.Raw{Text: raw})
	if err != nil || got != "你好呀<T>回见" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

// TestRefinedPicksLast 多个标签取最后出现的位置
func TestRefinedPicksLast(t *testing.T) {
	r, ok := Refined("[Refined] a 【精修】 b", DefaultRefinedLabels)
	if !ok || r.Label != "【精修】" || r.Body != " b" {
		t.Fatalf("unexpected %+v", r)
	}
	if _, ok := Refined("none", DefaultRefinedLabels); ok {
		t.Fatalf("不应命中")
	}
}

// TestFirstUnclosed 未闭合围栏取到结尾
func TestFirstUnclosed(t *testing.T) {
	got, err := First("intro\n```\nA<T>B")
	if err != nil || got != "A<T>B" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if _, err := First("``` \n ```"); !errors.Is(err, contract.ErrNoTranslation) {
		t.Fatalf("空围栏应报错, got %v", err)
	}
}

// TestDecodeRefinedSingleLine 精修块首行即译文
func TestDecodeRefinedSingleLine(t *testing.T) {
	raw := "【直译】```Salut```\n【反思】Critique: wording is stiff.\n【精修】```Bonjour\n```"
	d, _ := New(nil)
	got, err := d.Decode(context.Background(), contract.Raw{Text: raw})
	if err != nil || got != "Bonjour" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if v, err := First("```text\nA<T>B\n```"); err != nil || v != "A<T>B" {
		t.Fatalf("语言标记应剥离: %q %v", v, err)
	}
}
