package service

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"ragchat-go/internal/model"
)

func hit(id, content string) model.SearchHit {
	return model.SearchHit{DocumentID: id, Content: content, Score: 0.9}
}

func TestAssembleContext_PreservesHitOrder(t *testing.T) {
	hits := []model.SearchHit{
		hit("doc_b", "second ranked"),
		hit("doc_a", "first ranked"),
		hit("doc_c", "third ranked"),
	}

	text, used := assembleContext(hits, 1000)

	want := "second ranked\n\nfirst ranked\n\nthird ranked"
	if text != want {
		t.Errorf("context = %q, want %q", text, want)
	}
	if !reflect.DeepEqual(used, []string{"doc_b", "doc_a", "doc_c"}) {
		t.Errorf("used ids = %v, want hit order", used)
	}
}

func TestAssembleContext_NeverExceedsBudget(t *testing.T) {
	hits := []model.SearchHit{
		hit("doc_1", strings.Repeat("a", 40)),
		hit("doc_2", strings.Repeat("b", 40)),
		hit("doc_3", strings.Repeat("c", 40)),
	}

	for _, budget := range []int{1, 10, 41, 42, 50, 82, 84, 126, 1000} {
		text, _ := assembleContext(hits, budget)
		if n := utf8.RuneCountInString(text); n > budget {
			t.Errorf("budget %d: context has %d runes", budget, n)
		}
	}
}

func TestAssembleContext_TruncatesLastIncludedEntry(t *testing.T) {
	hits := []model.SearchHit{
		hit("doc_1", strings.Repeat("a", 10)),
		hit("doc_2", strings.Repeat("b", 10)),
	}

	// 10 runes of doc_1 + 2 rune delimiter + 3 runes of doc_2
	text, used := assembleContext(hits, 15)

	want := strings.Repeat("a", 10) + "\n\n" + "bbb"
	if text != want {
		t.Errorf("context = %q, want %q", text, want)
	}
	if !reflect.DeepEqual(used, []string{"doc_1", "doc_2"}) {
		t.Errorf("used ids = %v, truncated entry should still count as used", used)
	}
}

func TestAssembleContext_TopHitAlwaysIncludedWhenItFits(t *testing.T) {
	top := strings.Repeat("x", 100)
	hits := []model.SearchHit{
		hit("doc_top", top),
		hit("doc_2", strings.Repeat("y", 500)),
	}

	text, used := assembleContext(hits, 100)
	if text != top {
		t.Errorf("top hit not included in full: got %d runes", utf8.RuneCountInString(text))
	}
	if !reflect.DeepEqual(used, []string{"doc_top"}) {
		t.Errorf("used ids = %v, want only doc_top", used)
	}
}

func TestAssembleContext_OversizedTopHitTruncated(t *testing.T) {
	hits := []model.SearchHit{hit("doc_big", strings.Repeat("z", 200))}

	text, used := assembleContext(hits, 50)
	if text != strings.Repeat("z", 50) {
		t.Errorf("oversized top hit should be truncated to budget, got %q", text)
	}
	if !reflect.DeepEqual(used, []string{"doc_big"}) {
		t.Errorf("used ids = %v", used)
	}
}

func TestAssembleContext_CountsRunesNotBytes(t *testing.T) {
	// 每个汉字 3 字节但只算 1 个字符
	hits := []model.SearchHit{hit("doc_cn", "向量检索系统")}

	text, _ := assembleContext(hits, 4)
	if text != "向量检索" {
		t.Errorf("got %q, want first 4 runes", text)
	}
}

func TestAssembleContext_SkipsEmptyContent(t *testing.T) {
	hits := []model.SearchHit{
		hit("doc_empty", ""),
		hit("doc_real", "actual content"),
	}

	text, used := assembleContext(hits, 100)
	if text != "actual content" {
		t.Errorf("context = %q", text)
	}
	if !reflect.DeepEqual(used, []string{"doc_real"}) {
		t.Errorf("empty hit must not appear in used ids, got %v", used)
	}
}

func TestAssembleContext_EmptyInputs(t *testing.T) {
	if text, used := assembleContext(nil, 100); text != "" || used != nil {
		t.Errorf("nil hits: got %q, %v", text, used)
	}
	if text, used := assembleContext([]model.SearchHit{hit("a", "b")}, 0); text != "" || used != nil {
		t.Errorf("zero budget: got %q, %v", text, used)
	}
}

func TestAssembleContext_Deterministic(t *testing.T) {
	hits := []model.SearchHit{
		hit("doc_1", "alpha"),
		hit("doc_2", "beta"),
		hit("doc_3", "gamma"),
	}

	first, firstIDs := assembleContext(hits, 12)
	for i := 0; i < 10; i++ {
		text, ids := assembleContext(hits, 12)
		if text != first || !reflect.DeepEqual(ids, firstIDs) {
			t.Fatalf("run %d differs: %q %v vs %q %v", i, text, ids, first, firstIDs)
		}
	}
}

func TestDedupeOrdered(t *testing.T) {
	got := dedupeOrdered([]string{"b", "a", "b", "c", "a"})
	if !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("got %v", got)
	}

	if got := dedupeOrdered(nil); got == nil || len(got) != 0 {
		t.Errorf("nil input should yield empty non-nil slice, got %v", got)
	}
}
