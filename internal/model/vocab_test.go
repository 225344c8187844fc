package model

import (
	"reflect"
	"testing"
)

func testVocab() *Vocabulary {
	return newVocabulary([]string{"a", " a", "b", " b", "c", " c", "d", " d", "e", " e"})
}

func TestVocabularyLookup(t *testing.T) {
	v := testVocab()
	if v.Size() != 10 {
		t.Fatalf("Size = %d, want 10", v.Size())
	}
	if got := v.Text(3); got != " b" {
		t.Errorf("Text(3) = %q", got)
	}
	if got := v.Text(99); got != "" {
		t.Errorf("Text(99) = %q, want empty", got)
	}
	id, ok := v.ID(" c")
	if !ok || id != 5 {
		t.Errorf("ID(\" c\") = %d, %v", id, ok)
	}
}

func TestTokenizeGreedyLongestPrefix(t *testing.T) {
	v := testVocab()
	toks, ok := v.Tokenize("a b c")
	if !ok {
		t.Fatal("tokenize failed")
	}
	if want := []int{0, 3, 5}; !reflect.DeepEqual(toks, want) {
		t.Errorf("Tokenize(\"a b c\") = %v, want %v", toks, want)
	}
}

func TestTokenizeRoundTrip(t *testing.T) {
	v := testVocab()
	text := "a b c d e"
	toks, ok := v.Tokenize(text)
	if !ok {
		t.Fatal("tokenize failed")
	}
	var rebuilt string
	for _, id := range toks {
		rebuilt += v.Text(id)
	}
	if rebuilt != text {
		t.Errorf("round trip %q -> %q", text, rebuilt)
	}
}

func TestTokenizeUnknownText(t *testing.T) {
	v := testVocab()
	if _, ok := v.Tokenize("a z"); ok {
		t.Error("expected failure for text outside the vocabulary")
	}
	if toks, ok := v.Tokenize(""); !ok || len(toks) != 0 {
		t.Errorf("empty text: %v, %v", toks, ok)
	}
}
