package model_test

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/lantern/internal/model"
	"github.com/samcharles93/lantern/internal/toy"
)

func loadToyEngine(t *testing.T, ctxLen int) *model.Engine {
	t.Helper()
	path := writeToy(t, toy.DefaultParams(), 1)
	s, err := model.Load(path, model.LoadOptions{ContextLength: ctxLen, Parts: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return model.NewEngine(s, 2, nil)
}

func checkLogits(t *testing.T, logits []float32, vocab int) {
	t.Helper()
	if len(logits) != vocab {
		t.Fatalf("logits length = %d, want %d", len(logits), vocab)
	}
	for i, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("logit %d = %g", i, v)
		}
	}
}

func TestEvaluateReturnsFiniteLogits(t *testing.T) {
	e := loadToyEngine(t, 32)
	logits, err := e.Evaluate([]int{0, 3, 5}, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	checkLogits(t, logits, e.Model().Hparams.VocabSize)
}

func TestEvaluateDeterministic(t *testing.T) {
	a := loadToyEngine(t, 32)
	b := loadToyEngine(t, 32)

	la, err := a.Evaluate([]int{1, 2, 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	lb, err := b.Evaluate([]int{1, 2, 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range la {
		if la[i] != lb[i] {
			t.Fatalf("logit %d differs: %g vs %g", i, la[i], lb[i])
		}
	}
}

func TestEvaluateIncrementalMatchesBatch(t *testing.T) {
	batch := loadToyEngine(t, 32)
	incr := loadToyEngine(t, 32)

	toks := []int{0, 3, 5, 7}
	lBatch, err := batch.Evaluate(toks, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]float32(nil), lBatch...)

	var lIncr []float32
	for i, tok := range toks {
		lIncr, err = incr.Evaluate([]int{tok}, i)
		if err != nil {
			t.Fatal(err)
		}
	}
	for i := range want {
		if math.Abs(float64(want[i]-lIncr[i])) > 1e-4 {
			t.Fatalf("logit %d: batch %g vs incremental %g", i, want[i], lIncr[i])
		}
	}
}

func TestEvaluateUsesCachedContext(t *testing.T) {
	// Evaluate the same token at position 1 in two engines whose cached
	// position-0 prefixes differ. The attention over the cache must pull
	// the logits apart.
	a := loadToyEngine(t, 32)
	b := loadToyEngine(t, 32)

	if _, err := a.Evaluate([]int{3}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Evaluate([]int{5}, 0); err != nil {
		t.Fatal(err)
	}

	la, err := a.Evaluate([]int{0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	laCopy := append([]float32(nil), la...)
	lb, err := b.Evaluate([]int{0}, 1)
	if err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range laCopy {
		if laCopy[i] != lb[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("logits ignore the cached prefix")
	}
}

func TestEvaluateContextOverflow(t *testing.T) {
	e := loadToyEngine(t, 8)
	if _, err := e.Evaluate([]int{0, 1, 2}, 6); err == nil {
		t.Fatal("expected overflow error")
	} else {
		var ie *model.InferenceError
		if !errors.As(err, &ie) {
			t.Fatalf("err = %T, want *InferenceError", err)
		}
	}
}

func TestEvaluateRejectsBadTokens(t *testing.T) {
	e := loadToyEngine(t, 8)
	if _, err := e.Evaluate([]int{999}, 0); err == nil {
		t.Fatal("expected error for out-of-vocabulary token")
	}
	if _, err := e.Evaluate(nil, 0); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestMemPerTokenMeasuredOnFirstCall(t *testing.T) {
	e := loadToyEngine(t, 32)
	if e.MemPerToken() != 0 {
		t.Fatalf("MemPerToken before first call = %d", e.MemPerToken())
	}
	if _, err := e.Evaluate([]int{0, 1}, 0); err != nil {
		t.Fatal(err)
	}
	if e.MemPerToken() <= 0 {
		t.Errorf("MemPerToken after first call = %d", e.MemPerToken())
	}
}
