package model

import (
	"fmt"
	"math"
	"runtime"

	"github.com/samcharles93/lantern/internal/arena"
	"github.com/samcharles93/lantern/internal/logger"
	"github.com/samcharles93/lantern/internal/tensor"
)

const layerNormEps = 1e-5

// Engine evaluates a loaded model. It owns the key/value cache and a
// scratch arena, so one engine supports one generation stream at a time.
type Engine struct {
	store   *Store
	kv      *kvCache
	scratch *arena.Arena
	threads int
	invFreq []float64
	logits  []float32
	log     logger.Logger

	// memPerToken is the observed scratch cost in float32 words per batch
	// token, measured on the first Evaluate call.
	memPerToken int
}

// NewEngine prepares an engine for the given model. threads caps the
// goroutines used per matrix-vector product; zero or less means one per
// CPU.
func NewEngine(store *Store, threads int, log logger.Logger) *Engine {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if log == nil {
		log = logger.Discard()
	}
	h := store.Hparams
	return &Engine{
		store:   store,
		kv:      newKVCache(h.Layers, h.ContextLength, h.EmbdDim),
		scratch: arena.New(1<<18, 0),
		threads: threads,
		invFreq: tensor.RopeInvFreq(h.RotaryDim),
		logits:  make([]float32, h.VocabSize),
		log:     log,
	}
}

// Model returns the engine's model store.
func (e *Engine) Model() *Store { return e.store }

// MemPerToken returns the measured scratch bytes per batch token, zero
// before the first evaluation.
func (e *Engine) MemPerToken() int { return e.memPerToken * 4 }

// Evaluate runs the forward pass over a batch of tokens starting at cache
// position nPast and returns the logits of the final token. The returned
// slice is reused by the next call.
func (e *Engine) Evaluate(tokens []int, nPast int) ([]float32, error) {
	h := e.store.Hparams
	n := len(tokens)
	if n == 0 {
		return nil, &InferenceError{Err: fmt.Errorf("empty token batch")}
	}
	if nPast < 0 || nPast+n > h.ContextLength {
		return nil, &InferenceError{Err: fmt.Errorf("batch of %d at position %d exceeds context length %d",
			n, nPast, h.ContextLength)}
	}
	for _, t := range tokens {
		if t < 0 || t >= h.VocabSize {
			return nil, &InferenceError{Err: fmt.Errorf("token id %d outside vocabulary of %d", t, h.VocabSize)}
		}
	}

	if e.memPerToken > 0 {
		need := int(float64(e.memPerToken*n) * 1.1)
		if err := e.scratch.Ensure(need); err != nil {
			return nil, &InferenceError{Err: fmt.Errorf("scratch buffer: %w", err)}
		}
	}
	e.scratch.Reset()

	for i, tok := range tokens {
		e.evalToken(tok, nPast+i, i == n-1)
	}

	if e.memPerToken == 0 {
		e.memPerToken = e.scratch.Used() / n
		e.log.Debug("scratch cost measured", "words_per_token", e.memPerToken)
	}
	return e.logits, nil
}

// evalToken pushes one token through every layer at absolute position pos.
// Logits are projected only for the batch's final token.
func (e *Engine) evalToken(tok, pos int, last bool) {
	h := e.store.Hparams
	nEmbd := h.EmbdDim
	nHead := h.Heads
	headDim := h.HeadDim()
	nFF := h.FFNLength()
	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	x := e.scratch.Alloc(nEmbd)
	e.store.TokEmb.RowTo(x, tok)

	cur := e.scratch.Alloc(nEmbd)
	for li := range e.store.Layers {
		layer := &e.store.Layers[li]

		// Attention block.
		tensor.LayerNorm(cur, x, layer.AttnNorm.Data, layerNormEps)

		q := e.scratch.Alloc(nEmbd)
		k := e.scratch.Alloc(nEmbd)
		v := e.scratch.Alloc(nEmbd)
		tensor.MatVec(q, layer.Wq, cur, e.threads)
		tensor.MatVec(k, layer.Wk, cur, e.threads)
		tensor.MatVec(v, layer.Wv, cur, e.threads)

		e.kv.write(li, pos, k, v)
		tensor.ApplyRoPE(q, nHead, headDim, h.RotaryDim, pos, e.invFreq)

		// Rotate every cached key for its own position. Keys live in the
		// cache unrotated, so each step rebuilds the rotated view over the
		// whole visible range.
		span := pos + 1
		keys := e.scratch.Alloc(span * nEmbd)
		for p := 0; p < span; p++ {
			kp := keys[p*nEmbd : (p+1)*nEmbd]
			copy(kp, e.kv.key(li, p))
			tensor.ApplyRoPE(kp, nHead, headDim, h.RotaryDim, p, e.invFreq)
		}

		attn := e.scratch.Alloc(nEmbd)
		scores := e.scratch.Alloc(span)
		for hd := 0; hd < nHead; hd++ {
			qh := q[hd*headDim : (hd+1)*headDim]
			for p := 0; p < span; p++ {
				kh := keys[p*nEmbd+hd*headDim : p*nEmbd+(hd+1)*headDim]
				scores[p] = tensor.Dot(qh, kh) * scale
			}
			tensor.Softmax(scores)
			out := attn[hd*headDim : (hd+1)*headDim]
			for p := 0; p < span; p++ {
				vh := e.kv.value(li, p)[hd*headDim : (hd+1)*headDim]
				w := scores[p]
				for j := range out {
					out[j] += w * vh[j]
				}
			}
		}

		proj := e.scratch.Alloc(nEmbd)
		tensor.MatVec(proj, layer.Wo, attn, e.threads)
		tensor.Add(x, proj)

		// Feed-forward block.
		tensor.LayerNorm(cur, x, layer.FfnNorm.Data, layerNormEps)
		gate := e.scratch.Alloc(nFF)
		up := e.scratch.Alloc(nFF)
		tensor.MatVec(gate, layer.W1, cur, e.threads)
		tensor.MatVec(up, layer.W3, cur, e.threads)
		for j := 0; j < nFF; j++ {
			gate[j] = tensor.Silu(gate[j]) * up[j]
		}
		down := e.scratch.Alloc(nEmbd)
		tensor.MatVec(down, layer.W2, gate, e.threads)
		tensor.Add(x, down)
	}

	if last {
		tensor.LayerNorm(cur, x, e.store.Norm.Data, layerNormEps)
		tensor.MatVec(e.logits, e.store.Output, cur, e.threads)
	}
}
