// Package logits turns model output scores into token choices.
package logits

import (
	"math/rand"
	"sort"

	"github.com/samcharles93/lantern/internal/tensor"
)

// Config controls sampling behavior.
type Config struct {
	// Seed initializes the random source; identical seeds reproduce
	// identical draws.
	Seed int64

	// Temperature scales logits before softmax. Zero selects the highest
	// logit deterministically.
	Temperature float32

	// TopK keeps only the K highest-scoring candidates. Zero or negative
	// keeps everything.
	TopK int

	// TopP truncates the candidate list to the smallest prefix whose
	// cumulative probability reaches P. Values >= 1 keep everything.
	TopP float32

	// RepeatPenalty dampens tokens present in the recent window. Values of
	// zero or one disable it.
	RepeatPenalty float32
}

// Sampler draws tokens from logit vectors. It is not safe for concurrent
// use; each generation stream owns its own sampler.
type Sampler struct {
	cfg Config
	rng *rand.Rand

	scratch []float32
}

func NewSampler(cfg Config) *Sampler {
	return &Sampler{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

type candidate struct {
	id    int
	logit float32
}

// Sample picks the next token. recent holds the ids the repeat penalty
// applies to; the caller windows it. logits is left untouched.
func (s *Sampler) Sample(logits []float32, recent []int) int {
	if len(logits) == 0 {
		return 0
	}
	if cap(s.scratch) < len(logits) {
		s.scratch = make([]float32, len(logits))
	}
	l := s.scratch[:len(logits)]
	copy(l, logits)

	if p := s.cfg.RepeatPenalty; p > 0 && p != 1 {
		for _, id := range recent {
			if id < 0 || id >= len(l) {
				continue
			}
			// Penalizing a negative logit means pushing it further down.
			if l[id] > 0 {
				l[id] /= p
			} else {
				l[id] *= p
			}
		}
	}

	if s.cfg.Temperature <= 0 {
		return argmax(l)
	}

	k := s.cfg.TopK
	if k <= 0 || k > len(l) {
		k = len(l)
	}
	cands := topK(l, k)

	invTemp := 1 / s.cfg.Temperature
	for i := range cands {
		cands[i].logit *= invTemp
	}
	probs := softmaxCandidates(cands)

	if p := s.cfg.TopP; p > 0 && p < 1 {
		probs = truncateTopP(probs, p)
		cands = cands[:len(probs)]
	}

	r := s.rng.Float32()
	var cum float32
	for i, pr := range probs {
		cum += pr
		if r < cum {
			return cands[i].id
		}
	}
	return cands[len(cands)-1].id
}

func argmax(l []float32) int {
	best := 0
	for i := 1; i < len(l); i++ {
		if l[i] > l[best] {
			best = i
		}
	}
	return best
}

// topK returns the k highest-scoring candidates in descending order.
func topK(l []float32, k int) []candidate {
	cands := make([]candidate, len(l))
	for i, v := range l {
		cands[i] = candidate{id: i, logit: v}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].logit != cands[j].logit {
			return cands[i].logit > cands[j].logit
		}
		return cands[i].id < cands[j].id
	})
	return cands[:k]
}

func softmaxCandidates(cands []candidate) []float32 {
	probs := make([]float32, len(cands))
	for i, c := range cands {
		probs[i] = c.logit
	}
	tensor.Softmax(probs)
	return probs
}

// truncateTopP keeps the shortest probability-ordered prefix whose mass
// reaches p, then renormalizes it.
func truncateTopP(probs []float32, p float32) []float32 {
	cut := len(probs)
	var cum float32
	for i, pr := range probs {
		cum += pr
		if cum >= p {
			cut = i + 1
			break
		}
	}
	probs = probs[:cut]
	if cum > 0 {
		inv := 1 / cum
		for i := range probs {
			probs[i] *= inv
		}
	}
	return probs
}
