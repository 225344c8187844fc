package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samcharles93/lantern/internal/logger"
	"github.com/samcharles93/lantern/internal/logits"
	"github.com/samcharles93/lantern/internal/metrics"
	"github.com/samcharles93/lantern/internal/model"
)

// Config holds everything a generation session needs. Zero values fall
// back to the defaults below.
type Config struct {
	ModelPath string

	ContextLength int
	BatchSize     int
	Threads       int
	Parts         int

	// Predict caps the number of sampled tokens. It is further clamped so
	// prompt plus output never exceeds the context length.
	Predict int

	Seed          int64
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	RepeatLastN   int

	// StopText ends the session early once the emitted text ends with it.
	StopText string
}

const (
	DefaultContextLength = model.DefaultContextLength
	DefaultBatchSize     = 8
	DefaultPredict       = 128
	DefaultTemperature   = 0.8
	DefaultTopK          = 40
	DefaultTopP          = 0.95
	DefaultRepeatPenalty = 1.3
	DefaultRepeatLastN   = 64
)

func (c Config) withDefaults() Config {
	if c.ContextLength <= 0 {
		c.ContextLength = DefaultContextLength
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Predict <= 0 {
		c.Predict = DefaultPredict
	}
	// Negative temperature selects greedy decoding; zero means default.
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.RepeatPenalty <= 0 {
		c.RepeatPenalty = DefaultRepeatPenalty
	}
	if c.RepeatLastN <= 0 {
		c.RepeatLastN = DefaultRepeatLastN
	}
	if c.Seed <= 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// State is the coarse lifecycle phase of a session.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateGenerating
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session drives one prompt through load, evaluation and sampling. Events
// stream on Events(); exactly one terminal event (completed or failed) is
// published, after which the channel closes.
type Session struct {
	cfg    Config
	log    logger.Logger
	events *eventChannel
	state  atomic.Int32
}

func NewSession(cfg Config, log logger.Logger) *Session {
	if log == nil {
		log = logger.Discard()
	}
	return &Session{
		cfg:    cfg.withDefaults(),
		log:    log,
		events: newEventChannel(),
	}
}

// Events returns the session's event stream. The channel closes after the
// terminal event has been delivered.
func (s *Session) Events() <-chan Event { return s.events.out }

// State reports the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) fail(ctx context.Context, err error) {
	s.setState(StateFailed)
	s.events.publish(Event{Kind: EventFailed, Err: err})
	s.events.close()
	outcome := "failed"
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		outcome = "canceled"
	}
	metrics.RecordSession(outcome)
	s.log.Error("session failed", "err", err)
}

func (s *Session) complete() {
	s.setState(StateCompleted)
	s.events.publish(Event{Kind: EventCompleted})
	s.events.close()
	metrics.RecordSession("completed")
}

// Run executes the session to its terminal event. It blocks; callers that
// want to consume Events() concurrently run it in a goroutine.
func (s *Session) Run(ctx context.Context, prompt string) {
	cfg := s.cfg

	s.setState(StateLoading)
	s.events.publish(Event{Kind: EventStartedLoadingModel})

	loadStart := time.Now()
	store, err := model.Load(cfg.ModelPath, model.LoadOptions{
		ContextLength: cfg.ContextLength,
		Parts:         cfg.Parts,
		Logger:        s.log,
	})
	if err != nil {
		s.fail(ctx, err)
		return
	}
	metrics.RecordLoad(time.Since(loadStart))
	s.events.publish(Event{Kind: EventFinishedLoadingModel})

	engine := model.NewEngine(store, cfg.Threads, s.log)
	vocab := store.Vocab

	promptToks, ok := vocab.Tokenize(prompt)
	if !ok {
		s.fail(ctx, fmt.Errorf("prompt contains text outside the model vocabulary"))
		return
	}
	if len(promptToks) > cfg.ContextLength {
		s.fail(ctx, fmt.Errorf("prompt of %d tokens exceeds context length %d",
			len(promptToks), cfg.ContextLength))
		return
	}

	remaining := cfg.Predict
	if max := cfg.ContextLength - len(promptToks); remaining > max {
		remaining = max
	}

	// Probe evaluation: a tiny batch at position zero measures the scratch
	// cost per token so later batches size their buffer up front. The
	// cache positions it touches are overwritten by the real pass.
	probe := probeTokens(vocab.Size(), cfg.ContextLength)
	lastLogits, err := engine.Evaluate(probe, 0)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	s.setState(StateGenerating)
	s.events.publish(Event{Kind: EventStartedGeneratingOutput})
	s.log.Info("generating",
		"prompt_tokens", len(promptToks),
		"predict", remaining,
		"seed", cfg.Seed)

	sampler := logits.NewSampler(logits.Config{
		Seed:          cfg.Seed,
		Temperature:   cfg.Temperature,
		TopK:          cfg.TopK,
		TopP:          cfg.TopP,
		RepeatPenalty: cfg.RepeatPenalty,
	})

	var (
		embd     []int
		consumed int
		nPast    int
		lastN    []int
		tail     string
	)
	pushRecent := func(id int) {
		lastN = append(lastN, id)
		if len(lastN) > cfg.RepeatLastN {
			lastN = lastN[1:]
		}
	}

	for remaining > 0 || consumed < len(promptToks) {
		if ctx.Err() != nil {
			s.fail(ctx, ctx.Err())
			return
		}

		if len(embd) > 0 {
			evalStart := time.Now()
			lastLogits, err = engine.Evaluate(embd, nPast)
			if err != nil {
				s.fail(ctx, err)
				return
			}
			metrics.RecordEval(time.Since(evalStart))
			nPast += len(embd)
			embd = embd[:0]
		}

		if consumed < len(promptToks) {
			for consumed < len(promptToks) && len(embd) < cfg.BatchSize {
				tok := promptToks[consumed]
				embd = append(embd, tok)
				pushRecent(tok)
				consumed++
			}
			metrics.RecordPrompt(len(embd))
		} else {
			id := sampler.Sample(lastLogits, lastN)
			embd = append(embd, id)
			pushRecent(id)
			remaining--
			metrics.RecordSampled()
		}

		for _, id := range embd {
			text := vocab.Text(id)
			s.events.publish(Event{Kind: EventOutputToken, Token: text})
			if cfg.StopText != "" {
				tail += text
				if over := len(tail) - len(cfg.StopText); over > 0 {
					tail = tail[over:]
				}
				if strings.HasSuffix(tail, cfg.StopText) {
					s.complete()
					return
				}
			}
		}
	}

	s.complete()
}

// probeTokens picks a short in-vocabulary batch for the sizing pass.
func probeTokens(vocabSize, ctxLen int) []int {
	n := 4
	if vocabSize < n {
		n = vocabSize
	}
	if ctxLen < n {
		n = ctxLen
	}
	toks := make([]int, n)
	for i := range toks {
		toks[i] = i
	}
	return toks
}
