// Package api serves generation sessions over HTTP, streaming events as
// server-sent events.
package api

import (
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/lantern/internal/generate"
	"github.com/samcharles93/lantern/internal/logger"
)

// Server handles generation requests against a configured default model.
type Server struct {
	defaults generate.Config
	log      logger.Logger
}

func NewServer(defaults generate.Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{defaults: defaults, log: log}
}

// Register mounts the API routes.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	var req GenerateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "prompt is required"})
	}

	cfg := s.requestConfig(req)
	if cfg.ModelPath == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no model configured"})
	}

	sessionID := uuid.NewString()
	log := s.log.With("session", sessionID)

	sw, err := newStreamWriter(c, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	sess := generate.NewSession(cfg, log)
	go sess.Run(c.Request().Context(), req.Prompt)

	for ev := range sess.Events() {
		if err := sw.emit(ev); err != nil {
			// Client went away; the session notices via the request
			// context on its next iteration.
			log.Warn("stream write failed", "err", err)
			return nil
		}
	}
	return nil
}

// requestConfig merges per-request overrides onto the server defaults.
func (s *Server) requestConfig(req GenerateRequest) generate.Config {
	cfg := s.defaults
	if req.Model != "" {
		cfg.ModelPath = req.Model
	}
	if req.Predict > 0 {
		cfg.Predict = req.Predict
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}
	if req.RepeatPenalty != nil {
		cfg.RepeatPenalty = *req.RepeatPenalty
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.StopText != "" {
		cfg.StopText = req.StopText
	}
	return cfg
}

// streamWriter frames generation events as server-sent events.
type streamWriter struct {
	w     io.Writer
	flush func()
}

func newStreamWriter(c *echo.Context, sessionID string) (*streamWriter, error) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Session-ID", sessionID)

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.WriteHeader(http.StatusOK)
	return &streamWriter{w: res, flush: flusher.Flush}, nil
}

func (sw *streamWriter) emit(ev generate.Event) error {
	payload := StreamEvent{Event: ev.Kind.String(), Token: ev.Token}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	sw.flush()
	return nil
}
