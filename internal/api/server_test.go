package api

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/lantern/internal/generate"
	"github.com/samcharles93/lantern/internal/toy"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := toy.Write(path, toy.DefaultParams(), 1); err != nil {
		t.Fatalf("write toy model: %v", err)
	}
	defaults := generate.Config{
		ModelPath:     path,
		ContextLength: 32,
		Parts:         1,
		Predict:       4,
		Seed:          3,
		Temperature:   -1,
	}
	server := NewServer(defaults, nil)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeSSE(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealthz(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateStreamsEvents(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"a b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(got, "text/event-stream") {
		t.Errorf("content type = %q", got)
	}
	if rec.Header().Get("X-Session-ID") == "" {
		t.Error("missing X-Session-ID header")
	}

	events := decodeSSE(t, rec.Body.String())
	if len(events) < 4 {
		t.Fatalf("events = %d: %+v", len(events), events)
	}
	if events[0].Event != "started_loading_model" {
		t.Errorf("first event = %q", events[0].Event)
	}
	last := events[len(events)-1]
	if last.Event != "completed" {
		t.Fatalf("terminal event = %q (error %q)", last.Event, last.Error)
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Event == "output_token" {
			text.WriteString(ev.Token)
		}
	}
	if !strings.HasPrefix(text.String(), "a b") {
		t.Errorf("streamed text %q does not echo the prompt", text.String())
	}
}

func TestGenerateFailureStreamsFailedEvent(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompt":"a b","model":"/nonexistent/model.bin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	events := decodeSSE(t, rec.Body.String())
	last := events[len(events)-1]
	if last.Event != "failed" || last.Error == "" {
		t.Fatalf("terminal event = %+v, want failed with error", last)
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateRejectsBadBody(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{bad`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
