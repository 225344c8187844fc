package api

// GenerateRequest is the body of POST /v1/generate. Unset sampling fields
// fall back to the server's defaults.
type GenerateRequest struct {
	Prompt string `json:"prompt"`

	Model   string `json:"model,omitempty"`
	Predict int    `json:"predict,omitempty"`

	Temperature   *float32 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float32 `json:"top_p,omitempty"`
	RepeatPenalty *float32 `json:"repeat_penalty,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	StopText      string   `json:"stop,omitempty"`
}

// StreamEvent is one server-sent event in the generation stream.
type StreamEvent struct {
	Event string `json:"event"`
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the non-streaming error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
