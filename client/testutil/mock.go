// Package testutil provides an in-process OpenAI-compatible mock server for
// testing client interactions. Failure sequences are scriptable per endpoint
// (respond 429 N times, then succeed), per-input latency makes completion
// order controllable, and every request is recorded for assertions.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// EmbeddingCall records one observed embedding request.
type EmbeddingCall struct {
	Input []string
	Model string
}

// Server is a scripted OpenAI-compatible backend for tests.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// failuresLeft maps endpoint path to remaining injected failures.
	failuresLeft map[string]int
	failStatus   map[string]int

	calls map[string]int

	completion       string
	defaultEmbedding []float32
	embeddings       map[string][]float32 // input text → vector
	delays           map[string]time.Duration
	inputStatus      map[string]int // input text → forced HTTP status

	embeddingCalls []EmbeddingCall
	chatMessages   [][]string // user message contents per chat call
}

// ChatPath and EmbeddingsPath are the endpoint paths the server exposes.
const (
	ChatPath       = "/v1/chat/completions"
	EmbeddingsPath = "/v1/embeddings"
)

// NewServer starts a mock backend. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		failuresLeft:     make(map[string]int),
		failStatus:       make(map[string]int),
		calls:            make(map[string]int),
		completion:       "mock completion",
		defaultEmbedding: []float32{0.1, 0.2, 0.3},
		embeddings:       make(map[string][]float32),
		delays:           make(map[string]time.Duration),
		inputStatus:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ChatPath, s.handleChat)
	mux.HandleFunc(EmbeddingsPath, s.handleEmbeddings)
	s.Server = httptest.NewServer(mux)

	return s
}

// BaseURL returns the URL to use as the client's API base.
func (s *Server) BaseURL() string {
	return s.URL + "/v1"
}

// FailTimes scripts the next n requests to path to fail with status.
func (s *Server) FailTimes(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failuresLeft[path] = n
	s.failStatus[path] = status
}

// SetCompletion sets the assistant message returned by the chat endpoint.
func (s *Server) SetCompletion(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = content
}

// SetEmbedding maps an exact input text to a vector. Unmapped inputs get the
// default vector.
func (s *Server) SetEmbedding(input string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[input] = vector
}

// SetDefaultEmbedding sets the vector returned for unmapped inputs.
func (s *Server) SetDefaultEmbedding(vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultEmbedding = vector
}

// SetDelay delays responses for an exact input text, for exercising
// completion-order behavior.
func (s *Server) SetDelay(input string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[input] = d
}

// SetInputStatus forces every request for an exact input text to fail with
// the given HTTP status.
func (s *Server) SetInputStatus(input string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputStatus[input] = status
}

// Calls returns how many requests path has served.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// ChatMessages returns the message contents of each observed chat request in
// arrival order.
func (s *Server) ChatMessages() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.chatMessages))
	copy(out, s.chatMessages)
	return out
}

// EmbeddingCalls returns the recorded embedding requests in arrival order.
func (s *Server) EmbeddingCalls() []EmbeddingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmbeddingCall, len(s.embeddingCalls))
	copy(out, s.embeddingCalls)
	return out
}

// takeFailure consumes one scripted failure for path, returning the status
// to respond with and whether a failure was pending.
func (s *Server) takeFailure(path string) (int, bool) {
	if s.failuresLeft[path] > 0 {
		s.failuresLeft[path]--
		return s.failStatus[path], true
	}
	return 0, false
}

func writeAPIError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "invalid_request_error")
		return
	}

	s.mu.Lock()
	s.calls[ChatPath]++
	var contents []string
	for _, m := range req.Messages {
		contents = append(contents, m.Content)
	}
	s.chatMessages = append(s.chatMessages, contents)
	status, failed := s.takeFailure(ChatPath)
	content := s.completion
	s.mu.Unlock()

	if failed {
		writeAPIError(w, status, "scripted failure", failureType(status))
		return
	}

	resp := map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     len(content) / 4,
			"completion_tokens": len(content) / 4,
			"total_tokens":      len(content) / 2,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "invalid_request_error")
		return
	}

	s.mu.Lock()
	s.calls[EmbeddingsPath]++
	s.embeddingCalls = append(s.embeddingCalls, EmbeddingCall{Input: req.Input, Model: req.Model})
	status, failed := s.takeFailure(EmbeddingsPath)

	var delay time.Duration
	var forcedStatus int
	vectors := make([][]float32, len(req.Input))
	for i, input := range req.Input {
		if d, ok := s.delays[input]; ok && d > delay {
			delay = d
		}
		if st, ok := s.inputStatus[input]; ok {
			forcedStatus = st
		}
		if vec, ok := s.embeddings[input]; ok {
			vectors[i] = vec
		} else {
			vectors[i] = s.defaultEmbedding
		}
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failed {
		writeAPIError(w, status, "scripted failure", failureType(status))
		return
	}
	if forcedStatus != 0 {
		writeAPIError(w, forcedStatus, "scripted failure", failureType(forcedStatus))
		return
	}

	data := make([]map[string]any, len(vectors))
	for i, vec := range vectors {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": vec,
		}
	}
	resp := map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage": map[string]int{
			"prompt_tokens": len(req.Input),
			"total_tokens":  len(req.Input),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func failureType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case http.StatusUnauthorized:
		return "invalid_api_key"
	default:
		return "server_error"
	}
}
