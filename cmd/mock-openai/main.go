// Package main implements a mock OpenAI-compatible server for offline
// testing. It serves /v1/chat/completions and /v1/embeddings with
// deterministic responses, and can inject a configurable number of 429
// rate-limit failures per model so backoff behavior can be exercised
// end-to-end without a real backend.
//
// Usage:
//
//	mock-openai -port 8089 -fail429 2
//	mock-openai -fixtures /path/to/fixtures
//
// Chat fixtures are JSON files named by model ("mock-planner.json" maps to
// model "mock-planner"); the file content is returned as the assistant
// message. Without fixtures, a canned completion is returned. Embedding
// vectors are derived deterministically from the input text, so the same
// text always embeds to the same vector.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type server struct {
	fixtures   map[string]string // model name → assistant content
	dimensions int
	fail429    int // injected 429s per model before succeeding

	calls atomic.Int64

	mu           sync.Mutex
	modelCalls   map[string]int
	failuresLeft map[string]int
}

func newServer(fixtures map[string]string, dimensions, fail429 int) *server {
	return &server{
		fixtures:     fixtures,
		dimensions:   dimensions,
		fail429:      fail429,
		modelCalls:   make(map[string]int),
		failuresLeft: make(map[string]int),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing chat fixture files (optional)")
	port := flag.Int("port", 8089, "port to listen on")
	dimensions := flag.Int("dimensions", 8, "embedding vector dimensions")
	fail429 := flag.Int("fail429", 0, "number of 429 responses to inject per model before succeeding")
	flag.Parse()

	fixtures := map[string]string{}
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		log.Printf("Loaded %d fixture model(s) from %s", len(fixtures), *fixtureDir)
	}

	s := newServer(fixtures, *dimensions, *fail429)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock OpenAI server listening on %s (fail429=%d)", addr, *fail429)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// shouldRateLimit consumes one injected failure for model, initializing the
// per-model budget on first sight.
func (s *server) shouldRateLimit(model string) bool {
	if s.fail429 == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.failuresLeft[model]; !ok {
		s.failuresLeft[model] = s.fail429
	}
	if s.failuresLeft[model] > 0 {
		s.failuresLeft[model]--
		return true
	}
	return false
}

func (s *server) countCall(model string) int64 {
	s.mu.Lock()
	s.modelCalls[model]++
	s.mu.Unlock()
	return s.calls.Add(1)
}

func writeRateLimit(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "Rate limit reached, please retry",
			"type":    "rate_limit_exceeded",
		},
	})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.countCall(req.Model)
	if s.shouldRateLimit(req.Model) {
		log.Printf("[call %d] model=%s injecting 429", callNum, req.Model)
		writeRateLimit(w)
		return
	}

	content, ok := s.fixtures[req.Model]
	if !ok {
		content = "This is a mock completion."
	}
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))

	resp := map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       chatMessage{Role: "assistant", Content: content},
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

func (s *server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.countCall(req.Model)
	if s.shouldRateLimit(req.Model) {
		log.Printf("[call %d] model=%s injecting 429", callNum, req.Model)
		writeRateLimit(w)
		return
	}
	log.Printf("[call %d] model=%s inputs=%d", callNum, req.Model, len(req.Input))

	data := make([]map[string]any, len(req.Input))
	for i, input := range req.Input {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": pseudoVector(input, s.dimensions),
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

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int, len(s.modelCalls))
	for model, n := range s.modelCalls {
		callsByModel[model] = n
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// pseudoVector derives a deterministic unit-range vector from text so
// repeated requests for the same input embed identically.
func pseudoVector(text string, dimensions int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(math.Abs(float64(int64(seed))) / math.MaxInt64)
	}
	return vec
}

// loadFixtures reads JSON files from dir and returns a map of model name to
// assistant content ("mock-planner.json" → model "mock-planner").
func loadFixtures(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in %s", path)
		}
		model := strings.TrimSuffix(entry.Name(), ".json")
		fixtures[model] = string(data)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
