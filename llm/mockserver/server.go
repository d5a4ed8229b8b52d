// Package mockserver serves OpenAI-compatible /v1/chat/completions responses
// from fixture files, routing by the "model" field of the request. It makes
// generation runs deterministic and offline.
//
// Fixture files are named <model>[.<n>].<ext>. The file content is returned
// as the assistant message, so the extension is free (".py", ".yaml",
// ".txt"), except ".status": such a file holds an HTTP status code that is
// returned instead of a completion, e.g. "429" to simulate rate limiting.
//
// Sequential fixtures: numbered files are served in numeric order, one per
// call to that model. After they run out, the un-numbered base file is
// repeated, or the last numbered file when there is no base file. This lets
// a test script a bad first attempt and a good second one.
package mockserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Fixture is one scripted response.
type Fixture struct {
	Content string
	// Status, when non-zero, is returned instead of a completion.
	Status int
}

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// ChatMessage is one message of a captured request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CapturedRequest stores the key fields of an incoming request.
type CapturedRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

// Server replays fixtures. It implements http.Handler.
type Server struct {
	fixtures map[string][]Fixture
	calls    atomic.Int64
	logger   *slog.Logger
	mux      *http.ServeMux

	mu            sync.Mutex
	modelCalls    map[string]int
	modelRequests map[string][]CapturedRequest
}

// New creates a server for fixtures (see LoadFixtures).
func New(fixtures map[string][]Fixture, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		fixtures:      fixtures,
		logger:        logger,
		mux:           http.NewServeMux(),
		modelCalls:    make(map[string]int),
		modelRequests: make(map[string][]CapturedRequest),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/requests", s.handleRequests)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Calls returns how many completions were requested for model.
func (s *Server) Calls(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelCalls[model]
}

// Requests returns the captured requests for model.
func (s *Server) Requests(model string) []CapturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CapturedRequest(nil), s.modelRequests[model]...)
}

// next records the request and returns the fixture for this call.
func (s *Server) next(model string, req chatRequest) (Fixture, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modelCalls[model]++
	callIndex := s.modelCalls[model]
	s.modelRequests[model] = append(s.modelRequests[model], CapturedRequest{
		Model:     model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})

	seq := s.fixtures[model]
	i := min(callIndex-1, len(seq)-1)
	return seq[i], callIndex
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)

	// Resolve fixture sequence: try exact model name, then strip "mock-" prefix
	model := req.Model
	if _, ok := s.fixtures[model]; !ok {
		model = strings.TrimPrefix(req.Model, "mock-")
	}
	if _, ok := s.fixtures[model]; !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	fx, callIndex := s.next(model, req)
	s.logger.Debug("Serving fixture",
		"call", callNum,
		"model", model,
		"call_index", callIndex,
		"fixtures", len(s.fixtures[model]))

	if fx.Status != 0 {
		http.Error(w, fmt.Sprintf("mock status %d", fx.Status), fx.Status)
		return
	}

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      ChatMessage{Role: "assistant", Content: fx.Content},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(fx.Content) / 4, // rough estimate
			CompletionTokens: len(fx.Content) / 4,
			TotalTokens:      len(fx.Content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleModels returns the list of available mock models.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns total_calls and a per-model calls_by_model breakdown.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
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

// handleRequests returns captured requests.
// Query params:
//   - model: filter by model name (optional)
//   - call: filter by call index, 1-indexed (optional)
func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, callErr := strconv.Atoi(r.URL.Query().Get("call"))

	s.mu.Lock()
	result := make(map[string][]CapturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != callFilter {
				continue
			}
			result[model] = append(result[model], req)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// fixtureNameRe splits "<model>[.<n>].<ext>".
var fixtureNameRe = regexp.MustCompile(`^(.+?)(?:\.(\d+))?\.([A-Za-z0-9]+)$`)

// LoadFixtures reads dir and returns model → ordered fixtures: numbered
// files in numeric order, then the base file as the repeating fallback.
func LoadFixtures(dir string) (map[string][]Fixture, error) {
	base := make(map[string]Fixture)
	numbered := make(map[string]map[int]Fixture)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m := fixtureNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		model, num, ext := m[1], m[2], m[3]

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		fx := Fixture{Content: string(data)}
		if ext == "status" {
			code, err := strconv.Atoi(strings.TrimSpace(fx.Content))
			if err != nil || code < 100 || code > 599 {
				return nil, fmt.Errorf("invalid status code in %s", e.Name())
			}
			fx = Fixture{Status: code}
		}

		if num == "" {
			base[model] = fx
			continue
		}
		idx, _ := strconv.Atoi(num)
		if numbered[model] == nil {
			numbered[model] = make(map[int]Fixture)
		}
		numbered[model][idx] = fx
	}

	fixtures := make(map[string][]Fixture)
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for idx := range byIndex {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], byIndex[idx])
		}
	}
	for model, fx := range base {
		fixtures[model] = append(fixtures[model], fx)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
