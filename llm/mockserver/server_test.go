package mockserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/genguard/ast/python"
	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/policy"
	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/validation"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestLoadFixtures_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "coder.py", "def f():\n    pass\n")
	writeFixture(t, dir, "speccer.yaml", "name: agent\n")

	fixtures, err := LoadFixtures(dir)
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 models, got %d", len(fixtures))
	}
	for model, seq := range fixtures {
		if len(seq) != 1 {
			t.Errorf("model %q: expected 1 fixture, got %d", model, len(seq))
		}
	}
}

func TestLoadFixtures_Sequential(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "qwen2.5-coder.2.py", "second")
	writeFixture(t, dir, "qwen2.5-coder.1.status", "429\n")
	writeFixture(t, dir, "qwen2.5-coder.10.py", "tenth")
	writeFixture(t, dir, "qwen2.5-coder.py", "fallback")

	fixtures, err := LoadFixtures(dir)
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}

	seq := fixtures["qwen2.5-coder"]
	if len(seq) != 4 {
		t.Fatalf("expected 4 fixtures, got %d: %v", len(seq), fixtures)
	}
	if seq[0].Status != 429 {
		t.Errorf("fixture[0] should be status 429, got %+v", seq[0])
	}
	if seq[1].Content != "second" || seq[2].Content != "tenth" || seq[3].Content != "fallback" {
		t.Errorf("unexpected order: %+v", seq)
	}
}

func TestLoadFixtures_Errors(t *testing.T) {
	if _, err := LoadFixtures(t.TempDir()); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := LoadFixtures(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing dir")
	}

	dir := t.TempDir()
	writeFixture(t, dir, "coder.status", "teapot")
	if _, err := LoadFixtures(dir); err == nil {
		t.Error("expected error for bad status fixture")
	}
}

func TestServer_SequentialResponses(t *testing.T) {
	s := New(map[string][]Fixture{
		"coder": {{Content: "one"}, {Content: "two"}},
	}, nil)
	ts := httptest.NewServer(s)
	defer ts.Close()

	client := llm.NewOpenAIClient(ts.URL+"/v1", "mock-coder")
	var got []string
	for range 3 {
		text, err := client.Generate(context.Background(), llm.Request{System: "sys", User: "go"})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		got = append(got, text)
	}
	if strings.Join(got, ",") != "one,two,two" {
		t.Errorf("unexpected sequence %v", got)
	}
	if s.Calls("coder") != 3 {
		t.Errorf("expected 3 calls, got %d", s.Calls("coder"))
	}

	reqs := s.Requests("coder")
	if len(reqs) != 3 || reqs[2].CallIndex != 3 || reqs[0].Messages[0].Role != "system" {
		t.Errorf("unexpected captured requests %+v", reqs)
	}
}

func TestServer_UnknownModel(t *testing.T) {
	ts := httptest.NewServer(New(map[string][]Fixture{"coder": {{Content: "x"}}}, nil))
	defer ts.Close()

	_, err := llm.NewOpenAIClient(ts.URL, "other").Generate(context.Background(), llm.Request{User: "go"})
	if err == nil || !llm.IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
}

func TestServer_StatsAndRequests(t *testing.T) {
	ts := httptest.NewServer(New(map[string][]Fixture{"coder": {{Content: "x"}}}, nil))
	defer ts.Close()

	client := llm.NewOpenAIClient(ts.URL, "coder")
	for range 2 {
		if _, err := client.Generate(context.Background(), llm.Request{User: "go"}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats struct {
		TotalCalls   int            `json:"total_calls"`
		CallsByModel map[string]int `json:"calls_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalCalls != 2 || stats.CallsByModel["coder"] != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp2, err := http.Get(ts.URL + "/requests?model=coder&call=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var reqs struct {
		RequestsByModel map[string][]CapturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&reqs); err != nil {
		t.Fatal(err)
	}
	if got := reqs.RequestsByModel["coder"]; len(got) != 1 || got[0].CallIndex != 2 {
		t.Errorf("unexpected filtered requests %+v", reqs.RequestsByModel)
	}
}

// End to end: the retry loop against the mock backend through the
// OpenAI-compatible client.
func TestServer_DrivesRetryLoop(t *testing.T) {
	s := New(map[string][]Fixture{
		"coder": {
			{Status: http.StatusTooManyRequests},
			{Content: "```python\nimport subprocess\nsubprocess.run(['ls'])\n```"},
			{Content: "```python\nimport os\n\ndef main():\n    return os.getenv('HOME')\n```\nThis code returns HOME."},
		},
	}, nil)
	ts := httptest.NewServer(s)
	defer ts.Close()

	v := validation.NewCodeValidator(python.NewParser(), policy.Default())
	o := retry.New(v, retry.WithMaxAttempts(3))
	gen := retry.FromGenerator(llm.NewOpenAIClient(ts.URL+"/v1", "coder"), llm.Request{System: "Write Python.", User: "agent"}, nil)

	out, err := o.Run(context.Background(), gen)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.AttemptsUsed != 2 {
		t.Errorf("expected success on the third attempt, got AttemptsUsed=%d", out.AttemptsUsed)
	}
	if strings.Contains(out.Artifact, "```") || strings.Contains(out.Artifact, "This code") {
		t.Errorf("artifact not cleaned: %q", out.Artifact)
	}

	reqs := s.Requests("coder")
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if sys := reqs[2].Messages[0].Content; !strings.Contains(sys, "Dangerous import: subprocess") {
		t.Errorf("third request should carry feedback, got system prompt %q", sys)
	}
	if sys := reqs[1].Messages[0].Content; sys != "Write Python." {
		t.Errorf("rate-limited attempt should add no feedback, got %q", sys)
	}
}

func TestServer_UnavailableAborts(t *testing.T) {
	s := New(map[string][]Fixture{"coder": {{Status: http.StatusServiceUnavailable}}}, nil)
	ts := httptest.NewServer(s)
	defer ts.Close()

	v := validation.NewCodeValidator(python.NewParser(), policy.Default())
	gen := retry.FromGenerator(llm.NewOpenAIClient(ts.URL, "coder"), llm.Request{User: "agent"}, nil)

	_, err := retry.New(v).Run(context.Background(), gen)
	if !llm.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if s.Calls("coder") != 1 {
		t.Errorf("expected a single call, got %d", s.Calls("coder"))
	}
}

func TestServer_Health(t *testing.T) {
	ts := httptest.NewServer(New(map[string][]Fixture{"coder": {{Content: "x"}}}, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
