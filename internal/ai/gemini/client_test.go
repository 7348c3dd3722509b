package gemini

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	queue []fakeResponse
}

type modelCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{model: model, contents: contents, config: config})
	if len(f.queue) == 0 {
		return textResponse("unexpected call"), nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func stubWait(t *testing.T) {
	t.Helper()
	original := wait
	wait = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { wait = original })
}

func newTestGenerator(models *fakeModels, maxRetries int) *Generator {
	return &Generator{
		models:     models,
		model:      "gemini-1.5-pro-latest",
		maxRetries: maxRetries,
		logger:     zap.NewNop(),
	}
}

func TestGenerateJSONSetsDeterministicConfig(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse(`[]`), nil)

	g := newTestGenerator(models, 1)

	out, err := g.GenerateJSON(context.Background(), "system", "prompt", responseSchema)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "[]" {
		t.Fatalf("unexpected output: %q", out)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(models.calls))
	}

	config := models.calls[0].config
	if config == nil {
		t.Fatal("expected config to be set")
	}
	if config.Temperature == nil || *config.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", config.Temperature)
	}
	if config.ResponseMIMEType != "application/json" {
		t.Fatalf("unexpected response mime type: %q", config.ResponseMIMEType)
	}
	if config.ResponseSchema != responseSchema {
		t.Fatal("expected response schema to be passed through")
	}
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "system" {
		t.Fatal("expected system instruction to be set")
	}
}

func TestGenerateJSONRetriesOnTemporaryError(t *testing.T) {
	stubWait(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newTestGenerator(models, 2)

	out, err := g.GenerateJSON(context.Background(), "sys", "msg", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "retry ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGenerateJSONStopsAfterRetriesExhausted(t *testing.T) {
	stubWait(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	g := newTestGenerator(models, 2)

	if _, err := g.GenerateJSON(context.Background(), "sys", "msg", nil); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGenerateJSONDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newTestGenerator(models, 3)

	if _, err := g.GenerateJSON(context.Background(), "sys", "msg", nil); err == nil {
		t.Fatal("expected error on invalid argument")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGenerateJSONRejectsEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("   "), nil)

	g := newTestGenerator(models, 1)

	if _, err := g.GenerateJSON(context.Background(), "sys", "msg", nil); err == nil {
		t.Fatal("expected error on empty response")
	}
}
