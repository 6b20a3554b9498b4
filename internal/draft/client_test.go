package draft

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kiln/internal/config"
	"kiln/internal/services"
)

func testConfig(url string) config.Draft {
	return config.Draft{
		APIKey:         "test-key",
		BaseURL:        url,
		Model:          "test-model",
		TimeoutSeconds: 5,
	}
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func TestGenerateDisabledWithoutKey(t *testing.T) {
	client := NewClient(config.Draft{BaseURL: "http://unused"})
	partial, err := client.Generate(context.Background(), "a fast space shooter")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if partial.Title != nil {
		t.Errorf("unconfigured client should return an empty partial")
	}
}

func TestGenerateRequiresDescription(t *testing.T) {
	client := NewClient(testConfig("http://unused"))
	_, err := client.Generate(context.Background(), "   ")
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateParsesOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(completionBody(`"{\"title\":\"Void Sprint\",\"difficulty\":\"hard\",\"lives\":2}"`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	partial, err := client.Generate(context.Background(), "a brutal space runner")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if partial.Title == nil || *partial.Title != "Void Sprint" {
		t.Errorf("title = %v", partial.Title)
	}
	if partial.Lives == nil || *partial.Lives != 2 {
		t.Errorf("lives = %v", partial.Lives)
	}
	if partial.PlayerSpeed != nil {
		t.Errorf("absent field should stay nil")
	}
}

func TestGenerateToleratesCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(`"Here you go:\n{\"title\":\"Fenced\"}\nEnjoy!"`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	partial, err := client.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if partial.Title == nil || *partial.Title != "Fenced" {
		t.Errorf("title = %v", partial.Title)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryAttempts(2),
		WithSleeper(func(time.Duration) {}))
	_, err := client.Generate(context.Background(), "anything")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(completionBody(`"{\"title\":\"Recovered\"}"`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryAttempts(3),
		WithSleeper(func(time.Duration) {}))
	partial, err := client.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if partial.Title == nil || *partial.Title != "Recovered" {
		t.Errorf("title = %v", partial.Title)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGenerateBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryAttempts(3),
		WithSleeper(func(time.Duration) {}))
	_, err := client.Generate(context.Background(), "anything")
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
