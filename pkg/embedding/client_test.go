package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/config"
	"ragchat-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

func testConfig(baseURL string, dimensions int) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "text-embedding-3-small",
		Dimensions: dimensions,
		Retry:      config.RetryConfig{MaxAttempts: 3, BaseBackoffMS: 1},
	}
}

func embeddingServer(t *testing.T, vector []float32, gotReq *embeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if gotReq != nil {
			_ = json.NewDecoder(r.Body).Decode(gotReq)
		}
		resp := map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vector}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestCreateEmbedding_Success(t *testing.T) {
	var gotReq embeddingRequest
	srv := embeddingServer(t, []float32{0.1, 0.2, 0.3}, &gotReq)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3))
	vector, err := client.CreateEmbedding(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Errorf("vector = %v", vector)
	}
	if gotReq.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Input) != 1 || gotReq.Input[0] != "hello world" {
		t.Errorf("input = %v", gotReq.Input)
	}
}

func TestCreateEmbedding_EmptyTextRejectedBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3))
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := client.CreateEmbedding(context.Background(), text)
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("text %q: err = %v, want ErrInvalidInput", text, err)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("server was reached %d times", calls)
	}
}

func TestCreateEmbedding_DimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, []float32{0.1, 0.2}, nil)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 1536))
	_, err := client.CreateEmbedding(context.Background(), "hello")
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestCreateEmbedding_AuthFailureNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3))
	_, err := client.CreateEmbedding(context.Background(), "hello")
	if !errors.Is(err, apperr.ErrProviderAuth) {
		t.Errorf("err = %v, want ErrProviderAuth", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestCreateEmbedding_ServerErrorExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3))
	_, err := client.CreateEmbedding(context.Background(), "hello")
	if !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want exactly the configured budget", got)
	}
}

func TestCreateEmbedding_EmptyDataRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL, 3))
	_, err := client.CreateEmbedding(context.Background(), "hello")
	if !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Errorf("err = %v", err)
	}
}
