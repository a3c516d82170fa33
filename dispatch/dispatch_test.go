package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mc-localize/mctrans/asset"
	"github.com/mc-localize/mctrans/batch"
	"github.com/mc-localize/mctrans/mask"
)

func testBatch(texts ...string) batch.Batch {
	units := make([]mask.MaskedUnit, len(texts))
	for i, s := range texts {
		units[i] = mask.MaskedUnit{
			Unit:   asset.TranslationUnit{ID: "k" + s, Source: s},
			Masked: s,
		}
	}
	return batch.Batch{DocumentID: "doc", ModID: "create", Units: units}
}

// chatResponse wraps strings in an OpenAI chat completion envelope.
func chatResponse(t *testing.T, content string) []byte {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestClient(baseURL string, maxRetries int) *Client {
	return New(Options{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "test-model",
		Prompt:     "Translate mod {MOD_ID} from {SOURCE_LANG} to {TARGET_LANG}",
		SourceLang: "en_us",
		TargetLang: "zh_cn",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: 5 * time.Millisecond,
	}, nil)
}

func TestDispatchSuccess(t *testing.T) {
	var gotAuth string
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write(chatResponse(t, `["货车", "马车"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	out, err := c.Dispatch(context.Background(), testBatch("Cart", "Wagon"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(out) != 2 || out[0] != "货车" || out[1] != "马车" {
		t.Errorf("out = %v", out)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if gotReq.Messages[0].Content != "Translate mod create from en_us to zh_cn" {
		t.Errorf("system prompt = %q", gotReq.Messages[0].Content)
	}
	var sent []string
	if err := json.Unmarshal([]byte(gotReq.Messages[1].Content), &sent); err != nil {
		t.Fatalf("user content is not a JSON array: %q", gotReq.Messages[1].Content)
	}
	if len(sent) != 2 || sent[0] != "Cart" {
		t.Errorf("sent = %v", sent)
	}
}

func TestDispatchLengthMismatchRejectsBatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(chatResponse(t, `["one", "two"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	out, err := c.Dispatch(context.Background(), testBatch("a", "b", "c"))
	if err == nil {
		t.Fatalf("expected failure, got %v", out)
	}
	var shape *ResponseShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("err = %v, want ResponseShapeError", err)
	}
	if shape.Want != 3 || shape.Got != 2 {
		t.Errorf("shape = %+v", shape)
	}
	// Shape errors are transient: initial attempt plus two retries.
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestDispatchRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(chatResponse(t, `["ok"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	start := time.Now()
	out, err := c.Dispatch(context.Background(), testBatch("a"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out[0] != "ok" {
		t.Errorf("out = %v", out)
	}
	// The first backoff step is at least RetryDelay.
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("retried after %v, want >= retry delay", elapsed)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDispatchClientErrorFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.Dispatch(context.Background(), testBatch("a"))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 StatusError", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable)", calls)
	}
}

func TestDispatchRateLimitHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.Write(chatResponse(t, `["ok"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	start := time.Now()
	if _, err := c.Dispatch(context.Background(), testBatch("a")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("waited %v, want >= Retry-After of 1s", elapsed)
	}
}

func TestDispatchCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL, 5)
	if _, err := c.Dispatch(ctx, testBatch("a")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseStrings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		ok      bool
	}{
		{"bare array", `["a", "b"]`, 2, true},
		{"leading whitespace", "\n  [\"a\"]\n", 1, true},
		{"markdown fence", "```json\n[\"a\"]\n```", 1, false},
		{"not an array", `{"a": "b"}`, 1, false},
		{"non-string element", `["a", 2]`, 2, false},
		{"wrong length", `["a"]`, 2, false},
		{"prose around array", `Here you go: ["a"]`, 1, false},
	}

	for _, tc := range tests {
		out, err := parseStrings(tc.content, tc.want)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			var shape *ResponseShapeError
			if !errors.As(err, &shape) {
				t.Errorf("%s: err = %v, want ResponseShapeError", tc.name, err)
			}
		}
		if tc.ok && len(out) != tc.want {
			t.Errorf("%s: out = %v", tc.name, out)
		}
	}
}

func TestFetchModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"data": [{"id": "gpt-b"}, {"id": "gpt-a"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	models, err := c.FetchModels(context.Background())
	if err != nil {
		t.Fatalf("FetchModels: %v", err)
	}
	if len(models) != 2 || models[0] != "gpt-a" {
		t.Errorf("models = %v, want sorted", models)
	}
}
