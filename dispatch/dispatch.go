// Package dispatch implements the translation endpoint client: one
// OpenAI-compatible chat completion call per batch, under the global
// network admission gate, with retry and exponential backoff on transient
// failures.
//
// The response contract is strict. The model must return a bare JSON array
// of strings with exactly one element per input unit; anything else —
// wrong length, markdown fencing, non-string elements — is a
// ResponseShapeError and the whole batch is retried, never partially
// applied.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mc-localize/mctrans/batch"
)

// Options configures the endpoint client.
type Options struct {
	// BaseURL is the API base URL, e.g. https://api.openai.com/v1.
	BaseURL string
	// APIKey is the bearer token.
	APIKey string
	// Model is the model identifier.
	Model string
	// Prompt is the system prompt template with {MOD_ID}, {SOURCE_LANG}
	// and {TARGET_LANG} substitution tokens.
	Prompt string
	// SourceLang and TargetLang are substituted into the prompt.
	SourceLang string
	TargetLang string
	// Proxy is an optional HTTP/HTTPS proxy URL; when empty the standard
	// proxy environment variables apply.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is the base of the exponential backoff.
	RetryDelay time.Duration
	// Verbose enables request-level debug logging.
	Verbose bool
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 120 * time.Second
}

// Client issues batch translation requests.
type Client struct {
	opts   Options
	http   *http.Client
	netSem *semaphore.Weighted
}

// New builds a Client. netSem is the global network concurrency gate
// shared across all concurrently processed assets; nil disables gating
// (used by tests and the models command).
func New(opts Options, netSem *semaphore.Weighted) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		if parsed, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &Client{
		opts: opts,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.effectiveTimeout(),
		},
		netSem: netSem,
	}
}

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ResponseShapeError reports a response that is not a bare JSON string
// array of the expected length. Retried as a transient failure.
type ResponseShapeError struct {
	Want   int
	Got    int
	Reason string
}

func (e *ResponseShapeError) Error() string {
	if e.Reason != "" {
		return "response shape: " + e.Reason
	}
	return fmt.Sprintf("response shape: got %d strings, want %d", e.Got, e.Want)
}

// StatusError reports a non-2xx HTTP status. 429 and 5xx are transient;
// other 4xx fail the batch immediately.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, truncate(e.Body, 300))
}

// TransportError wraps a network-level failure (connection refused, DNS,
// request timeout). Always transient.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "request failed: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// retryable reports whether an error is a transient failure worth another
// attempt.
func retryable(err error) bool {
	switch e := err.(type) {
	case *ResponseShapeError, *TransportError:
		return true
	case *StatusError:
		return e.Code == http.StatusTooManyRequests || e.Code >= 500
	}
	return false
}

// backoff computes the wait before the next attempt: a Retry-After header
// wins, otherwise retry_delay doubled per attempt.
func (c *Client) backoff(err error, attempt int) time.Duration {
	if se, ok := err.(*StatusError); ok && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	base := c.opts.RetryDelay
	if base <= 0 {
		base = time.Second
	}
	return time.Duration(math.Pow(2, float64(attempt))) * base
}

// ---------------------------------------------------------------------------
// Batch dispatch
// ---------------------------------------------------------------------------

// Dispatch translates one batch. It blocks on the global network gate,
// then runs the attempt loop. On success the returned slice has exactly
// one element per unit, in request order.
//
// The run context gates admission, backoff waits and new attempts; the
// HTTP request itself runs under its own timeout so an in-flight call
// completes or times out naturally instead of being aborted mid-response.
func (c *Client) Dispatch(ctx context.Context, b batch.Batch) ([]string, error) {
	if c.netSem != nil {
		if err := c.netSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.netSem.Release(1)
	}

	texts := make([]string, len(b.Units))
	for i, u := range b.Units {
		texts[i] = u.Masked
	}
	userContent, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	systemPrompt := c.renderPrompt(b.ModID)

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.opts.Verbose {
			log.Printf("[DEBUG] %s batch %d attempt %d/%d (%d units)",
				b.DocumentID, b.Index, attempt+1, c.opts.MaxRetries+1, len(b.Units))
		}

		translations, err := c.tryOnce(systemPrompt, string(userContent), len(texts))
		if err == nil {
			return translations, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if attempt < c.opts.MaxRetries {
			wait := c.backoff(err, attempt)
			if c.opts.Verbose {
				log.Printf("[WARN] %s batch %d: %v — retrying in %v", b.DocumentID, b.Index, err, wait)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", c.opts.MaxRetries, lastErr)
}

// tryOnce performs a single round trip: request, status check, content
// extraction, strict array parse.
func (c *Client) tryOnce(systemPrompt, userContent string, want int) ([]string, error) {
	body, err := buildChatRequest(c.opts.Model, systemPrompt, userContent)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				se.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, se
	}

	content, err := extractContent(respBody)
	if err != nil {
		return nil, err
	}
	return parseStrings(content, want)
}

func buildChatRequest(model, systemPrompt, userContent string) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.1,
		Stream:      false,
	}
	return json.Marshal(req)
}

// extractContent pulls choices[0].message.content out of a chat
// completion response. A 200 body we cannot read is treated like any
// other malformed response shape.
func extractContent(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ResponseShapeError{Reason: "invalid JSON response body"}
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ResponseShapeError{Reason: "empty completion content"}
	}
	return resp.Choices[0].Message.Content, nil
}

// parseStrings enforces the response contract: a bare JSON array of
// exactly want strings. Markdown fencing is a contract violation, not
// something to strip — the prompt forbids it, and stripping hides a model
// that is not following the rest of the prompt either.
func parseStrings(content string, want int) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		return nil, &ResponseShapeError{Want: want, Reason: "markdown code fence around response"}
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ResponseShapeError{Want: want, Reason: "response is not a JSON array"}
	}

	var out []string
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, &ResponseShapeError{Want: want, Reason: "not an array of strings: " + err.Error()}
	}
	if len(out) != want {
		return nil, &ResponseShapeError{Want: want, Got: len(out)}
	}
	return out, nil
}

// renderPrompt substitutes the context tokens into the prompt template.
func (c *Client) renderPrompt(modID string) string {
	return strings.NewReplacer(
		"{MOD_ID}", modID,
		"{SOURCE_LANG}", c.opts.SourceLang,
		"{TARGET_LANG}", c.opts.TargetLang,
	).Replace(c.opts.Prompt)
}

// ---------------------------------------------------------------------------
// Models listing (connection check)
// ---------------------------------------------------------------------------

// FetchModels lists the model ids offered by the endpoint. Used by the
// models command and as a cheap connectivity check before a run.
func (c *Client) FetchModels(ctx context.Context) ([]string, error) {
	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/models"

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		models, err := c.fetchModelsOnce(endpoint)
		if err == nil {
			return models, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if attempt < c.opts.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(err, attempt)):
			}
		}
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", c.opts.MaxRetries, lastErr)
}

func (c *Client) fetchModelsOnce(endpoint string) ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ResponseShapeError{Reason: "invalid models response"}
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
