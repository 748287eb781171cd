// Package groq talks to OpenAI-compatible speech and chat endpoints. Groq is
// the default host; api.openai.com and openrouter.ai accept the same shapes.
package groq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTranscribeModel = "whisper-large-v3"
	DefaultChatModel       = "llama-3.3-70b-versatile"
	DefaultTemperature     = 0.3

	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 20 * time.Second
	maxErrorBody          = 400
)

type Adapter struct {
	key             string
	baseURL         string
	transcribeModel string
	chatModel       string
	temperature     float64
	client          *http.Client

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleep          func(context.Context, time.Duration) error
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// WithModels overrides the speech and chat models. Empty values keep the defaults.
func WithModels(transcribe, chat string) Option {
	return func(a *Adapter) {
		if s := strings.TrimSpace(transcribe); s != "" {
			a.transcribeModel = s
		}
		if s := strings.TrimSpace(chat); s != "" {
			a.chatModel = s
		}
	}
}

func WithTemperature(t float64) Option {
	return func(a *Adapter) { a.temperature = t }
}

func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(a *Adapter) {
		a.retryAttempts = attempts
		a.retryBaseDelay = baseDelay
		a.retryMaxDelay = maxDelay
	}
}

func New(apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		key:             strings.TrimSpace(apiKey),
		baseURL:         normalizeBaseURL(baseURL),
		transcribeModel: DefaultTranscribeModel,
		chatModel:       DefaultChatModel,
		temperature:     DefaultTemperature,
		client:          &http.Client{Timeout: 10 * time.Minute},
		retryAttempts:   defaultRetryAttempts,
		retryBaseDelay:  defaultRetryBaseDelay,
		retryMaxDelay:   defaultRetryMaxDelay,
		sleep:           sleepCtx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithKey returns a copy of the adapter that authenticates with key. An empty
// key returns the adapter unchanged.
func (a *Adapter) WithKey(key string) *Adapter {
	key = strings.TrimSpace(key)
	if key == "" {
		return a
	}
	cp := *a
	cp.key = key
	return &cp
}

func (a *Adapter) HasKey() bool { return a.key != "" }

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// do sends the request built by newReq, retrying throttling, server errors
// and transport timeouts with exponential backoff. newReq is called once per
// attempt so bodies can be replayed.
func (a *Adapter) do(ctx context.Context, op string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	if a.key == "" {
		return nil, fmt.Errorf("%s: api key is required", op)
	}
	attempts := max(a.retryAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := a.once(ctx, newReq)
		if err == nil {
			return body, nil
		}
		lastErr = err
		delay, retry := a.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := a.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (a *Adapter) once(ctx context.Context, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &statusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(redactSecrets(strings.TrimSpace(string(body)), a.key), maxErrorBody),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

func (a *Adapter) retryDelay(ctx context.Context, err error, attempt, attempts int) (time.Duration, bool) {
	if attempt >= attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= http.StatusInternalServerError:
			if se.RetryAfter > 0 {
				return min(se.RetryAfter, a.retryMaxDelay), true
			}
			return a.backoff(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return a.backoff(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return a.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles from the base delay per attempt, capped at the max delay.
func (a *Adapter) backoff(attempt int) time.Duration {
	delay := a.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay > a.retryMaxDelay/2 {
			return a.retryMaxDelay
		}
		delay *= 2
	}
	return min(delay, a.retryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
	groqKeyRE     = regexp.MustCompile(`\bgsk_[A-Za-z0-9]+\b`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = groqKeyRE.ReplaceAllString(out, "[REDACTED]")
	return out
}
