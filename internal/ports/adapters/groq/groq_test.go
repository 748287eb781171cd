package groq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	a := New("gsk_testkey123", srv.URL, WithHTTPClient(srv.Client()), WithRetry(3, time.Millisecond, 5*time.Millisecond))
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk_000.mp3")
	if err := os.WriteFile(p, []byte("ID3fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTranscribe_SendsVerboseJSONForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk_testkey123" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("model") != DefaultTranscribeModel || r.FormValue("response_format") != "verbose_json" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		if r.FormValue("timestamp_granularities[]") != "segment" {
			t.Errorf("missing segment granularity")
		}
		if r.FormValue("language") != "es" {
			t.Errorf("expected language es, got %q", r.FormValue("language"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if hdr.Filename != "chunk_000.mp3" || string(b) != "ID3fake" {
				t.Errorf("unexpected file %q %q", hdr.Filename, b)
			}
		}
		_, _ = io.WriteString(w, `{"language":"spanish","duration":12.5,"text":"hola","segments":[{"start":0,"end":2.5,"text":" hola","no_speech_prob":0.1,"compression_ratio":1.2}]}`)
	}))
	defer srv.Close()

	tr, err := newTestAdapter(t, srv).Transcribe(context.Background(), writeAudio(t), "es")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "spanish" || tr.Duration != 12.5 || len(tr.Segments) != 1 {
		t.Fatalf("unexpected transcription: %+v", tr)
	}
	s := tr.Segments[0]
	if s.NoSpeechProb == nil || *s.NoSpeechProb != 0.1 || s.CompressionRatio == nil || *s.CompressionRatio != 1.2 {
		t.Fatalf("scoring fields not decoded: %+v", s)
	}
}

func TestTranscribe_OmitsAutoLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Errorf("language should be omitted for auto")
		}
		_, _ = io.WriteString(w, `{"language":"en","segments":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestAdapter(t, srv).Transcribe(context.Background(), writeAudio(t), "auto"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestComplete_RetriesThrottlingThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != DefaultChatModel || req.Temperature != DefaultTemperature || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Messages[0].Role != "system" || req.Messages[1].Content != "1\nhello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"  1\nhola \n"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	got, err := newTestAdapter(t, srv).Complete(context.Background(), "sys", "1\nhello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "1\nhola" {
		t.Fatalf("unexpected reply %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `invalid api_key=gsk_testkey123`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestAdapter(t, srv).Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
	if strings.Contains(err.Error(), "gsk_testkey123") {
		t.Fatalf("api key leaked in error: %v", err)
	}
	if !strings.Contains(err.Error(), "http 401") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestComplete_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := newTestAdapter(t, srv).Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWithKeyOverridesOnlyCopy(t *testing.T) {
	a := New("", "")
	if a.HasKey() {
		t.Fatalf("expected no key")
	}
	b := a.WithKey(" gsk_other ")
	if !b.HasKey() || a.HasKey() {
		t.Fatalf("WithKey should only change the copy")
	}
	if _, err := a.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBackoff(t *testing.T) {
	a := New("k", "", WithRetry(5, time.Second, 5*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := a.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRedactSecrets(t *testing.T) {
	apiKey := "gsk_supersecret"
	in := `status 401; Authorization: Bearer gsk_supersecret; api_key=gsk_supersecret; other gsk_abc123`
	got := redactSecrets(in, apiKey)
	if strings.Contains(got, apiKey) || strings.Contains(got, "gsk_abc123") {
		t.Fatalf("expected keys to be redacted, got: %q", got)
	}
	if !strings.Contains(got, "Authorization: [REDACTED]") {
		t.Fatalf("expected authorization header to be redacted, got: %q", got)
	}
}
