package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/subtle/internal/languages"
	"github.com/forPelevin/subtle/internal/types"
)

type verboseTranscription struct {
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Text     string             `json:"text"`
	Segments []types.RawSegment `json:"segments"`
}

// Transcribe uploads one audio file and returns its segments. The language
// field is left out when language is empty or "auto".
func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) (types.Transcription, error) {
	body, contentType, err := a.transcriptionForm(audioPath, language)
	if err != nil {
		return types.Transcription{}, err
	}

	endpoint := a.baseURL + "/audio/transcriptions"
	raw, err := a.do(ctx, "groq transcribe", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return types.Transcription{}, err
	}

	var vt verboseTranscription
	if err := json.Unmarshal(raw, &vt); err != nil {
		return types.Transcription{}, fmt.Errorf("groq transcribe: decode response: %w", err)
	}
	if vt.Segments == nil && strings.TrimSpace(vt.Text) != "" {
		return types.Transcription{}, fmt.Errorf("groq transcribe: response has text but no segments")
	}
	return types.Transcription{
		Language: strings.TrimSpace(vt.Language),
		Duration: vt.Duration,
		Segments: vt.Segments,
	}, nil
}

func (a *Adapter) transcriptionForm(audioPath, language string) ([]byte, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("groq transcribe: open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", a.transcribeModel},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if !languages.IsAuto(language) {
		fields = append(fields, [2]string{"language", strings.TrimSpace(language)})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("groq transcribe: read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
