package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete runs one chat completion and returns the trimmed reply text.
func (a *Adapter) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", errors.New("groq chat: user prompt is empty")
	}
	payload := chatRequest{
		Model:       a.chatModel,
		Temperature: a.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("groq chat: marshal request: %w", err)
	}

	endpoint := a.baseURL + "/chat/completions"
	raw, err := a.do(ctx, "groq chat", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("groq chat: decode response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("groq chat: api error: %s", truncate(redactSecrets(resp.Error.Message, a.key), maxErrorBody))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("groq chat: empty choices")
	}
	content, err := messageContentToString(resp.Choices[0].Message.Content)
	if err != nil {
		return "", fmt.Errorf("groq chat: %w (finish_reason=%q)", err, resp.Choices[0].FinishReason)
	}
	return strings.TrimSpace(content), nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", errors.New("empty content")
		}
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		if strings.TrimSpace(b.String()) == "" {
			return "", errors.New("empty content")
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unexpected content type %T", v)
	}
}
