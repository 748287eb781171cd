package ports

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInput      = errors.New("invalid input")
	ErrUpstream   = errors.New("upstream service error")
	ErrExtraction = errors.New("audio extraction failed")
	ErrCancelled  = errors.New("job cancelled")
)

// Wrap tags err with marker and prefixes it with stage/operation context so
// callers can classify it with errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Message strips the marker prefix so the caller sees the detail only.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, m := range []error{ErrInput, ErrUpstream, ErrExtraction, ErrCancelled} {
		if errors.Is(err, m) {
			msg = strings.TrimPrefix(msg, m.Error()+": ")
			break
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
