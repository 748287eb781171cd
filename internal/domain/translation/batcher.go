// Package translation drives a chat model over SRT text in bounded batches,
// keeping the entry count and timing lines intact.
package translation

import (
	"context"
	"fmt"
	"strings"

	"github.com/forPelevin/subtle/internal/domain/subtitles"
	"github.com/forPelevin/subtle/internal/languages"
	"github.com/forPelevin/subtle/internal/platform/logger"
	"github.com/forPelevin/subtle/internal/ports"
)

const (
	DefaultBatchSize   = 80
	DefaultMaxAttempts = 3
)

type Batcher struct {
	Translator  ports.Translator
	BatchSize   int
	MaxAttempts int
	Log         *logger.Logger
}

func New(t ports.Translator, log *logger.Logger) *Batcher {
	return &Batcher{Translator: t, BatchSize: DefaultBatchSize, MaxAttempts: DefaultMaxAttempts, Log: log}
}

// SystemPrompt is the instruction sent with every batch.
func SystemPrompt(source, target string) string {
	from := ""
	if !languages.IsAuto(source) {
		from = " from " + languages.Name(source)
	}
	return fmt.Sprintf(`You are a professional subtitle translator. You will receive an SRT subtitle file. Translate ONLY the text lines%s into %s. You MUST preserve:
- All sequence numbers exactly as they are
- All timestamp lines exactly as they are (HH:MM:SS,mmm --> HH:MM:SS,mmm)
- The exact SRT format structure (blank line between entries)
- Do NOT add, remove, merge, or split any subtitle entries
Output ONLY the translated SRT content with no additional commentary.`, from, languages.Name(target))
}

// Translate returns srt translated into target. Batches run one after
// another and are joined with a blank line; the result ends with a single
// newline. A batch whose reply has a different entry count is requested
// again, and after MaxAttempts the last reply is kept as is.
func (b *Batcher) Translate(ctx context.Context, srt, source, target string) (string, error) {
	if b.Translator == nil {
		return "", fmt.Errorf("translation: translator is nil")
	}
	entries := subtitles.SplitEntries(srt)
	if len(entries) == 0 {
		return "", nil
	}
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	log := b.logger()
	system := SystemPrompt(source, target)

	total := (len(entries) + size - 1) / size
	log.Info("translation started", "entries", len(entries), "batch_size", size, "batches", total, "target", target)

	parts := make([]string, 0, total)
	for i := 0; i < len(entries); i += size {
		end := min(i+size, len(entries))
		n := i/size + 1
		out, err := b.translateBatch(ctx, system, entries[i:end], n, total)
		if err != nil {
			return "", err
		}
		log.Info("translation batch done", "batch", n, "of", total, "first_entry", i+1, "last_entry", end)
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n") + "\n", nil
}

func (b *Batcher) translateBatch(ctx context.Context, system string, entries []string, n, total int) (string, error) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	user := strings.Join(entries, "\n\n")
	op := fmt.Sprintf("batch %d/%d", n, total)

	var out string
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", ports.Wrap(ports.ErrCancelled, "translation", op, "", err)
		}
		reply, err := b.Translator.Complete(ctx, system, user)
		if err != nil {
			if ctx.Err() != nil {
				return "", ports.Wrap(ports.ErrCancelled, "translation", op, "", ctx.Err())
			}
			return "", ports.Wrap(ports.ErrUpstream, "translation", op, "", err)
		}
		out = cleanReply(reply)
		got := len(subtitles.SplitEntries(out))
		if got == len(entries) {
			return out, nil
		}
		b.logger().Warn("translation entry count mismatch", "batch", n, "attempt", attempt, "want", len(entries), "got", got)
	}
	b.logger().Warn("keeping mismatched translation batch", "batch", n, "attempts", attempts)
	return out, nil
}

// cleanReply trims the reply and drops a surrounding markdown code fence.
func cleanReply(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (b *Batcher) logger() *logger.Logger {
	if b.Log == nil {
		return logger.Nop()
	}
	return b.Log
}
