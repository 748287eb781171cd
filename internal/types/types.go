package types

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// RawSegment is a segment as returned by the speech service. The scoring
// fields are optional and only consulted by the hallucination filter.
type RawSegment struct {
	Start            float64  `json:"start"`
	End              float64  `json:"end"`
	Text             string   `json:"text"`
	NoSpeechProb     *float64 `json:"no_speech_prob,omitempty"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
}

func (r RawSegment) Segment() Segment {
	return Segment{Start: r.Start, End: r.End, Text: r.Text}
}

type Transcription struct {
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []RawSegment `json:"segments"`
}

type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

type Step string

const (
	StepUploading     Step = "uploading"
	StepExtracting    Step = "extracting"
	StepTranscribing  Step = "transcribing"
	StepTranslating   Step = "translating"
	StepRestructuring Step = "restructuring"
)

// ProgressEvent is one line of the progress stream. Progress events carry
// Step/Message (and chunk counters while transcribing); the terminal result
// event carries SRT; the terminal error event carries Error.
type ProgressEvent struct {
	Type          EventType `json:"type"`
	Step          Step      `json:"step,omitempty"`
	Message       string    `json:"message,omitempty"`
	Chunk         *int      `json:"chunk,omitempty"`
	TotalChunks   *int      `json:"totalChunks,omitempty"`
	UploadPercent *int      `json:"uploadPercent,omitempty"`

	SRT              string  `json:"srt,omitempty"`
	JobID            string  `json:"jobId,omitempty"`
	DetectedLanguage string  `json:"detectedLanguage,omitempty"`
	Duration         float64 `json:"duration,omitempty"`

	Error string `json:"error,omitempty"`
}

func Progress(step Step, message string) ProgressEvent {
	return ProgressEvent{Type: EventProgress, Step: step, Message: message}
}

func ChunkProgress(message string, chunk, total int) ProgressEvent {
	ev := Progress(StepTranscribing, message)
	ev.Chunk = &chunk
	ev.TotalChunks = &total
	return ev
}

func Failure(err error) ProgressEvent {
	msg := "internal server error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return ProgressEvent{Type: EventError, Error: msg}
}

// Result is the outcome of one successful pipeline run.
type Result struct {
	SRT              string
	DetectedLanguage string
	Duration         float64
	Segments         int
}

func (r Result) Event(jobID string) ProgressEvent {
	return ProgressEvent{
		Type:             EventResult,
		SRT:              r.SRT,
		JobID:            jobID,
		DetectedLanguage: r.DetectedLanguage,
		Duration:         r.Duration,
	}
}
