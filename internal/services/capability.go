package services

import (
	"context"

	"mockingbird/internal/audio"
)

// TranscriptSegment is one timestamped utterance returned by a transcriber.
type TranscriptSegment struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// TranscribeRequest asks a provider to transcribe a complete media file.
type TranscribeRequest struct {
	MediaPath string
	Language  string
	ModelSize string
	Device    string
}

// TranscribeResult carries the detected language and ordered segments.
type TranscribeResult struct {
	Language string
	Segments []TranscriptSegment
}

// Transcriber converts speech audio into timestamped text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req TranscribeRequest) (TranscribeResult, error)
	Health(ctx context.Context) error
}

// TranslateRequest asks a provider to translate one segment's text.
type TranslateRequest struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// Translator converts segment text between languages.
type Translator interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (string, error)
	Health(ctx context.Context) error
}

// SynthesizeRequest asks a provider to render speech for one segment.
type SynthesizeRequest struct {
	Text       string
	Language   string
	Voice      string
	SampleRate int
}

// Synthesizer renders target-language speech as a decoded audio track.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesizeRequest) (*audio.Track, error)
	Health(ctx context.Context) error
}
