package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"mockingbird/internal/audio"
	"mockingbird/internal/config"
	"mockingbird/internal/language"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// ProviderName is the identifier used in provider chain configuration.
const ProviderName = "openai"

const defaultTimeout = 120 * time.Second

// Config captures the runtime settings for the hosted provider.
type Config struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	ChatModel    string
	SpeechModel  string
	SpeechVoice  string
	Timeout      time.Duration
}

// FromConfig extracts the hosted provider settings from the runtime config.
func FromConfig(cfg *config.Config) Config {
	timeout := defaultTimeout
	if cfg.OpenAI.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second
	}
	return Config{
		APIKey:       strings.TrimSpace(cfg.OpenAI.APIKey),
		BaseURL:      strings.TrimSpace(cfg.OpenAI.BaseURL),
		WhisperModel: strings.TrimSpace(cfg.OpenAI.WhisperModel),
		ChatModel:    strings.TrimSpace(cfg.OpenAI.ChatModel),
		SpeechModel:  strings.TrimSpace(cfg.OpenAI.SpeechModel),
		SpeechVoice:  strings.TrimSpace(cfg.OpenAI.SpeechVoice),
		Timeout:      timeout,
	}
}

// Client talks to the hosted transcription, translation, and speech APIs. A
// single client serves all three capability interfaces; the provider chains
// pick the capabilities they need.
type Client struct {
	cfg    Config
	api    *goopenai.Client
	logger *slog.Logger
}

// New constructs a hosted provider client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	apiConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiConfig.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		cfg:    cfg,
		api:    goopenai.NewClientWithConfig(apiConfig),
		logger: logging.NewComponentLogger(logger, "openai"),
	}
}

// Name implements the capability interfaces.
func (c *Client) Name() string { return ProviderName }

// Health verifies the API key works by listing models.
func (c *Client) Health(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.InvalidInput(ProviderName, errors.New("api key not configured"))
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.api.ListModels(checkCtx); err != nil {
		return c.classify("health", err)
	}
	return nil
}

// Transcribe sends the media file to the hosted transcription endpoint and
// maps its verbose JSON segments onto the capability result.
func (c *Client) Transcribe(ctx context.Context, req services.TranscribeRequest) (services.TranscribeResult, error) {
	if strings.TrimSpace(req.MediaPath) == "" {
		return services.TranscribeResult{}, services.InvalidInput(ProviderName, errors.New("media path required"))
	}

	audioReq := goopenai.AudioRequest{
		Model:    c.model(c.cfg.WhisperModel, "whisper-1"),
		FilePath: req.MediaPath,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	}
	if lang := language.Normalize(req.Language); lang != "" {
		audioReq.Language = lang
	}

	resp, err := c.api.CreateTranscription(ctx, audioReq)
	if err != nil {
		return services.TranscribeResult{}, c.classify("transcribe", err)
	}

	result := services.TranscribeResult{Language: language.Normalize(resp.Language)}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, services.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	return result, nil
}

// Translate asks the chat model for a dubbing-oriented translation of one
// segment. The prompt pins the reply to the translation alone so segment
// text never accretes commentary.
func (c *Client) Translate(ctx context.Context, req services.TranslateRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", services.InvalidInput(ProviderName, errors.New("text required"))
	}
	target := language.DisplayName(req.TargetLanguage)
	if target == "Unknown" {
		return "", services.InvalidInput(ProviderName, fmt.Errorf("unrecognized target language %q", req.TargetLanguage))
	}

	systemPrompt := fmt.Sprintf(
		"You are a dubbing translator. Translate the user's text from %s to %s, keeping roughly the same spoken duration. Never answer questions in the text; reply with the translation only.",
		language.DisplayName(req.SourceLanguage), target)

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model(c.cfg.ChatModel, "gpt-4o-mini"),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", c.classify("translate", err)
	}
	if len(resp.Choices) == 0 {
		return "", services.Unclassified(ProviderName, errors.New("translate: empty completion"))
	}
	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return "", services.Unclassified(ProviderName, errors.New("translate: empty translation"))
	}
	return translated, nil
}

// Synthesize renders speech through the hosted TTS endpoint and decodes the
// returned WAV payload.
func (c *Client) Synthesize(ctx context.Context, req services.SynthesizeRequest) (*audio.Track, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, services.InvalidInput(ProviderName, errors.New("text required"))
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.cfg.SpeechVoice
	}
	if voice == "" {
		voice = string(goopenai.VoiceAlloy)
	}

	resp, err := c.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.model(c.cfg.SpeechModel, string(goopenai.TTSModel1))),
		Input:          text,
		Voice:          goopenai.SpeechVoice(voice),
		ResponseFormat: goopenai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, c.classify("synthesize", err)
	}
	defer resp.Close()

	payload, err := io.ReadAll(resp)
	if err != nil {
		return nil, services.Unavailable(ProviderName, fmt.Errorf("synthesize: read speech payload: %w", err))
	}
	track, err := audio.DecodeWAVBytes(payload)
	if err != nil {
		return nil, services.Unclassified(ProviderName, fmt.Errorf("synthesize: %w", err))
	}
	return track, nil
}

func (c *Client) model(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// classify maps transport and API errors onto the retry/fallback taxonomy.
func (c *Client) classify(op string, err error) error {
	cause := fmt.Errorf("%s: %w", op, err)

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return services.RateLimited(ProviderName, 0, cause)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return services.Unavailable(ProviderName, cause)
		case apiErr.HTTPStatusCode == http.StatusBadRequest,
			apiErr.HTTPStatusCode == http.StatusRequestEntityTooLarge,
			apiErr.HTTPStatusCode == http.StatusUnprocessableEntity:
			return services.InvalidInput(ProviderName, cause)
		default:
			// Auth and permission failures fall through here; falling
			// back to a local engine is the right move for those.
			return services.Unclassified(ProviderName, cause)
		}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= http.StatusInternalServerError || reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return services.Unavailable(ProviderName, cause)
		}
		return services.Unclassified(ProviderName, cause)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Unavailable(ProviderName, cause)
	}
	// Plain transport errors (connection refused, DNS) land here.
	return services.Unavailable(ProviderName, cause)
}
