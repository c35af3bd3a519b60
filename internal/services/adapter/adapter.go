package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mockingbird/internal/audio"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// Policy controls per-provider retries inside a fallback chain.
type Policy struct {
	// MaxAttempts is the total tries against one provider before falling
	// back (1 means no retries).
	MaxAttempts int
	Backoff     services.Backoff
	// Sleep overrides retry waits in tests.
	Sleep services.Sleeper
}

// DefaultPolicy returns the repository retry policy for provider chains.
func DefaultPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{MaxAttempts: maxRetries + 1, Backoff: services.DefaultBackoff()}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Attempt records one provider call inside a chain invocation. The final
// successful call, when there is one, closes the history with Kind "ok" so
// callers can tell which provider ultimately served the request.
type Attempt struct {
	Provider string    `json:"provider"`
	Try      int       `json:"try"`
	Kind     string    `json:"kind"`
	Err      string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

const kindSucceeded = "ok"

// Winner returns the provider that served the call, empty after exhaustion.
func Winner(attempts []Attempt) string {
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Kind == kindSucceeded {
			return attempts[i].Provider
		}
	}
	return ""
}

// Failures filters the failed calls out of an attempt history.
func Failures(attempts []Attempt) []Attempt {
	out := make([]Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Kind != kindSucceeded {
			out = append(out, a)
		}
	}
	return out
}

// ChainError aggregates every failed attempt after a chain is exhausted.
type ChainError struct {
	Capability string
	Attempts   []Attempt
	last       error
}

func (e *ChainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	providers := make([]string, 0, len(e.Attempts))
	seen := make(map[string]struct{}, len(e.Attempts))
	for _, a := range e.Attempts {
		if _, dup := seen[a.Provider]; dup {
			continue
		}
		seen[a.Provider] = struct{}{}
		providers = append(providers, a.Provider)
	}
	return fmt.Sprintf("%s: all providers failed (%s) after %d attempts: %v",
		e.Capability, strings.Join(providers, ", "), len(e.Attempts), e.last)
}

func (e *ChainError) Unwrap() error { return e.last }

// Is marks chain exhaustion as a service-class failure for classification.
func (e *ChainError) Is(target error) bool { return target == services.ErrService }

func sleep(ctx context.Context, delay time.Duration, sleeper services.Sleeper) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// invoke drives the retry/fallback loop over an ordered provider list. The
// call receives the provider index; names must align with it.
func invoke[R any](ctx context.Context, capability string, policy Policy, logger *slog.Logger, names []string, call func(ctx context.Context, index int) (R, error)) (R, []Attempt, error) {
	var zero R
	if logger == nil {
		logger = logging.NewNop()
	}
	maxAttempts := policy.attempts()
	attempts := make([]Attempt, 0, len(names))
	var lastErr error

	for index, name := range names {
		exhausted := false
		for try := 1; try <= maxAttempts && !exhausted; try++ {
			result, err := call(ctx, index)
			if err == nil {
				attempts = append(attempts, Attempt{
					Provider: name,
					Try:      try,
					Kind:     kindSucceeded,
					At:       time.Now().UTC(),
				})
				return result, attempts, nil
			}
			lastErr = err
			kind := services.KindOf(err)
			attempts = append(attempts, Attempt{
				Provider: name,
				Try:      try,
				Kind:     kind.String(),
				Err:      err.Error(),
				At:       time.Now().UTC(),
			})

			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return zero, attempts, fmt.Errorf("%s canceled: %w", capability, err)
			}

			switch services.Decide(kind, try, maxAttempts) {
			case services.DecisionRetry:
				delay := policy.Backoff.Delay(try)
				if hold := services.HoldOf(err); hold > delay {
					delay = policy.Backoff.Clamp(hold)
				}
				logger.Debug("provider retry",
					logging.String("capability", capability),
					logging.String("provider", name),
					logging.Int("attempt", try),
					logging.Duration("delay", delay),
					logging.Error(err))
				if sleepErr := sleep(ctx, delay, policy.Sleep); sleepErr != nil {
					return zero, attempts, fmt.Errorf("%s canceled: %w", capability, sleepErr)
				}
			case services.DecisionFallback:
				logger.Warn("provider failed, falling back",
					logging.String("capability", capability),
					logging.String("provider", name),
					logging.Int("attempts", try),
					logging.Error(err))
				exhausted = true
			case services.DecisionAbort:
				return zero, attempts, fmt.Errorf("%s rejected input: %w", capability, err)
			}
		}
	}

	return zero, attempts, &ChainError{Capability: capability, Attempts: attempts, last: lastErr}
}

// TranscriberChain tries transcription providers in order.
type TranscriberChain struct {
	providers []services.Transcriber
	policy    Policy
	logger    *slog.Logger
}

// NewTranscriberChain builds a fallback chain over the given providers.
func NewTranscriberChain(policy Policy, logger *slog.Logger, providers ...services.Transcriber) *TranscriberChain {
	return &TranscriberChain{providers: providers, policy: policy, logger: logging.NewComponentLogger(logger, "transcriber-chain")}
}

// Names lists the chain's providers in order.
func (c *TranscriberChain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Transcribe invokes the chain, returning the result plus the attempt history.
func (c *TranscriberChain) Transcribe(ctx context.Context, req services.TranscribeRequest) (services.TranscribeResult, []Attempt, error) {
	if len(c.providers) == 0 {
		return services.TranscribeResult{}, nil, services.Wrap(services.ErrConfiguration, "", "transcribe", "no providers configured", nil)
	}
	return invoke(ctx, "transcribe", c.policy, c.logger, c.Names(), func(ctx context.Context, index int) (services.TranscribeResult, error) {
		return c.providers[index].Transcribe(ctx, req)
	})
}

// Health probes providers in order and reports the first healthy one.
func (c *TranscriberChain) Health(ctx context.Context) error {
	return chainHealth(ctx, "transcribe", c.Names(), func(ctx context.Context, index int) error {
		return c.providers[index].Health(ctx)
	})
}

// TranslatorChain tries translation providers in order.
type TranslatorChain struct {
	providers []services.Translator
	policy    Policy
	logger    *slog.Logger
}

// NewTranslatorChain builds a fallback chain over the given providers.
func NewTranslatorChain(policy Policy, logger *slog.Logger, providers ...services.Translator) *TranslatorChain {
	return &TranslatorChain{providers: providers, policy: policy, logger: logging.NewComponentLogger(logger, "translator-chain")}
}

// Names lists the chain's providers in order.
func (c *TranslatorChain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Translate invokes the chain for one segment's text.
func (c *TranslatorChain) Translate(ctx context.Context, req services.TranslateRequest) (string, []Attempt, error) {
	if len(c.providers) == 0 {
		return "", nil, services.Wrap(services.ErrConfiguration, "", "translate", "no providers configured", nil)
	}
	return invoke(ctx, "translate", c.policy, c.logger, c.Names(), func(ctx context.Context, index int) (string, error) {
		return c.providers[index].Translate(ctx, req)
	})
}

// Health probes providers in order and reports the first healthy one.
func (c *TranslatorChain) Health(ctx context.Context) error {
	return chainHealth(ctx, "translate", c.Names(), func(ctx context.Context, index int) error {
		return c.providers[index].Health(ctx)
	})
}

// SynthesizerChain tries speech synthesis providers in order.
type SynthesizerChain struct {
	providers []services.Synthesizer
	policy    Policy
	logger    *slog.Logger
}

// NewSynthesizerChain builds a fallback chain over the given providers.
func NewSynthesizerChain(policy Policy, logger *slog.Logger, providers ...services.Synthesizer) *SynthesizerChain {
	return &SynthesizerChain{providers: providers, policy: policy, logger: logging.NewComponentLogger(logger, "synthesizer-chain")}
}

// Names lists the chain's providers in order.
func (c *SynthesizerChain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Synthesize invokes the chain for one segment.
func (c *SynthesizerChain) Synthesize(ctx context.Context, req services.SynthesizeRequest) (*audio.Track, []Attempt, error) {
	if len(c.providers) == 0 {
		return nil, nil, services.Wrap(services.ErrConfiguration, "", "synthesize", "no providers configured", nil)
	}
	return invoke(ctx, "synthesize", c.policy, c.logger, c.Names(), func(ctx context.Context, index int) (*audio.Track, error) {
		return c.providers[index].Synthesize(ctx, req)
	})
}

// Health probes providers in order and reports the first healthy one.
func (c *SynthesizerChain) Health(ctx context.Context) error {
	return chainHealth(ctx, "synthesize", c.Names(), func(ctx context.Context, index int) error {
		return c.providers[index].Health(ctx)
	})
}

func chainHealth(ctx context.Context, capability string, names []string, probe func(ctx context.Context, index int) error) error {
	if len(names) == 0 {
		return services.Wrap(services.ErrConfiguration, "", capability, "no providers configured", nil)
	}
	var failures []string
	for index, name := range names {
		if err := probe(ctx, index); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return nil
	}
	return services.Wrap(services.ErrService, "", capability, "no healthy provider: "+strings.Join(failures, "; "), nil)
}
