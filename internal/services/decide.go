package services

// Decision is the adapter's next move after a provider failure.
type Decision int

const (
	// DecisionRetry repeats the call against the same provider after backoff.
	DecisionRetry Decision = iota
	// DecisionFallback advances to the next provider in the chain.
	DecisionFallback
	// DecisionAbort stops the chain entirely; the input itself is broken.
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionFallback:
		return "fallback"
	default:
		return "abort"
	}
}

// Decide maps a failure kind and the 1-based attempt number on the current
// provider to the adapter's next move. Transient kinds retry until the
// per-provider attempt budget is spent, then fall back. Invalid input aborts
// immediately: a different provider cannot repair a broken request. Unknown
// failures fall back without burning retries on a provider that is answering
// but misbehaving.
func Decide(kind ErrorKind, attempt, maxAttempts int) Decision {
	switch kind {
	case KindInvalidInput:
		return DecisionAbort
	case KindUnavailable, KindRateLimited:
		if attempt < maxAttempts {
			return DecisionRetry
		}
		return DecisionFallback
	default:
		return DecisionFallback
	}
}
