// Package classify buckets failures from external calls (LLM completion,
// document compilation, side-channel fetches) into a retry taxonomy. It
// is the single source of truth for retry eligibility: no other component
// in the pipeline sniffs error strings.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the failure taxonomy.
type Kind string

const (
	// KindRateLimit means the provider is shedding load; wait and retry.
	KindRateLimit Kind = "rate_limit"

	// KindContextOverflow means the payload exceeded the model's input
	// capacity; shrink and retry, do not wait.
	KindContextOverflow Kind = "context_overflow"

	// KindTransientNetwork covers connection resets, DNS failures, and
	// other transport-level flakes.
	KindTransientNetwork Kind = "transient_network"

	// KindTimeout means a call exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindServerError covers upstream 5xx responses.
	KindServerError Kind = "server_error"

	// KindUnknown is anything unrecognized. Never retried: masking a
	// genuine bug behind a retry loop helps nobody.
	KindUnknown Kind = "unknown"
)

// Classification is the structured verdict for one failure. It is a pure
// function of the failure's message; classifications carry no identity
// and may be compared by value.
type Classification struct {
	Kind           Kind
	Retryable      bool
	SuggestedDelay time.Duration
	Message        string
}

// DefaultBaseDelay is the suggested delay when a retryable failure gives
// no better hint of its own.
const DefaultBaseDelay = 2 * time.Second

// retryAfterRe matches provider phrasing like "retry after 12 seconds" or
// "Please try again in 7.5s".
var retryAfterRe = regexp.MustCompile(`(?:retry after|try again in)\s+(\d+(?:\.\d+)?)\s*s(?:econds?)?`)

// Marker tables, checked in priority order. First match wins.
var (
	rateLimitMarkers = []string{
		"429",
		"rate limit",
		"rate_limit",
		"too many requests",
		"tokens per minute",
		"quota exceeded",
		"resource exhausted",
	}
	overflowMarkers = []string{
		"context length",
		"context_length",
		"context window",
		"maximum context",
		"token limit",
		"tokens exceed",
		"too long",
		"input too large",
		"prompt is too",
	}
	timeoutMarkers = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}
	networkMarkers = []string{
		"connection refused",
		"connection reset",
		"no such host",
		"dns",
		"broken pipe",
		"network is unreachable",
		"eof",
		"tls handshake",
		"socket",
	}
	serverMarkers = []string{
		"500", "502", "503", "504",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"server overloaded",
		"overloaded_error",
	}
)

// Classify inspects err and returns its classification. Matching is
// case-insensitive substring matching over the error text, evaluated in
// priority order; the same message always yields the same verdict.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Retryable: false, Message: "no error"}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	if containsAny(lower, rateLimitMarkers) {
		return Classification{
			Kind:           KindRateLimit,
			Retryable:      true,
			SuggestedDelay: parseRetryAfter(lower),
			Message:        msg,
		}
	}
	if containsAny(lower, overflowMarkers) {
		// Zero delay on purpose: the remedy is shrinking the payload,
		// not waiting.
		return Classification{
			Kind:      KindContextOverflow,
			Retryable: true,
			Message:   msg,
		}
	}
	if containsAny(lower, timeoutMarkers) {
		return Classification{
			Kind:           KindTimeout,
			Retryable:      true,
			SuggestedDelay: DefaultBaseDelay,
			Message:        msg,
		}
	}
	if containsAny(lower, networkMarkers) {
		return Classification{
			Kind:           KindTransientNetwork,
			Retryable:      true,
			SuggestedDelay: DefaultBaseDelay,
			Message:        msg,
		}
	}
	if containsAny(lower, serverMarkers) {
		return Classification{
			Kind:           KindServerError,
			Retryable:      true,
			SuggestedDelay: 2 * DefaultBaseDelay,
			Message:        msg,
		}
	}
	return Classification{Kind: KindUnknown, Retryable: false, Message: msg}
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// parseRetryAfter extracts an embedded "retry after N seconds" hint,
// falling back to the default base delay. A one-second buffer is added to
// the provider's figure to avoid re-hitting the window edge.
func parseRetryAfter(lower string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(lower)
	if m == nil {
		return DefaultBaseDelay
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return DefaultBaseDelay
	}
	return time.Duration((secs + 1) * float64(time.Second))
}
