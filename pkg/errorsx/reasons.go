package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Remote generation failures.
	ReasonTransientNetwork ReasonCode = "transient_network"
	ReasonQuotaExceeded    ReasonCode = "quota_exceeded"
	ReasonUnauthorized     ReasonCode = "unauthorized"
	ReasonNotDeployed      ReasonCode = "not_deployed"
	ReasonInvalidInput     ReasonCode = "invalid_input"
	ReasonInvalidResponse  ReasonCode = "invalid_response"

	// Cache failures. Callers treat these as misses, never as fatal.
	ReasonCacheRead  ReasonCode = "cache_read"
	ReasonCacheWrite ReasonCode = "cache_write"

	// Playback failures.
	ReasonPlaybackDecode ReasonCode = "playback_decode"
	ReasonPlaybackSeek   ReasonCode = "playback_seek"

	ReasonTransportRead ReasonCode = "transport_read"

	ReasonCancelled ReasonCode = "cancelled"
)

// Retryable reports whether a reason identifies a transient condition
// eligible for retry with backoff. Everything else is terminal for the
// chunk that produced it.
func Retryable(reason ReasonCode) bool {
	return reason == ReasonTransientNetwork
}
