package synth

import (
	"net/http"

	"github.com/harunnryd/kisah/pkg/errorsx"
)

// ReasonForStatus maps a vendor HTTP status to a failure reason. Server
// errors and rate limits differ: 5xx is transient and retried, 429 counts
// against the circuit breaker but is not retried per request.
func ReasonForStatus(code int) errorsx.ReasonCode {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errorsx.ReasonUnauthorized
	case code == http.StatusTooManyRequests:
		return errorsx.ReasonQuotaExceeded
	case code == http.StatusNotFound:
		return errorsx.ReasonNotDeployed
	case code >= 500:
		return errorsx.ReasonTransientNetwork
	case code >= 400:
		return errorsx.ReasonInvalidInput
	default:
		return errorsx.ReasonUnknown
	}
}
