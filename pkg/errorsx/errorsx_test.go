package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonQuotaExceeded)
	if Reason(err) != ReasonQuotaExceeded {
		t.Fatalf("expected reason %s, got %s", ReasonQuotaExceeded, Reason(err))
	}
	if !HasReason(err, ReasonQuotaExceeded) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonTransientNetwork)
	second := Wrap(first, ReasonInvalidResponse)
	if Reason(second) != ReasonTransientNetwork {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ReasonTransientNetwork) {
		t.Fatalf("transient_network must be retryable")
	}
	for _, r := range []ReasonCode{ReasonQuotaExceeded, ReasonUnauthorized, ReasonNotDeployed, ReasonInvalidResponse, ReasonUnknown} {
		if Retryable(r) {
			t.Fatalf("%s must be terminal", r)
		}
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
