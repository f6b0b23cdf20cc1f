package cache

import "testing"

func TestBuildKeyIsDeterministic(t *testing.T) {
	a := BuildKey("Once upon a time.", "voice-1", "en", 1.0)
	b := BuildKey("Once upon a time.", "voice-1", "en", 1.0)
	if a != b {
		t.Fatalf("identical descriptors produced different keys")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 key, got %q", a)
	}
}

func TestBuildKeyNormalizesDescriptor(t *testing.T) {
	base := BuildKey("Once upon a time.", "voice-1", "en", 1.0)
	if got := BuildKey("  Once   upon a\ntime. ", "voice-1", "en", 1.0); got != base {
		t.Fatalf("whitespace variants must share a key")
	}
	if got := BuildKey("Once upon a time.", "voice-1", "EN", 1.0); got != base {
		t.Fatalf("language case must not change the key")
	}
	if got := BuildKey("Once upon a time.", "voice-1", "en", 1.001); got != base {
		t.Fatalf("speed should round to two decimals")
	}
}

func TestBuildKeySeparatesFields(t *testing.T) {
	base := BuildKey("Once upon a time.", "voice-1", "en", 1.0)
	if got := BuildKey("Once upon a time.", "voice-2", "en", 1.0); got == base {
		t.Fatalf("different voices must not collide")
	}
	if got := BuildKey("Once upon a time.", "voice-1", "id", 1.0); got == base {
		t.Fatalf("different languages must not collide")
	}
	if got := BuildKey("Once upon a time.", "voice-1", "en", 1.25); got == base {
		t.Fatalf("different speeds must not collide")
	}
}
