package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SchemaVersion is baked into every cache key so a format change never
// serves stale entries written by an older build.
const SchemaVersion = 1

// BuildKey derives the content-addressed cache key for one generation
// request. The descriptor is canonical: whitespace-collapsed text, the
// resolved provider voice ID (style aliases map to one ID upstream),
// lowercased language and speed rounded to two decimals. Identical
// requests therefore share one key regardless of spelling.
func BuildKey(text, voiceID, language string, speed float64) string {
	descriptor := strings.Join([]string{
		strings.Join(strings.Fields(text), " "),
		voiceID,
		strings.ToLower(strings.TrimSpace(language)),
		fmt.Sprintf("%.2f", speed),
		fmt.Sprintf("v%d", SchemaVersion),
	}, "\x1f")
	sum := sha256.Sum256([]byte(descriptor))
	return hex.EncodeToString(sum[:])
}
