package synth

import (
	"bytes"
	"errors"

	"github.com/harunnryd/kisah/pkg/errorsx"
)

var errInvalidAudio = errors.New("synth: response is not recognizable audio")

// ValidateAudio rejects payloads that are empty or not a recognized audio
// container (WAV, MP3 or OGG). A success status with a garbage body is a
// provider bug, not a transient failure, so the error carries the
// invalid_response reason and is never retried.
func ValidateAudio(data []byte) error {
	if looksLikeAudio(data) {
		return nil
	}
	return errorsx.Wrap(errInvalidAudio, errorsx.ReasonInvalidResponse)
}

func looksLikeAudio(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	// WAV: RIFF....WAVE
	if bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WAVE")) {
		return true
	}
	// MP3: ID3 tag or a bare frame sync.
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return true
	}
	// OGG container (opus/vorbis).
	return bytes.HasPrefix(data, []byte("OggS"))
}
