package transport

import (
	"encoding/json"
	"fmt"
)

var knownTypes = map[MessageType]bool{
	TypeText:       true,
	TypeMetadata:   true,
	TypeAudioChunk: true,
	TypeComplete:   true,
	TypeError:      true,
}

func decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	if !knownTypes[msg.Type] {
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.Type == TypeAudioChunk && len(msg.Audio) == 0 {
		return Message{}, fmt.Errorf("audio_chunk frame without audio payload")
	}
	return msg, nil
}
