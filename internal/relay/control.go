package relay

import (
	"encoding/json"
	"fmt"
)

// Device to server instruction messages arrive as text frames.
const (
	instructionEndOfSpeech = "end_of_speech"
	instructionInterrupt   = "INTERRUPT"
)

// Server to device message vocabulary.
const (
	serverResponseCreated  = "RESPONSE.CREATED"
	serverResponseComplete = "RESPONSE.COMPLETE"
	serverResponseError    = "RESPONSE.ERROR"
	serverAudioCommitted   = "AUDIO.COMMITTED"
	serverSessionEnd       = "SESSION.END"
)

// instructionMessage is the device's text frame payload.
type instructionMessage struct {
	Type       string `json:"type"`
	Msg        string `json:"msg"`
	AudioEndMs int    `json:"audio_end_ms,omitempty"`
}

func parseInstruction(data []byte) (*instructionMessage, error) {
	var msg instructionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("relay: bad instruction frame: %w", err)
	}
	if msg.Type != "instruction" {
		return nil, fmt.Errorf("relay: unexpected message type %q", msg.Type)
	}
	switch msg.Msg {
	case instructionEndOfSpeech, instructionInterrupt:
		return &msg, nil
	default:
		return nil, fmt.Errorf("relay: unknown instruction %q", msg.Msg)
	}
}

// serverMessage is the relay's text frame payload toward the device.
type serverMessage struct {
	Type          string `json:"type"`
	Msg           string `json:"msg,omitempty"`
	VolumeControl *int   `json:"volume_control,omitempty"`
	IsOTA         *bool  `json:"is_ota,omitempty"`
	IsReset       *bool  `json:"is_reset,omitempty"`
}

func authMessage(volume int, isOTA, isReset bool) []byte {
	return mustMarshal(serverMessage{
		Type:          "auth",
		VolumeControl: &volume,
		IsOTA:         &isOTA,
		IsReset:       &isReset,
	})
}

func statusMessage(msg string) []byte {
	return mustMarshal(serverMessage{Type: "server", Msg: msg})
}

func responseCompleteMessage(volume int) []byte {
	return mustMarshal(serverMessage{
		Type:          "server",
		Msg:           serverResponseComplete,
		VolumeControl: &volume,
	})
}

func mustMarshal(msg serverMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		// serverMessage has no unmarshalable fields.
		panic(err)
	}
	return data
}
