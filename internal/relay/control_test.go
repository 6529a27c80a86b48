package relay

import (
	"encoding/json"
	"testing"
)

func TestParseInstruction(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantMsg string
		wantMs  int
		wantErr bool
	}{
		{
			name:    "end of speech",
			payload: `{"type":"instruction","msg":"end_of_speech"}`,
			wantMsg: instructionEndOfSpeech,
		},
		{
			name:    "interrupt with playback offset",
			payload: `{"type":"instruction","msg":"INTERRUPT","audio_end_ms":2150}`,
			wantMsg: instructionInterrupt,
			wantMs:  2150,
		},
		{
			name:    "wrong type",
			payload: `{"type":"telemetry","msg":"end_of_speech"}`,
			wantErr: true,
		},
		{
			name:    "unknown instruction",
			payload: `{"type":"instruction","msg":"REBOOT"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `end_of_speech`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseInstruction([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInstruction() error: %v", err)
			}
			if msg.Msg != tt.wantMsg {
				t.Errorf("Msg = %q, want %q", msg.Msg, tt.wantMsg)
			}
			if msg.AudioEndMs != tt.wantMs {
				t.Errorf("AudioEndMs = %d, want %d", msg.AudioEndMs, tt.wantMs)
			}
		})
	}
}

func TestAuthMessage(t *testing.T) {
	var msg serverMessage
	if err := json.Unmarshal(authMessage(70, true, false), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "auth" {
		t.Errorf("Type = %q, want auth", msg.Type)
	}
	if msg.VolumeControl == nil || *msg.VolumeControl != 70 {
		t.Errorf("VolumeControl = %v, want 70", msg.VolumeControl)
	}
	if msg.IsOTA == nil || !*msg.IsOTA {
		t.Errorf("IsOTA = %v, want true", msg.IsOTA)
	}
	if msg.IsReset == nil || *msg.IsReset {
		t.Errorf("IsReset = %v, want false", msg.IsReset)
	}
}

func TestStatusMessage(t *testing.T) {
	raw := statusMessage(serverResponseCreated)

	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["type"] != "server" || msg["msg"] != serverResponseCreated {
		t.Errorf("message = %s", raw)
	}
	if _, ok := msg["volume_control"]; ok {
		t.Error("status message should omit volume_control")
	}
}

func TestResponseCompleteMessage(t *testing.T) {
	var msg serverMessage
	if err := json.Unmarshal(responseCompleteMessage(85), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Msg != serverResponseComplete {
		t.Errorf("Msg = %q, want %q", msg.Msg, serverResponseComplete)
	}
	if msg.VolumeControl == nil || *msg.VolumeControl != 85 {
		t.Errorf("VolumeControl = %v, want 85", msg.VolumeControl)
	}
}
