package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestConfig_FrameSize(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{
			name: "24kHz mono 16-bit 120ms",
			cfg:  Config{SampleRate: 24000, Channels: 1, BitDepth: 16, FrameDuration: 120 * time.Millisecond},
			want: 5760,
		},
		{
			name: "24kHz mono 16-bit 20ms",
			cfg:  Config{SampleRate: 24000, Channels: 1, BitDepth: 16, FrameDuration: 20 * time.Millisecond},
			want: 960,
		},
		{
			name: "16kHz mono 16-bit 120ms",
			cfg:  Config{SampleRate: 16000, Channels: 1, BitDepth: 16, FrameDuration: 120 * time.Millisecond},
			want: 3840,
		},
		{
			name: "48kHz stereo 16-bit 20ms",
			cfg:  Config{SampleRate: 48000, Channels: 2, BitDepth: 16, FrameDuration: 20 * time.Millisecond},
			want: 3840,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.FrameSize(); got != tt.want {
				t.Errorf("FrameSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfig_FrameSizeMatchesFormula(t *testing.T) {
	cfg := DefaultConfig()
	want := cfg.SampleRate * int(cfg.FrameDuration.Milliseconds()) / 1000 * cfg.Channels * cfg.BitDepth / 8
	if got := cfg.FrameSize(); got != want {
		t.Errorf("FrameSize() = %d, formula gives %d", got, want)
	}
}

func TestConfig_Chunk(t *testing.T) {
	cfg := DefaultConfig()
	frameSize := cfg.FrameSize()

	tests := []struct {
		name       string
		bufLen     int
		wantFrames int
	}{
		{"empty buffer", 0, 0},
		{"exactly one frame", frameSize, 1},
		{"exactly five frames", 5 * frameSize, 5},
		{"one byte short of a frame", frameSize - 1, 0},
		{"one frame plus partial tail", frameSize + frameSize/2, 1},
		{"three frames plus one byte", 3*frameSize + 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.bufLen)
			for i := range buf {
				buf[i] = byte(i % 251)
			}

			frames := cfg.Chunk(buf)
			if len(frames) != tt.wantFrames {
				t.Fatalf("Chunk() returned %d frames, want %d", len(frames), tt.wantFrames)
			}
			for i, frame := range frames {
				if len(frame) != frameSize {
					t.Errorf("frame %d is %d bytes, want %d", i, len(frame), frameSize)
				}
			}

			// Concatenating the frames must reconstruct the aligned prefix.
			joined := bytes.Join(frames, nil)
			if !bytes.Equal(joined, buf[:tt.wantFrames*frameSize]) {
				t.Error("concatenated frames do not reconstruct the buffer prefix")
			}
		})
	}
}

func TestConfig_ChunkIdenticalForBurstsAndDeltas(t *testing.T) {
	// A whole-turn burst chunked at once must equal the frames produced by
	// chunking frame-aligned deltas one at a time.
	cfg := DefaultConfig()
	frameSize := cfg.FrameSize()

	burst := make([]byte, 4*frameSize)
	for i := range burst {
		burst[i] = byte(i)
	}

	whole := cfg.Chunk(burst)

	var incremental [][]byte
	for off := 0; off < len(burst); off += 2 * frameSize {
		incremental = append(incremental, cfg.Chunk(burst[off:off+2*frameSize])...)
	}

	if len(whole) != len(incremental) {
		t.Fatalf("burst produced %d frames, deltas produced %d", len(whole), len(incremental))
	}
	for i := range whole {
		if !bytes.Equal(whole[i], incremental[i]) {
			t.Errorf("frame %d differs between burst and delta chunking", i)
		}
	}
}

func TestEncoder_Encode(t *testing.T) {
	enc, err := NewEncoder(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEncoder() error: %v", err)
	}

	frame := make([]byte, enc.Config().FrameSize())
	packet, err := enc.Encode(frame)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(packet) == 0 {
		t.Error("Encode() returned an empty packet")
	}
	if len(packet) > maxPacketSize {
		t.Errorf("packet is %d bytes, exceeds %d", len(packet), maxPacketSize)
	}
}

func TestEncoder_EncodeRejectsWrongFrameSize(t *testing.T) {
	enc, err := NewEncoder(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEncoder() error: %v", err)
	}

	for _, n := range []int{0, 1, enc.Config().FrameSize() - 1, enc.Config().FrameSize() + 2} {
		if _, err := enc.Encode(make([]byte, n)); err == nil {
			t.Errorf("Encode() accepted a %d-byte frame", n)
		}
	}
}

func TestBytesToInt16s(t *testing.T) {
	b := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80}
	got := bytesToInt16s(b)
	want := []int16{1, -1, -32768}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
