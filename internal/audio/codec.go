package audio

import (
	"fmt"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize bounds one encoded Opus packet. 1275 bytes is the largest
// single Opus frame; long frame durations repacketize internally, so leave
// generous headroom.
const maxPacketSize = 4000

// Config fixes the PCM format of the outbound audio stream. All four values
// are set at process start; the frame size in bytes is always derived from
// them, never hand-coded.
type Config struct {
	SampleRate    int           // Hz
	Channels      int           // 1 = mono
	BitDepth      int           // bits per sample
	FrameDuration time.Duration // duration of one encoder frame
	Bitrate       int           // target encoder bitrate, bits/s
}

// DefaultConfig matches the toy's speaker pipeline: 24 kHz mono 16-bit PCM in
// 120 ms frames, encoded at 12 kbit/s.
func DefaultConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		BitDepth:      16,
		FrameDuration: 120 * time.Millisecond,
		Bitrate:       12000,
	}
}

// SamplesPerFrame is the per-channel sample count of one frame.
func (c Config) SamplesPerFrame() int {
	return c.SampleRate * int(c.FrameDuration.Milliseconds()) / 1000
}

// FrameSize is the size of one PCM frame in bytes:
// sampleRate × frameDuration(s) × channels × bytesPerSample.
func (c Config) FrameSize() int {
	return c.SamplesPerFrame() * c.Channels * c.BitDepth / 8
}

// Chunk slices buf into frame-size pieces in order, single pass. A partial
// trailing frame is dropped: at under one frame it is inaudible, and feeding
// the encoder a short frame would fail anyway.
func (c Config) Chunk(buf []byte) [][]byte {
	frameSize := c.FrameSize()
	frames := make([][]byte, 0, len(buf)/frameSize)
	for off := 0; off+frameSize <= len(buf); off += frameSize {
		frames = append(frames, buf[off:off+frameSize])
	}
	return frames
}

// Encoder turns fixed-size PCM frames into Opus packets. Each session owns
// its encoder; encoder state is never shared across connections.
type Encoder struct {
	cfg Config
	enc *opus.Encoder
	out []byte
}

// NewEncoder creates an Opus encoder for the given stream config.
func NewEncoder(cfg Config) (*Encoder, error) {
	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	if cfg.Bitrate > 0 {
		if err := enc.SetBitrate(cfg.Bitrate); err != nil {
			return nil, fmt.Errorf("audio: set bitrate: %w", err)
		}
	}
	return &Encoder{cfg: cfg, enc: enc, out: make([]byte, maxPacketSize)}, nil
}

// Config returns the stream config the encoder was built with.
func (e *Encoder) Config() Config {
	return e.cfg
}

// Encode compresses exactly one frame of little-endian 16-bit PCM into an
// Opus packet. A frame of any other length is rejected; the caller skips the
// frame and continues with the next one.
func (e *Encoder) Encode(frame []byte) ([]byte, error) {
	if len(frame) != e.cfg.FrameSize() {
		return nil, fmt.Errorf("audio: frame is %d bytes, want %d", len(frame), e.cfg.FrameSize())
	}
	n, err := e.enc.Encode(bytesToInt16s(frame), e.out)
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	packet := make([]byte, n)
	copy(packet, e.out[:n])
	return packet, nil
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
