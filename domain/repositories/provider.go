package repositories

import "context"

// ProviderKind selects which upstream realtime AI backend a session uses.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderGemini ProviderKind = "gemini"
)

// SessionConfig carries everything a provider needs to open a realtime session.
type SessionConfig struct {
	// Voice is the provider voice name for synthesized replies.
	Voice string
	// Instructions is the system instruction for the session.
	Instructions string
	// SampleRate of PCM audio exchanged with the provider, in Hz.
	SampleRate int
}

// EventKind tags a normalized provider event.
type EventKind int

const (
	// EventSessionOpened signals the provider session is ready for input.
	EventSessionOpened EventKind = iota
	// EventAudioChunk carries raw PCM reply audio.
	EventAudioChunk
	// EventInputTranscript carries a transcript fragment of user speech.
	EventInputTranscript
	// EventOutputTranscript carries a transcript fragment of the reply.
	EventOutputTranscript
	// EventInputCommitted signals the provider accepted the buffered user audio.
	EventInputCommitted
	// EventTurnComplete signals the provider finished the current turn.
	EventTurnComplete
	// EventProviderError carries a recoverable provider-side error.
	EventProviderError
	// EventSessionClosed signals the provider session is gone.
	EventSessionClosed
)

// Event is the closed set of normalized events every provider variant emits.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind   EventKind
	Audio  []byte
	Text   string
	Reason string
	Err    error
}

// SignalKind tags a control signal forwarded from the device.
type SignalKind int

const (
	// SignalEndOfSpeech commits buffered user audio and requests a reply.
	SignalEndOfSpeech SignalKind = iota
	// SignalInterrupt truncates the in-flight reply at AudioEndMs and clears
	// buffered input audio (barge-in).
	SignalInterrupt
)

// ControlSignal is a device-originated control instruction for the provider.
type ControlSignal struct {
	Kind       SignalKind
	AudioEndMs int
}

// Provider normalizes a vendor realtime session behind one capability surface.
// Implementations never retry their upstream connection; a transport failure
// surfaces as EventProviderError or EventSessionClosed and reconnect policy
// belongs to the caller.
type Provider interface {
	// Connect opens the upstream session. It must be called exactly once.
	Connect(ctx context.Context, cfg SessionConfig) error
	// SendAudio forwards raw PCM captured by the device.
	SendAudio(pcm []byte) error
	// SendText submits a text turn (used for the conversation opener).
	SendText(text string) error
	// SendControl forwards a device control signal.
	SendControl(sig ControlSignal) error
	// Events returns the normalized event stream. The stream terminates with
	// EventSessionClosed; implementations may additionally close the channel.
	Events() <-chan Event
	// Close tears the upstream session down. Safe to call more than once.
	Close() error
}

// Tool is a named callable the model may invoke mid-session.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the call arguments.
	Parameters map[string]any
	// Handler is invoked synchronously with the decoded call arguments. Its
	// result is serialized back to the provider as the function output.
	Handler func(args map[string]any) (any, error)
}

// ToolRegistrar is implemented by providers that support tool invocation.
// Tools must be registered before Connect.
type ToolRegistrar interface {
	RegisterTool(tool Tool)
}
