package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/temani/domain/repositories"
)

const (
	geminiModel        = "gemini-2.5-flash-preview-native-audio-dialog"
	geminiDefaultVoice = "Sadachbia"

	// geminiQueueDepth bounds the message queue between the receive loop and
	// the turn consumer. Receive() applies backpressure if the consumer falls
	// behind a full queue.
	geminiQueueDepth = 64
)

// liveMessage is the adapter-internal projection of one provider message:
// just the fields turn accumulation cares about.
type liveMessage struct {
	audio              []byte
	inputTranscript    string
	outputTranscript   string
	generationComplete bool
	interrupted        bool
}

// Gemini is the turn-batch provider variant: the Live API delivers a whole
// turn as a run of messages ending in a generation-complete marker. Messages
// are buffered on a channel (a genuinely blocking queue, no polling) and a
// consumer goroutine accumulates them into one audio chunk per turn.
type Gemini struct {
	apiKey string
	model  string
	logger *zap.Logger

	client  *genai.Client
	session *genai.Session

	queue  chan liveMessage
	events chan repositories.Event

	sampleRate int

	closeOnce sync.Once
	closed    chan struct{}
}

// NewGemini creates a turn-batch adapter for the given API key.
func NewGemini(apiKey string, logger *zap.Logger) *Gemini {
	return &Gemini{
		apiKey: apiKey,
		model:  geminiModel,
		logger: logger,
		queue:  make(chan liveMessage, geminiQueueDepth),
		events: make(chan repositories.Event, 64),
		closed: make(chan struct{}),
	}
}

// Connect opens a Live session. Voice-activity detection stays on the
// provider side; turn boundaries are transparent to the caller.
func (g *Gemini) Connect(ctx context.Context, cfg repositories.SessionConfig) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("provider: gemini client: %w", err)
	}
	g.client = client

	voice := cfg.Voice
	if voice == "" {
		voice = geminiDefaultVoice
	}

	session, err := client.Live.Connect(ctx, g.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instructions}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				Disabled:               false,
				EndOfSpeechSensitivity: genai.EndSensitivityLow,
				SilenceDurationMs:      genai.Ptr[int32](100),
			},
		},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return fmt.Errorf("provider: gemini live connect: %w", err)
	}
	g.session = session
	g.sampleRate = cfg.SampleRate

	g.emit(repositories.Event{Kind: repositories.EventSessionOpened})

	go g.receiveLoop()
	go g.consume()
	return nil
}

// SendAudio forwards device PCM to the live session.
func (g *Gemini) SendAudio(pcm []byte) error {
	if g.session == nil {
		return fmt.Errorf("provider: gemini not connected")
	}
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", g.sampleRate),
		},
	})
}

// SendText submits a user text turn. Used for the conversation opener.
func (g *Gemini) SendText(text string) error {
	if g.session == nil {
		return fmt.Errorf("provider: gemini not connected")
	}
	return g.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: text}}},
		},
	})
}

// SendControl handles device control signals. End-of-speech only acknowledges
// the input: the provider's own VAD decides turn boundaries. Mid-turn
// truncation is not part of the turn-batch protocol, so interrupts are a
// logged no-op.
func (g *Gemini) SendControl(sig repositories.ControlSignal) error {
	switch sig.Kind {
	case repositories.SignalEndOfSpeech:
		g.emit(repositories.Event{Kind: repositories.EventInputCommitted})
		return nil
	case repositories.SignalInterrupt:
		g.logger.Debug("interrupt ignored: live session has no mid-turn truncation")
		return nil
	default:
		return fmt.Errorf("provider: unknown control signal %d", sig.Kind)
	}
}

// Events returns the normalized event stream.
func (g *Gemini) Events() <-chan repositories.Event {
	return g.events
}

// Close tears the live session down.
func (g *Gemini) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.closed)
		if g.session != nil {
			err = g.session.Close()
		}
	})
	return err
}

// receiveLoop pulls provider messages and feeds the turn queue. Closing the
// queue is the consumer's signal that the session ended.
func (g *Gemini) receiveLoop() {
	defer close(g.queue)

	for {
		message, err := g.session.Receive()
		if err != nil {
			select {
			case <-g.closed:
			default:
				g.emit(repositories.Event{Kind: repositories.EventProviderError, Text: err.Error(), Err: err})
			}
			return
		}
		if msg, ok := convertLiveMessage(message); ok {
			select {
			case g.queue <- msg:
			case <-g.closed:
				return
			}
		}
	}
}

// convertLiveMessage projects a provider message onto the fields turn
// accumulation needs. Messages with nothing relevant are skipped.
func convertLiveMessage(message *genai.LiveServerMessage) (liveMessage, bool) {
	sc := message.ServerContent
	if sc == nil {
		return liveMessage{}, false
	}

	var msg liveMessage
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				msg.audio = append(msg.audio, part.InlineData.Data...)
			}
		}
	}
	if sc.InputTranscription != nil {
		msg.inputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.outputTranscript = sc.OutputTranscription.Text
	}
	msg.generationComplete = sc.GenerationComplete
	msg.interrupted = sc.Interrupted

	return msg, true
}

// consume drains the queue, blocking until messages arrive, and folds each
// run of messages into one turn: accumulated audio is emitted as a single
// chunk, then the transcripts, then the completion marker.
func (g *Gemini) consume() {
	// Events has several producers (this loop, the receive loop, SendControl),
	// so the stream is terminated with EventSessionClosed instead of a close.
	var (
		audio      []byte
		inputText  string
		outputText string
	)

	for msg := range g.queue {
		audio = append(audio, msg.audio...)
		inputText += msg.inputTranscript
		outputText += msg.outputTranscript

		// A barge-in cancels generation without a completion marker, so an
		// interrupted run closes the turn too.
		if !msg.generationComplete && !msg.interrupted {
			continue
		}

		if len(audio) > 0 {
			g.emit(repositories.Event{Kind: repositories.EventAudioChunk, Audio: audio})
		}
		if inputText != "" {
			g.emit(repositories.Event{Kind: repositories.EventInputTranscript, Text: inputText})
		}
		if outputText != "" {
			g.emit(repositories.Event{Kind: repositories.EventOutputTranscript, Text: outputText})
		}
		g.emit(repositories.Event{Kind: repositories.EventTurnComplete})

		audio = nil
		inputText = ""
		outputText = ""
	}

	g.emit(repositories.Event{Kind: repositories.EventSessionClosed, Reason: "live session ended"})
}

func (g *Gemini) emit(event repositories.Event) {
	select {
	case g.events <- event:
	case <-g.closed:
	}
}

var _ repositories.Provider = (*Gemini)(nil)
