package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/temani/domain/repositories"
)

// OpenAI realtime protocol constants.
const (
	openAIRealtimeURL  = "wss://api.openai.com/v1/realtime"
	openAIModel        = "gpt-4o-mini-realtime-preview-2024-12-17"
	openAIDefaultVoice = "ash"
)

// Client event types.
const (
	typeSessionUpdate            = "session.update"
	typeInputAudioBufferAppend   = "input_audio_buffer.append"
	typeInputAudioBufferCommit   = "input_audio_buffer.commit"
	typeInputAudioBufferClear    = "input_audio_buffer.clear"
	typeConversationItemCreate   = "conversation.item.create"
	typeConversationItemTruncate = "conversation.item.truncate"
	typeResponseCreate           = "response.create"
)

// Server event types.
const (
	typeError                        = "error"
	typeSessionCreated               = "session.created"
	typeResponseOutputItemAdded      = "response.output_item.added"
	typeResponseAudioDelta           = "response.audio.delta"
	typeResponseAudioTranscriptDone  = "response.audio_transcript.done"
	typeInputTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	typeInputAudioBufferCommitted    = "input_audio_buffer.committed"
	typeResponseDone                 = "response.done"
	typeResponseFunctionCallArgsDone = "response.function_call_arguments.done"
)

// serverEvent is the subset of realtime server events the adapter routes on.
type serverEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	Arguments  string `json:"arguments"`
	Item       *struct {
		ID     string `json:"id"`
		CallID string `json:"call_id"`
	} `json:"item"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAI is the event-stream provider variant: it speaks the OpenAI Realtime
// websocket protocol and forwards audio deltas the moment they arrive.
type OpenAI struct {
	apiKey string
	url    string
	model  string
	logger *zap.Logger

	conn   *websocket.Conn
	events chan repositories.Event
	tools  map[string]repositories.Tool

	// The realtime protocol is full duplex; writes come from the caller and
	// from the tool-call path inside readLoop.
	writeMu sync.Mutex

	// currentItemID tracks the in-flight response item for truncation.
	itemMu        sync.Mutex
	currentItemID string
	currentCallID string

	closeOnce sync.Once
	closed    chan struct{}
}

// NewOpenAI creates an event-stream adapter for the given API key.
func NewOpenAI(apiKey string, logger *zap.Logger) *OpenAI {
	return &OpenAI{
		apiKey: apiKey,
		url:    openAIRealtimeURL,
		model:  openAIModel,
		logger: logger,
		events: make(chan repositories.Event, 64),
		tools:  make(map[string]repositories.Tool),
		closed: make(chan struct{}),
	}
}

// SetURL overrides the realtime endpoint. Used by tests.
func (o *OpenAI) SetURL(url string) {
	o.url = url
}

// RegisterTool registers a callable tool. Must be called before Connect so the
// tool definition is included in the session configuration.
func (o *OpenAI) RegisterTool(tool repositories.Tool) {
	o.tools[tool.Name] = tool
}

// Connect dials the realtime endpoint and configures the session.
func (o *OpenAI) Connect(ctx context.Context, cfg repositories.SessionConfig) error {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+o.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("%s?model=%s", o.url, o.model), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("provider: openai dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("provider: openai dial: %w", err)
	}
	o.conn = conn

	voice := cfg.Voice
	if voice == "" {
		voice = openAIDefaultVoice
	}

	session := map[string]interface{}{
		"voice":        voice,
		"instructions": cfg.Instructions,
		"turn_detection": map[string]interface{}{
			"type":                "server_vad",
			"threshold":           0.4,
			"prefix_padding_ms":   400,
			"silence_duration_ms": 1000,
		},
		"input_audio_transcription": map[string]interface{}{
			"model": "whisper-1",
		},
	}
	if len(o.tools) > 0 {
		defs := make([]map[string]interface{}, 0, len(o.tools))
		for _, tool := range o.tools {
			defs = append(defs, map[string]interface{}{
				"type":        "function",
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			})
		}
		session["tools"] = defs
	}

	if err := o.send(map[string]interface{}{
		"event_id": eventID(),
		"type":     typeSessionUpdate,
		"session":  session,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("provider: openai session update: %w", err)
	}

	go o.readLoop()
	return nil
}

// SendAudio appends device PCM to the provider's input buffer.
func (o *OpenAI) SendAudio(pcm []byte) error {
	return o.send(map[string]interface{}{
		"event_id": eventID(),
		"type":     typeInputAudioBufferAppend,
		"audio":    base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendText submits text as a system message and requests a response. Used for
// the conversation opener.
func (o *OpenAI) SendText(text string) error {
	if err := o.send(map[string]interface{}{
		"event_id":         eventID(),
		"type":             typeConversationItemCreate,
		"previous_item_id": "root",
		"item": map[string]interface{}{
			"type": "message",
			"role": "system",
			"content": []map[string]interface{}{
				{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		return err
	}
	return o.send(map[string]interface{}{
		"event_id": eventID(),
		"type":     typeResponseCreate,
	})
}

// SendControl forwards a device control signal.
func (o *OpenAI) SendControl(sig repositories.ControlSignal) error {
	switch sig.Kind {
	case repositories.SignalEndOfSpeech:
		// Commit buffered audio, ask for a reply, then clear for the next turn.
		if err := o.send(map[string]interface{}{
			"event_id": eventID(),
			"type":     typeInputAudioBufferCommit,
		}); err != nil {
			return err
		}
		if err := o.send(map[string]interface{}{
			"event_id": eventID(),
			"type":     typeResponseCreate,
		}); err != nil {
			return err
		}
		return o.send(map[string]interface{}{
			"event_id": eventID(),
			"type":     typeInputAudioBufferClear,
		})

	case repositories.SignalInterrupt:
		o.itemMu.Lock()
		itemID := o.currentItemID
		o.itemMu.Unlock()

		if err := o.send(map[string]interface{}{
			"event_id":      eventID(),
			"type":          typeConversationItemTruncate,
			"item_id":       itemID,
			"content_index": 0,
			"audio_end_ms":  sig.AudioEndMs,
		}); err != nil {
			return err
		}
		return o.send(map[string]interface{}{
			"event_id": eventID(),
			"type":     typeInputAudioBufferClear,
		})

	default:
		return fmt.Errorf("provider: unknown control signal %d", sig.Kind)
	}
}

// Events returns the normalized event stream.
func (o *OpenAI) Events() <-chan repositories.Event {
	return o.events
}

// Close tears the realtime connection down.
func (o *OpenAI) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.closed)
		if o.conn != nil {
			err = o.conn.Close()
		}
	})
	return err
}

func (o *OpenAI) send(event map[string]interface{}) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.conn == nil {
		return fmt.Errorf("provider: openai not connected")
	}
	return o.conn.WriteJSON(event)
}

func (o *OpenAI) readLoop() {
	defer close(o.events)

	for {
		_, message, err := o.conn.ReadMessage()
		if err != nil {
			select {
			case <-o.closed:
				o.emit(repositories.Event{Kind: repositories.EventSessionClosed, Reason: "closed"})
			default:
				o.emit(repositories.Event{Kind: repositories.EventSessionClosed, Reason: err.Error(), Err: err})
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			o.logger.Warn("unparsable realtime event", zap.Error(err))
			continue
		}
		o.route(&event)
	}
}

func (o *OpenAI) route(event *serverEvent) {
	switch event.Type {
	case typeSessionCreated:
		o.emit(repositories.Event{Kind: repositories.EventSessionOpened})

	case typeResponseOutputItemAdded:
		if event.Item != nil && event.Item.ID != "" {
			o.itemMu.Lock()
			o.currentItemID = event.Item.ID
			o.currentCallID = event.Item.CallID
			o.itemMu.Unlock()
		}

	case typeResponseAudioDelta:
		if event.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			o.logger.Warn("bad audio delta encoding", zap.Error(err))
			return
		}
		o.emit(repositories.Event{Kind: repositories.EventAudioChunk, Audio: pcm})

	case typeResponseAudioTranscriptDone:
		o.emit(repositories.Event{Kind: repositories.EventOutputTranscript, Text: event.Transcript})

	case typeInputTranscriptionCompleted:
		o.emit(repositories.Event{Kind: repositories.EventInputTranscript, Text: event.Transcript})

	case typeInputAudioBufferCommitted:
		o.emit(repositories.Event{Kind: repositories.EventInputCommitted})

	case typeResponseDone:
		o.emit(repositories.Event{Kind: repositories.EventTurnComplete})

	case typeResponseFunctionCallArgsDone:
		o.handleToolCall(event)

	case typeError:
		msg := "provider error"
		if event.Error != nil {
			msg = event.Error.Message
		}
		o.emit(repositories.Event{Kind: repositories.EventProviderError, Text: msg})
	}
}

// handleToolCall invokes the registered handler synchronously and returns its
// result to the provider as a function output.
func (o *OpenAI) handleToolCall(event *serverEvent) {
	tool, ok := o.tools[event.Name]
	if !ok {
		o.logger.Warn("tool call for unregistered tool", zap.String("name", event.Name))
		return
	}

	args := map[string]any{}
	if event.Arguments != "" {
		if err := json.Unmarshal([]byte(event.Arguments), &args); err != nil {
			o.logger.Warn("bad tool call arguments", zap.String("name", event.Name), zap.Error(err))
		}
	}

	result, err := tool.Handler(args)
	if err != nil {
		o.logger.Error("tool handler failed", zap.String("name", event.Name), zap.Error(err))
		result = map[string]any{"success": false, "message": err.Error()}
	}

	callID := event.CallID
	if callID == "" {
		o.itemMu.Lock()
		callID = o.currentCallID
		o.itemMu.Unlock()
	}

	output, err := json.Marshal(result)
	if err != nil {
		o.logger.Error("tool result not serializable", zap.String("name", event.Name), zap.Error(err))
		return
	}

	if err := o.send(map[string]interface{}{
		"event_id": eventID(),
		"type":     typeConversationItemCreate,
		"item": map[string]interface{}{
			"id":      itemID(),
			"type":    "function_call_output",
			"call_id": callID,
			"output":  string(output),
		},
	}); err != nil {
		o.logger.Error("send tool output", zap.Error(err))
	}
}

func (o *OpenAI) emit(event repositories.Event) {
	select {
	case o.events <- event:
	case <-o.closed:
	}
}

func eventID() string {
	return "evt_" + uuid.New().String()[:12]
}

func itemID() string {
	return "item_" + uuid.New().String()[:12]
}

// Interface checks.
var (
	_ repositories.Provider      = (*OpenAI)(nil)
	_ repositories.ToolRegistrar = (*OpenAI)(nil)
)
