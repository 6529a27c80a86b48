package relay

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/temani/domain/entities"
	"github.com/satriahrh/temani/domain/repositories"
	"github.com/satriahrh/temani/internal/audio"
	"github.com/satriahrh/temani/internal/prompt"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	storeTimeout = 5 * time.Second
)

// writeData is one outbound websocket frame. Binary frames carry the turn that
// produced them so the write pump can drop audio from an interrupted turn.
type writeData struct {
	messageType int
	payload     []byte
	turn        int64
}

// Session relays one device connection to one provider session. The read pump
// forwards device audio and instructions upstream; the event loop translates
// normalized provider events into device frames and encoded audio.
type Session struct {
	hub      *Hub
	conn     *websocket.Conn
	user     *entities.User
	device   *entities.Device
	provider repositories.Provider
	store    repositories.DataStore
	encoder  *audio.Encoder
	logger   *zap.Logger

	// Buffered channel of outbound frames.
	send chan writeData

	// currentTurn is bumped when a response turn opens. interruptedTurn marks
	// the highest turn whose remaining audio must be discarded. turnInFlight
	// gates interrupts from the read pump.
	currentTurn     atomic.Int64
	interruptedTurn atomic.Int64
	turnInFlight    atomic.Bool

	// Turn state, touched only by the event loop.
	turnOpen         bool
	pcmBuf           []byte
	inputTranscript  string
	outputTranscript string

	// Optional raw PCM capture of device audio, for debugging. Written from
	// the read pump, closed from any teardown path.
	captureMu sync.Mutex
	capture   io.WriteCloser

	startedAt time.Time
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wires a relay session over an upgraded connection. Start must be
// called to connect the provider and begin pumping.
func NewSession(
	hub *Hub,
	conn *websocket.Conn,
	user *entities.User,
	device *entities.Device,
	provider repositories.Provider,
	store repositories.DataStore,
	cfg audio.Config,
	logger *zap.Logger,
) (*Session, error) {
	encoder, err := audio.NewEncoder(cfg)
	if err != nil {
		return nil, err
	}

	return &Session{
		hub:      hub,
		conn:     conn,
		user:     user,
		device:   device,
		provider: provider,
		store:    store,
		encoder:  encoder,
		logger:   logger,
		send:     make(chan writeData, 256),
		done:     make(chan struct{}),
	}, nil
}

// SetCapture attaches a sink that receives every inbound PCM frame. The sink
// is closed when the session ends.
func (s *Session) SetCapture(w io.WriteCloser) {
	s.captureMu.Lock()
	s.capture = w
	s.captureMu.Unlock()
}

func (s *Session) captureWrite(pcm []byte) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.capture == nil {
		return
	}
	if _, err := s.capture.Write(pcm); err != nil {
		s.logger.Warn("capture write", zap.Error(err))
		s.capture.Close()
		s.capture = nil
	}
}

func (s *Session) closeCapture() {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.capture == nil {
		return
	}
	if err := s.capture.Close(); err != nil {
		s.logger.Warn("capture close", zap.Error(err))
	}
	s.capture = nil
}

// Start connects the provider and runs the session until either side closes.
func (s *Session) Start(ctx context.Context) error {
	if registrar, ok := s.provider.(repositories.ToolRegistrar); ok {
		registrar.RegisterTool(repositories.Tool{
			Name:        "end_session",
			Description: "End the conversation when the user says goodbye or asks to stop talking.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: s.handleEndSession,
		})
	}

	history, err := s.store.GetChatHistory(ctx, s.user.ID, s.user.PersonaKey())
	if err != nil {
		s.logger.Warn("chat history unavailable, starting fresh",
			zap.String("userID", s.user.ID),
			zap.Error(err))
		history = nil
	}

	cfg := repositories.SessionConfig{
		Voice:        s.user.PersonaVoice(""),
		Instructions: prompt.SystemInstruction(s.user, history, time.Now()),
		SampleRate:   s.encoder.Config().SampleRate,
	}
	if err := s.provider.Connect(ctx, cfg); err != nil {
		s.closeCapture()
		s.conn.Close()
		return err
	}

	s.startedAt = time.Now()
	s.hub.register <- s

	// The device expects session settings as the first frame.
	s.send <- writeData{
		messageType: websocket.TextMessage,
		payload:     authMessage(s.device.VolumeOrDefault(), s.device.IsOTA, s.device.IsReset),
	}

	go s.writePump()
	go s.readPump()
	go s.eventLoop()

	return nil
}

// Close tears the session down. Safe to call from any goroutine, repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		if err := s.provider.Close(); err != nil {
			s.logger.Warn("provider close", zap.Error(err))
		}
		s.conn.Close()
		s.closeCapture()

		if !s.startedAt.IsZero() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			seconds := int64(time.Since(s.startedAt).Seconds())
			if err := s.store.UpdateSessionDuration(ctx, s.user.ID, seconds); err != nil {
				s.logger.Error("persist session duration",
					zap.String("userID", s.user.ID),
					zap.Error(err))
			}
		}

		s.hub.unregister <- s

		s.logger.Info("session closed",
			zap.String("userID", s.user.ID),
			zap.Duration("duration", time.Since(s.startedAt)))
	})
}

// readPump pumps frames from the device to the provider.
func (s *Session) readPump() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("device connection error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleDeviceAudio(message)
		case websocket.TextMessage:
			s.handleInstruction(message)
		default:
			s.logger.Warn("unknown frame type from device", zap.Int("type", messageType))
		}
	}
}

func (s *Session) handleDeviceAudio(pcm []byte) {
	s.captureWrite(pcm)
	if err := s.provider.SendAudio(pcm); err != nil {
		s.logger.Error("forward device audio", zap.Error(err))
	}
}

func (s *Session) handleInstruction(message []byte) {
	msg, err := parseInstruction(message)
	if err != nil {
		s.logger.Warn("bad device instruction", zap.Error(err))
		return
	}

	switch msg.Msg {
	case instructionEndOfSpeech:
		if err := s.provider.SendControl(repositories.ControlSignal{
			Kind: repositories.SignalEndOfSpeech,
		}); err != nil {
			s.logger.Error("forward end of speech", zap.Error(err))
		}

	case instructionInterrupt:
		if !s.turnInFlight.Load() {
			s.logger.Debug("interrupt outside a response turn, ignored")
			return
		}
		// Discard any audio still queued for the current turn before telling
		// the provider to stop generating.
		s.interruptedTurn.Store(s.currentTurn.Load())
		if err := s.provider.SendControl(repositories.ControlSignal{
			Kind:       repositories.SignalInterrupt,
			AudioEndMs: msg.AudioEndMs,
		}); err != nil {
			s.logger.Error("forward interrupt", zap.Error(err))
		}
	}
}

// writePump pumps frames from the session to the device connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if frame.messageType == websocket.BinaryMessage &&
				frame.turn != 0 && frame.turn <= s.interruptedTurn.Load() {
				continue
			}

			if err := s.conn.WriteMessage(frame.messageType, frame.payload); err != nil {
				s.logger.Error("write to device", zap.Error(err))
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventLoop translates normalized provider events into device frames.
func (s *Session) eventLoop() {
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.provider.Events():
			if !ok {
				return
			}
			if s.handleEvent(ev) {
				return
			}
		}
	}
}

// handleEvent processes one provider event. It returns true when the session
// should terminate.
func (s *Session) handleEvent(ev repositories.Event) bool {
	switch ev.Kind {
	case repositories.EventSessionOpened:
		// Kick the conversation off so the toy speaks first.
		if err := s.provider.SendText(prompt.FirstMessage(s.user)); err != nil {
			s.logger.Error("send conversation opener", zap.Error(err))
		}

	case repositories.EventAudioChunk:
		s.openTurn()
		s.relayAudio(ev.Audio)

	case repositories.EventOutputTranscript:
		s.openTurn()
		s.outputTranscript = ev.Text

	case repositories.EventInputTranscript:
		s.inputTranscript = ev.Text

	case repositories.EventInputCommitted:
		s.enqueueText(statusMessage(serverAudioCommitted))

	case repositories.EventTurnComplete:
		s.completeTurn()

	case repositories.EventProviderError:
		s.logger.Error("provider error",
			zap.String("userID", s.user.ID),
			zap.String("message", ev.Text),
			zap.Error(ev.Err))
		s.enqueueText(statusMessage(serverResponseError))

	case repositories.EventSessionClosed:
		if ev.Err != nil {
			s.logger.Warn("provider stream ended",
				zap.String("reason", ev.Reason),
				zap.Error(ev.Err))
		}
		return true
	}
	return false
}

// openTurn marks the start of a response turn, once per turn.
func (s *Session) openTurn() {
	if s.turnOpen {
		return
	}
	s.turnOpen = true
	s.currentTurn.Add(1)
	s.turnInFlight.Store(true)
	s.enqueueText(statusMessage(serverResponseCreated))
}

// relayAudio frames accumulated provider PCM and ships each full frame as one
// encoded binary message. The trailing partial frame stays buffered until more
// audio arrives or the turn completes.
func (s *Session) relayAudio(pcm []byte) {
	s.pcmBuf = append(s.pcmBuf, pcm...)

	cfg := s.encoder.Config()
	turn := s.currentTurn.Load()

	frames := cfg.Chunk(s.pcmBuf)
	for _, frame := range frames {
		packet, err := s.encoder.Encode(frame)
		if err != nil {
			s.logger.Error("encode audio frame", zap.Error(err))
			continue
		}
		s.enqueue(writeData{
			messageType: websocket.BinaryMessage,
			payload:     packet,
			turn:        turn,
		})
	}
	s.pcmBuf = s.pcmBuf[len(frames)*cfg.FrameSize():]
}

// completeTurn closes the current turn. A turn that produced no audio still
// yields the created/complete pair so the device state machine stays in step.
func (s *Session) completeTurn() {
	s.openTurn()
	s.turnOpen = false
	s.turnInFlight.Store(false)

	// Partial trailing frames are dropped, not padded.
	s.pcmBuf = nil

	s.enqueueText(responseCompleteMessage(s.device.VolumeOrDefault()))
	s.persistTranscripts()
}

func (s *Session) persistTranscripts() {
	input, output := s.inputTranscript, s.outputTranscript
	s.inputTranscript, s.outputTranscript = "", ""

	if input == "" && output == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if input != "" {
		if err := s.store.AddConversation(ctx, entities.RoleUser, input, s.user); err != nil {
			s.logger.Error("persist user transcript", zap.Error(err))
		}
	}
	if output != "" {
		if err := s.store.AddConversation(ctx, entities.RoleAssistant, output, s.user); err != nil {
			s.logger.Error("persist assistant transcript", zap.Error(err))
		}
	}
}

// handleEndSession is the provider tool that lets the model hang up.
func (s *Session) handleEndSession(map[string]any) (any, error) {
	s.logger.Info("model requested session end", zap.String("userID", s.user.ID))
	s.enqueueText(statusMessage(serverSessionEnd))

	// Give the goodbye frame a moment to flush before tearing down.
	go func() {
		time.Sleep(time.Second)
		s.Close()
	}()

	return map[string]any{"success": true}, nil
}

func (s *Session) enqueueText(payload []byte) {
	s.enqueue(writeData{messageType: websocket.TextMessage, payload: payload})
}

func (s *Session) enqueue(frame writeData) {
	select {
	case s.send <- frame:
	case <-s.done:
	}
}
