package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"artisanlink/internal/config"
	"artisanlink/internal/events"
	"artisanlink/internal/metrics"
	"artisanlink/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var (
	ErrClosed    = errors.New("realtime: socket closed")
	ErrEmptyRoom = errors.New("realtime: empty room id")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const writeTimeout = 10 * time.Second

// Frame is the JSON envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatePayload is published as connection_state on the event bus.
type StatePayload struct {
	State State `json:"state"`
}

// Socket is the process-wide realtime channel. Incoming frames are
// dispatched on the event bus by event name. Room membership is reference
// counted so overlapping views share one server-side join.
type Socket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	bus    *events.EventBus
	retry  RetryPolicy
	logger *zerolog.Logger

	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	rooms  map[string]int
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewSocket(cfg config.RealtimeConfig, token string, bus *events.EventBus, logger *zerolog.Logger) *Socket {
	if bus == nil {
		bus = events.NewEventBus()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Socket{
		url:    cfg.URL,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		bus:    bus,
		retry:  RetryPolicyFromConfig(cfg.Reconnect),
		logger: logger,
		rooms:  make(map[string]int),
		state:  StateDisconnected,
	}
}

// Bus exposes the bus incoming events are published on.
func (s *Socket) Bus() *events.EventBus {
	return s.bus
}

func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomRefs returns how many holders currently keep roomID joined.
func (s *Socket) RoomRefs(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// Connect dials the server and starts the read loop. Calling it while
// connected is a no-op.
func (s *Socket) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.setState(StateConnecting)
	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("realtime connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		s.setState(StateDisconnected)
		return ErrClosed
	}
	s.conn = conn
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.rejoin(conn)
	s.setState(StateConnected)
	s.logger.Info().Str("url", s.url).Msg("realtime connected")

	go s.run(loopCtx, conn, done)
	return nil
}

// Close leaves the connection and stops reconnecting. Safe to call twice.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, conn, done := s.cancel, s.conn, s.done
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	s.setState(StateDisconnected)
	return nil
}

// JoinRoom takes a reference on roomID; only the first reference is sent to
// the server.
func (s *Socket) JoinRoom(roomID string) error {
	if roomID == "" {
		return ErrEmptyRoom
	}
	s.mu.Lock()
	s.rooms[roomID]++
	first := s.rooms[roomID] == 1
	conn := s.conn
	s.mu.Unlock()

	if !first || conn == nil {
		return nil
	}
	if err := s.emit(conn, models.EventJoinRoom, roomID); err != nil {
		s.release(roomID)
		return err
	}
	return nil
}

// release drops one reference without telling the server.
func (s *Socket) release(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch n := s.rooms[roomID]; {
	case n <= 1:
		delete(s.rooms, roomID)
	default:
		s.rooms[roomID] = n - 1
	}
}

// LeaveRoom drops a reference on roomID. Leaving a room that is not joined
// is a no-op.
func (s *Socket) LeaveRoom(roomID string) error {
	if roomID == "" {
		return ErrEmptyRoom
	}
	s.mu.Lock()
	n := s.rooms[roomID]
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	if n == 1 {
		delete(s.rooms, roomID)
	} else {
		s.rooms[roomID] = n - 1
	}
	conn := s.conn
	s.mu.Unlock()

	if n == 1 && conn != nil {
		return s.emit(conn, models.EventLeaveRoom, roomID)
	}
	return nil
}

func (s *Socket) On(event string, handler events.EventHandler) events.Subscription {
	return s.bus.Subscribe(event, handler)
}

func (s *Socket) Off(sub events.Subscription) bool {
	return s.bus.Unsubscribe(sub)
}

// Emit sends an arbitrary event to the server.
func (s *Socket) Emit(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	return s.emit(conn, event, data)
}

func (s *Socket) emit(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Frame{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (s *Socket) rejoin(conn *websocket.Conn) {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	s.mu.Unlock()

	for _, id := range rooms {
		if err := s.emit(conn, models.EventJoinRoom, id); err != nil {
			s.logger.Warn().Err(err).Str("room", id).Msg("rejoin room failed")
		}
	}
}

func (s *Socket) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := s.readLoop(conn)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Msg("realtime connection lost")
		_ = conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		conn = s.reconnect(ctx)
		if conn == nil {
			s.setState(StateDisconnected)
			return
		}
	}
}

func (s *Socket) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 1; s.retry.Allows(attempt); attempt++ {
		s.setState(StateReconnecting)
		metrics.IncReconnect()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retry.NextDelay(attempt)):
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Int("attempt", attempt).Msg("realtime reconnect failed")
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.conn = conn
		s.mu.Unlock()

		s.rejoin(conn)
		s.setState(StateConnected)
		s.logger.Info().Int("attempt", attempt).Msg("realtime reconnected")
		return conn
	}
	s.logger.Error().Int("max_retries", s.retry.MaxRetries).Msg("realtime reconnect gave up")
	return nil
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(msg) {
			s.logger.Debug().Int("bytes", len(msg)).Msg("realtime frame is not json, dropped")
			continue
		}
		name := gjson.GetBytes(msg, "event").String()
		if name == "" {
			continue
		}
		data := gjson.GetBytes(msg, "data")

		metrics.IncRealtimeEvent(name)
		event := &events.Event{Type: name, CreatedAt: time.Now()}
		if data.Exists() {
			event.Payload = json.RawMessage(data.Raw)
		}
		s.bus.Publish(event)
	}
}

func (s *Socket) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()

	if changed {
		if err := s.bus.PublishJSON(models.EventConnectionState, StatePayload{State: st}); err != nil {
			s.logger.Error().Err(err).Msg("publish connection state")
		}
	}
}
