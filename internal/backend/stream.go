package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yacekmm/SpeakerAssistant/internal/observability"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	eventBuffer             = 64
)

// EventKind identifies what a StreamEvent reports.
type EventKind int

const (
	EventOpen EventKind = iota
	EventAnalysis
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventAnalysis:
		return "analysis"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// StreamEvent is one notification raised by a Stream. State is the
// connection state right after the event.
type StreamEvent struct {
	Kind     EventKind
	Analysis Analysis
	Err      *StreamError
	State    ConnState
}

// Stream is one WebSocket connection to the backend. It moves forward
// through Connecting, Open and then Closed or Errored, and never reconnects.
// Events are delivered in transport order on a single channel which is
// closed after the terminal event.
type Stream struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger

	state   atomic.Int32
	stateMu sync.Mutex
	rawConn net.Conn
	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan StreamEvent
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.dialer.HandshakeTimeout = d
		}
	}
}

// WithWriteTimeout bounds each outbound command write.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithStreamMetrics counts stream traffic.
func WithStreamMetrics(m *observability.Metrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// WithStreamLogger sets the logger.
func WithStreamLogger(l zerolog.Logger) StreamOption {
	return func(s *Stream) { s.log = l }
}

// Dial starts connecting to url and returns immediately in Connecting.
// ctx bounds the handshake only; the connection lives until Close or until
// the backend ends it.
func Dial(ctx context.Context, url string, opts ...StreamOption) *Stream {
	s := &Stream{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		writeTimeout: defaultWriteTimeout,
		log:          zerolog.Nop(),
		events:       make(chan StreamEvent, eventBuffer),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dialer.NetDialContext = s.dialTCP
	s.state.Store(int32(Connecting))
	s.recordState(Connecting)

	dialCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(dialCtx)
	return s
}

// URL returns the endpoint this stream was opened against.
func (s *Stream) URL() string { return s.url }

// Events yields stream notifications in transport order.
func (s *Stream) Events() <-chan StreamEvent { return s.events }

// State returns the current connection state.
func (s *Stream) State() ConnState { return ConnState(s.state.Load()) }

// Done is closed once the stream has reached a terminal state and released
// its connection.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Send writes a device change command. It returns ErrNotOpen without
// touching the transport unless the connection is Open, including when the
// connection closes concurrently with the call.
func (s *Stream) Send(cmd DeviceChangeCommand) error {
	if s.State() != Open {
		return ErrNotOpen
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.stateMu.Lock()
	conn, state := s.conn, s.State()
	s.stateMu.Unlock()
	if state != Open || conn == nil {
		return ErrNotOpen
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := conn.WriteJSON(cmd); err != nil {
		if s.State() != Open || closedWriteErr(err) {
			return ErrNotOpen
		}
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	s.metrics.ObserveMessage("out", string(cmd.Type))
	return nil
}

// closedWriteErr reports a write that failed because the connection was
// already closed by either side.
func closedWriteErr(err error) bool {
	return errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Close ends the connection and waits for the reader to finish. It is safe
// to call more than once and from any state.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.cancel()

		s.stateMu.Lock()
		conn, raw := s.conn, s.rawConn
		s.stateMu.Unlock()
		switch {
		case conn != nil:
			s.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.writeMu.Unlock()
			_ = conn.Close()
		case raw != nil:
			// Handshake in flight; the dialer does not watch ctx while
			// reading the upgrade response.
			_ = raw.Close()
		}
	})
	<-s.done
	return nil
}

// dialTCP records the raw connection so Close can abort a pending handshake.
func (s *Stream) dialTCP(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.isClosing() {
		_ = c.Close()
		return nil, net.ErrClosed
	}
	s.rawConn = c
	return c, nil
}

func (s *Stream) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// transition moves to next if allowed. Callers hold stateMu.
func (s *Stream) transition(next ConnState) bool {
	cur := s.State()
	if !CanTransition(cur, next) {
		return false
	}
	s.state.Store(int32(next))
	s.recordState(next)
	s.log.Debug().Str("from", cur.String()).Str("to", next.String()).Msg("stream state")
	return true
}

func (s *Stream) recordState(state ConnState) {
	names := make([]string, len(ConnStates))
	for i, st := range ConnStates {
		names[i] = st.String()
	}
	s.metrics.SetConnectionState(state.String(), names)
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if s.isClosing() {
			s.finish(Closed, nil)
			return
		}
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		s.finish(Errored, newStreamError(TransportError, err))
		return
	}

	s.stateMu.Lock()
	if s.isClosing() {
		s.stateMu.Unlock()
		_ = conn.Close()
		s.finish(Closed, nil)
		return
	}
	s.conn = conn
	s.transition(Open)
	s.stateMu.Unlock()
	conn.SetCloseHandler(s.handleClose(conn))

	s.log.Info().Str("url", s.url).Msg("stream open")
	s.emit(StreamEvent{Kind: EventOpen, State: Open})
	s.readLoop(conn)
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if s.isClosing() || isBackendClose(err) {
				s.finish(Closed, nil)
				return
			}
			s.finish(Errored, newStreamError(TransportError, err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		analysis, typ, ok, decodeErr := DecodeMessage(data)
		if decodeErr != nil {
			s.metrics.ObserveMalformed()
			s.log.Warn().Err(decodeErr).Int("bytes", len(data)).Msg("malformed stream payload")
			var se *StreamError
			errors.As(decodeErr, &se)
			s.emit(StreamEvent{Kind: EventError, Err: se, State: s.State()})
			continue
		}
		s.metrics.ObserveMessage("in", string(typ))
		if !ok {
			s.log.Debug().Str("type", string(typ)).Msg("ignoring stream message")
			continue
		}
		s.emit(StreamEvent{Kind: EventAnalysis, Analysis: analysis, State: s.State()})
	}
}

// handleClose moves to Closed as soon as the backend's close frame is read,
// so Send stops writing before the read loop winds down, then echoes the
// frame as gorilla's default handler does.
func (s *Stream) handleClose(conn *websocket.Conn) func(code int, text string) error {
	return func(code int, text string) error {
		s.stateMu.Lock()
		s.transition(Closed)
		s.stateMu.Unlock()

		msg := websocket.FormatCloseMessage(code, "")
		err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !closedWriteErr(err) {
			return err
		}
		return nil
	}
}

// isBackendClose reports a close frame sent by the backend. An abnormal
// closure is synthesized locally when the transport drops, so it is not one.
func isBackendClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code != websocket.CloseAbnormalClosure
}

// finish moves to a terminal state and raises the matching event. The run
// goroutine calls it exactly once; the close handler may already have moved
// the stream to Closed.
func (s *Stream) finish(state ConnState, serr *StreamError) {
	s.stateMu.Lock()
	s.transition(state)
	state = s.State()
	s.stateMu.Unlock()

	if state == Errored {
		s.log.Warn().Err(serr).Str("url", s.url).Msg("stream failed")
		s.emit(StreamEvent{Kind: EventError, Err: serr, State: Errored})
		return
	}
	s.log.Info().Str("url", s.url).Msg("stream closed")
	s.emit(StreamEvent{Kind: EventClose, State: Closed})
}

// emit delivers ev in order. Once Close has been called nobody may be
// listening, so delivery falls back to whatever buffer room is left.
func (s *Stream) emit(ev StreamEvent) {
	select {
	case s.events <- ev:
		return
	case <-s.closing:
	}
	select {
	case s.events <- ev:
	default:
	}
}
