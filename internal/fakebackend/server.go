// Package fakebackend is a stand-in for the speech-coaching analysis backend.
// It serves the device discovery endpoint and the analysis WebSocket, records
// device change commands and pushes analysis frames on demand. Tests use it
// through httptest; cmd/fakebackend runs it for local development.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
)

const (
	DevicesPath = "/audio-devices"
	StreamPath  = "/ws"
)

// StatusFrame acknowledges a device change, like the real backend does.
type StatusFrame struct {
	Type       string             `json:"type"`
	Status     string             `json:"status"`
	DeviceType backend.DeviceKind `json:"device_type"`
	DeviceID   int                `json:"device_id"`
}

// ErrorFrame reports a rejected client message.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type peer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(messageType, data)
}

// Server is the fake backend.
type Server struct {
	router   chi.Router
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu            sync.Mutex
	devices       backend.DeviceList
	devicesStatus int
	devicesBody   []byte
	devicesDelay  time.Duration
	streamStatus  int
	commands      []backend.DeviceChangeCommand
	peers         map[string]*peer
	connected     chan string
	commandCh     chan backend.DeviceChangeCommand
}

// New creates a server that reports devices from the discovery endpoint.
func New(devices backend.DeviceList, log zerolog.Logger) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      log,
		devices:  devices,
		peers:    make(map[string]*peer),
		// Buffered so tests can wait for events that happened before they looked.
		connected: make(chan string, 16),
		commandCh: make(chan backend.DeviceChangeCommand, 64),
	}

	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get(DevicesPath, s.handleDevices)
	r.Get(StreamPath, s.handleStream)
	s.router = r
	return s
}

// DefaultDevices returns a small device set for local runs.
func DefaultDevices() backend.DeviceList {
	return backend.DeviceList{
		Inputs: []backend.AudioDevice{
			{ID: 0, Name: "Built-in Microphone", Channels: 1, SampleRate: 48000},
			{ID: 2, Name: "USB Podcast Mic", Channels: 2, SampleRate: 44100},
		},
		Outputs: []backend.AudioDevice{
			{ID: 1, Name: "Built-in Speakers", Channels: 2, SampleRate: 48000},
			{ID: 3, Name: "Headphones", Channels: 2, SampleRate: 44100},
		},
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// FailDevices makes the discovery endpoint answer with status.
func (s *Server) FailDevices(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devicesStatus = status
}

// SetDevicesBody makes the discovery endpoint answer 200 with a raw body.
func (s *Server) SetDevicesBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devicesBody = []byte(body)
}

// DelayDevices holds every discovery response for d.
func (s *Server) DelayDevices(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devicesDelay = d
}

// RejectStream makes the WebSocket endpoint refuse upgrades with status.
func (s *Server) RejectStream(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamStatus = status
}

// Commands returns every device change received so far, in arrival order.
func (s *Server) Commands() []backend.DeviceChangeCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.DeviceChangeCommand, len(s.commands))
	copy(out, s.commands)
	return out
}

// WaitForClient blocks until a WebSocket client connects and returns its
// connection ID.
func (s *Server) WaitForClient(ctx context.Context) (string, error) {
	select {
	case id := <-s.connected:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// WaitForCommand blocks until the next device change arrives.
func (s *Server) WaitForCommand(ctx context.Context) (backend.DeviceChangeCommand, error) {
	select {
	case cmd := <-s.commandCh:
		return cmd, nil
	case <-ctx.Done():
		return backend.DeviceChangeCommand{}, ctx.Err()
	}
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// SendRaw writes payload as a text frame to every connected client.
func (s *Server) SendRaw(payload []byte) error {
	var errs []error
	for _, p := range s.snapshotPeers() {
		if err := p.write(websocket.TextMessage, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendAnalysis writes one analysis frame to every connected client.
func (s *Server) SendAnalysis(snap backend.Snapshot, questions []string) error {
	if questions == nil {
		questions = []string{}
	}
	payload, err := json.Marshal(map[string]any{
		"type": backend.TypeAnalysis,
		"data": map[string]any{
			"filler_words":        snap.FillerWords,
			"speaking_time":       snap.SpeakingTime,
			"engagement_score":    snap.EngagementScore,
			"suggested_questions": questions,
		},
	})
	if err != nil {
		return err
	}
	return s.SendRaw(payload)
}

// CloseClients sends a close frame with code to every client and drops them.
func (s *Server) CloseClients(code int) {
	for _, p := range s.snapshotPeers() {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
		p.writeMu.Unlock()
		_ = p.conn.Close()
	}
}

// DropClients closes every client connection without a close frame.
func (s *Server) DropClients() {
	for _, p := range s.snapshotPeers() {
		_ = p.conn.Close()
	}
}

func (s *Server) snapshotPeers() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Speaker Assistant API is running",
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, body, delay, devices := s.devicesStatus, s.devicesBody, s.devicesDelay, s.devices
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": "Failed to get audio devices"})
		return
	}
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	s.log.Info().Int("inputs", len(devices.Inputs)).Int("outputs", len(devices.Outputs)).Msg("devices requested")
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.streamStatus
	s.mu.Unlock()
	if reject != 0 {
		http.Error(w, http.StatusText(reject), reject)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	p := &peer{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()
	s.log.Info().Str("conn_id", p.id).Msg("websocket connection established")

	select {
	case s.connected <- p.id:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		_ = conn.Close()
		s.log.Info().Str("conn_id", p.id).Msg("websocket connection closed")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleClientMessage(p, data)
	}
}

func (s *Server) handleClientMessage(p *peer, data []byte) {
	var env backend.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reply(p, ErrorFrame{Type: string(backend.TypeError), Error: "Invalid JSON"})
		return
	}
	if env.Type != backend.TypeDeviceChange {
		s.log.Warn().Str("type", string(env.Type)).Msg("unknown message type")
		s.reply(p, ErrorFrame{Type: string(backend.TypeError), Error: "Unknown message type"})
		return
	}

	var cmd backend.DeviceChangeCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.reply(p, ErrorFrame{Type: string(backend.TypeError), Error: err.Error()})
		return
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	select {
	case s.commandCh <- cmd:
	default:
	}
	s.log.Info().Str("device_type", string(cmd.DeviceType)).Int("device_id", cmd.DeviceID).Msg("device change requested")

	s.reply(p, StatusFrame{
		Type:       string(backend.TypeStatus),
		Status:     "device_changed",
		DeviceType: cmd.DeviceType,
		DeviceID:   cmd.DeviceID,
	})
}

func (s *Server) reply(p *peer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.write(websocket.TextMessage, data); err != nil {
		s.log.Debug().Err(err).Str("conn_id", p.id).Msg("reply failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
