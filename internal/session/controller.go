// Package session coordinates one dashboard session: device discovery, the
// analysis stream, the metrics buffer and device change commands. All of its
// state is mutated from the bubbletea update loop; blocking work is returned
// as tea.Cmd values whose results come back tagged with the controller epoch.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
	"github.com/yacekmm/SpeakerAssistant/internal/journal"
	"github.com/yacekmm/SpeakerAssistant/internal/metrics"
	"github.com/yacekmm/SpeakerAssistant/internal/observability"
)

const journalTimeout = 5 * time.Second

// DeviceFetcher lists the backend's audio devices.
type DeviceFetcher interface {
	FetchDevices(ctx context.Context) (backend.DeviceList, error)
}

// Stream is the part of *backend.Stream the controller uses.
type Stream interface {
	Events() <-chan backend.StreamEvent
	Send(cmd backend.DeviceChangeCommand) error
	State() backend.ConnState
	Close() error
}

// Opener starts a new stream. It must not block on the handshake.
type Opener func(ctx context.Context) Stream

// Selection is the locally chosen input and output device.
type Selection struct {
	Input     int
	Output    int
	InputSet  bool
	OutputSet bool
}

// Get returns the selected ID for kind and whether one was chosen.
func (s Selection) Get(kind backend.DeviceKind) (int, bool) {
	if kind == backend.DeviceOutput {
		return s.Output, s.OutputSet
	}
	return s.Input, s.InputSet
}

// View is a read-only snapshot of the controller for rendering.
type View struct {
	SessionID     string
	Loading       bool
	Devices       backend.DeviceList
	DiscoveryDone bool
	DiscoveryErr  error
	ConnState     backend.ConnState
	ConnErr       error
	Metrics       metrics.State
	Selection     Selection
}

// Controller owns one session's catalog result, stream and buffer.
type Controller struct {
	id      string
	catalog DeviceFetcher
	open    Opener
	journal journal.Recorder
	metrics *observability.Metrics
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stream    Stream
	closeOnce sync.Once
	buffer    *metrics.Buffer

	epoch   uint64
	started bool
	alive   bool

	devices       backend.DeviceList
	discoveryDone bool
	discoveryErr  error
	connState     backend.ConnState
	connErr       error
	selection     Selection
	seq           int
}

// Option configures a Controller.
type Option func(*Controller)

// WithJournal records every applied analysis event.
func WithJournal(r journal.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.journal = r
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// New creates a controller. Nothing happens until Init.
func New(catalog DeviceFetcher, open Opener, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:      uuid.NewString(),
		catalog: catalog,
		open:    open,
		journal: journal.Nop{},
		log:     zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
		buffer:  metrics.NewBuffer(),
		epoch:   1,
		devices: emptyDevices(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("session_id", c.id).Logger()
	return c
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// Init opens the stream and starts discovery. Calling it again, or after
// Teardown, does nothing.
func (c *Controller) Init() tea.Cmd {
	if c.started || c.torndown() {
		return nil
	}
	c.started = true
	c.alive = true
	c.connState = backend.Connecting

	c.stream = c.open(c.ctx)
	c.log.Info().Msg("session started")
	return tea.Batch(c.fetchDevicesCmd(), c.waitForStreamEvent())
}

func (c *Controller) torndown() bool { return c.started && !c.alive }

func (c *Controller) fetchDevicesCmd() tea.Cmd {
	epoch, ctx, catalog := c.epoch, c.ctx, c.catalog
	return func() tea.Msg {
		list, err := catalog.FetchDevices(ctx)
		return DevicesLoadedMsg{Epoch: epoch, Devices: list, Err: err}
	}
}

// waitForStreamEvent reads one event; Update re-arms it after each event.
func (c *Controller) waitForStreamEvent() tea.Cmd {
	epoch, stream := c.epoch, c.stream
	return func() tea.Msg {
		ev, ok := <-stream.Events()
		return StreamEventMsg{Epoch: epoch, Event: ev, Closed: !ok}
	}
}

func (c *Controller) current(epoch uint64) bool {
	return c.alive && epoch == c.epoch
}

// Update applies one result message and returns follow-up work. Messages
// from an earlier epoch or arriving after Teardown are dropped.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case DevicesLoadedMsg:
		if !c.current(msg.Epoch) {
			c.log.Debug().Uint64("epoch", msg.Epoch).Msg("dropping stale discovery result")
			return nil
		}
		c.applyDevices(msg)
		return nil

	case StreamEventMsg:
		if !c.current(msg.Epoch) {
			return nil
		}
		if msg.Closed {
			return nil
		}
		cmd := c.handleEvent(msg.Event)
		if c.connState.Terminal() {
			// Nothing follows the terminal event.
			return cmd
		}
		return tea.Batch(cmd, c.waitForStreamEvent())

	case JournalErrorMsg:
		if msg.Epoch == c.epoch {
			c.log.Warn().Err(msg.Err).Msg("journal write failed")
		}
		return nil
	}
	return nil
}

func (c *Controller) applyDevices(msg DevicesLoadedMsg) {
	c.discoveryDone = true
	if msg.Err != nil {
		c.discoveryErr = msg.Err
		c.devices = emptyDevices()
		c.log.Warn().Err(msg.Err).Msg("device discovery failed")
		return
	}
	c.devices = msg.Devices
	if c.devices.Inputs == nil {
		c.devices.Inputs = []backend.AudioDevice{}
	}
	if c.devices.Outputs == nil {
		c.devices.Outputs = []backend.AudioDevice{}
	}
	c.log.Info().
		Int("inputs", len(c.devices.Inputs)).
		Int("outputs", len(c.devices.Outputs)).
		Msg("devices discovered")
}

func (c *Controller) handleEvent(ev backend.StreamEvent) tea.Cmd {
	switch ev.Kind {
	case backend.EventOpen:
		c.setState(backend.Open)

	case backend.EventAnalysis:
		c.buffer.Apply(ev.Analysis.Snapshot, ev.Analysis.Questions)
		c.seq++
		snap := ev.Analysis.Snapshot
		c.log.Info().
			Int("seq", c.seq).
			Int("filler_words", snap.FillerWords).
			Int("speaking_time", snap.SpeakingTime).
			Float64("engagement_score", snap.EngagementScore).
			Int("questions", len(ev.Analysis.Questions)).
			Msg("analysis applied")
		return c.recordCmd(journal.Entry{
			SessionID:       c.id,
			Seq:             c.seq,
			FillerWords:     snap.FillerWords,
			SpeakingTime:    snap.SpeakingTime,
			EngagementScore: snap.EngagementScore,
			Questions:       ev.Analysis.Questions,
			ReceivedAt:      time.Now().UTC(),
		})

	case backend.EventError:
		if ev.Err != nil && ev.Err.Kind == backend.MalformedPayload {
			c.log.Warn().Err(ev.Err).Str("kind", ev.Err.Kind.String()).Msg("skipping malformed stream message")
			return nil
		}
		var err error = errors.New("stream failed")
		if ev.Err != nil {
			err = ev.Err
		}
		c.connErr = err
		c.setState(backend.Errored)
		c.log.Error().Err(err).Msg("stream connection error")
		return c.closeStreamCmd()

	case backend.EventClose:
		c.setState(backend.Closed)
	}
	return nil
}

func (c *Controller) setState(s backend.ConnState) {
	if c.connState == s {
		return
	}
	if !backend.CanTransition(c.connState, s) {
		c.log.Warn().Str("from", c.connState.String()).Str("to", s.String()).Msg("ignoring state change")
		return
	}
	c.log.Info().Str("from", c.connState.String()).Str("state", s.String()).Msg("connection state")
	c.connState = s
}

func (c *Controller) recordCmd(e journal.Entry) tea.Cmd {
	if _, ok := c.journal.(journal.Nop); ok {
		return nil
	}
	rec, epoch := c.journal, c.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := rec.RecordAnalysis(ctx, e); err != nil {
			return JournalErrorMsg{Epoch: epoch, Err: err}
		}
		return nil
	}
}

// SelectDevice records kind/id as the local selection, then sends a device
// change command. The send is skipped unless the stream is Open; the local
// selection is updated either way. The ID is not checked against the
// discovered devices. A non-nil error means the write itself failed.
func (c *Controller) SelectDevice(kind backend.DeviceKind, id int) error {
	switch kind {
	case backend.DeviceInput:
		c.selection.Input, c.selection.InputSet = id, true
	case backend.DeviceOutput:
		c.selection.Output, c.selection.OutputSet = id, true
	default:
		return fmt.Errorf("unknown device kind %q", kind)
	}

	l := c.log.With().Str("device_type", string(kind)).Int("device_id", id).Logger()
	if c.stream == nil {
		c.metrics.ObserveDeviceChange(string(kind), "skipped")
		l.Info().Msg("device selected, stream not started")
		return nil
	}

	err := c.stream.Send(backend.NewDeviceChange(kind, id))
	switch {
	case err == nil:
		c.metrics.ObserveDeviceChange(string(kind), "sent")
		l.Info().Msg("device change sent")
		return nil
	case errors.Is(err, backend.ErrNotOpen):
		c.metrics.ObserveDeviceChange(string(kind), "skipped")
		l.Info().Str("state", c.stream.State().String()).Msg("device selected, stream not open")
		return nil
	default:
		c.metrics.ObserveDeviceChange(string(kind), "failed")
		l.Warn().Err(err).Msg("device change failed")
		return fmt.Errorf("select %s device %d: %w", kind, id, err)
	}
}

// Teardown ends the session: pending results are invalidated at once and
// the returned command closes the stream off the update loop. Safe to call
// more than once; the stream is closed at most once.
func (c *Controller) Teardown() tea.Cmd {
	if c.alive {
		c.log.Info().Msg("session teardown")
	}
	c.alive = false
	c.started = true
	c.epoch++
	c.cancel()
	return c.closeStreamCmd()
}

// Close tears the session down and waits for the stream to close. It is for
// callers outside the update loop, such as after the program has exited.
func (c *Controller) Close() {
	c.Teardown()
	c.closeStream()
}

func (c *Controller) closeStreamCmd() tea.Cmd {
	if c.stream == nil {
		return nil
	}
	return func() tea.Msg {
		c.closeStream()
		return nil
	}
}

// closeStream closes the stream at most once for the controller's lifetime.
// A second caller waits for the first close to finish.
func (c *Controller) closeStream() {
	if c.stream == nil {
		return
	}
	c.closeOnce.Do(func() {
		if err := c.stream.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close stream")
		}
	})
}

// Loading reports whether the dashboard is still waiting for discovery or
// for the stream to leave Connecting.
func (c *Controller) Loading() bool {
	return !c.discoveryDone || c.connState == backend.Connecting
}

// View returns a snapshot for rendering.
func (c *Controller) View() View {
	return View{
		SessionID:     c.id,
		Loading:       c.Loading(),
		Devices:       copyDevices(c.devices),
		DiscoveryDone: c.discoveryDone,
		DiscoveryErr:  c.discoveryErr,
		ConnState:     c.connState,
		ConnErr:       c.connErr,
		Metrics:       c.buffer.Current(),
		Selection:     c.selection,
	}
}

func emptyDevices() backend.DeviceList {
	return backend.DeviceList{Inputs: []backend.AudioDevice{}, Outputs: []backend.AudioDevice{}}
}

func copyDevices(l backend.DeviceList) backend.DeviceList {
	out := backend.DeviceList{
		Inputs:  make([]backend.AudioDevice, len(l.Inputs)),
		Outputs: make([]backend.AudioDevice, len(l.Outputs)),
	}
	copy(out.Inputs, l.Inputs)
	copy(out.Outputs, l.Outputs)
	return out
}
