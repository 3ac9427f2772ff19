package live

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/livevoice/pkg/audio"
	"github.com/realtime-ai/livevoice/pkg/connection"
	"github.com/realtime-ai/livevoice/pkg/pipeline"
)

// fakeSession records outbound chunks.
type fakeSession struct {
	mu     sync.Mutex
	sent   []connection.Blob
	closed int
	err    error
	// onClose runs inside Close, before it returns.
	onClose func()
}

func (s *fakeSession) SendRealtimeInput(chunk connection.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed++
	fn := s.onClose
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (s *fakeSession) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

func (s *fakeSession) Sent() []connection.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]connection.Blob(nil), s.sent...)
}

func (s *fakeSession) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeConnector opens fakeSessions. With autoOpen it reports the session
// open before Connect returns.
type fakeConnector struct {
	mu       sync.Mutex
	autoOpen bool
	err      error
	// block, when set, holds Connect until it is closed or ctx ends.
	block   chan struct{}
	entered chan struct{}

	calls    int
	cfg      connection.Config
	cb       connection.Callbacks
	sessions []*fakeSession
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{autoOpen: true, entered: make(chan struct{}, 8)}
}

func (c *fakeConnector) Connect(ctx context.Context, cfg connection.Config, cb connection.Callbacks) (connection.Session, error) {
	c.mu.Lock()
	c.calls++
	c.cfg = cfg
	c.cb = cb
	block, err, autoOpen := c.block, c.err, c.autoOpen
	c.mu.Unlock()

	c.entered <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := &fakeSession{}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()

	if autoOpen {
		cb.OnOpen()
	}
	return s, nil
}

func (c *fakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeConnector) Config() connection.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *fakeConnector) Callbacks() connection.Callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

func (c *fakeConnector) Session(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		return nil
	}
	return c.sessions[i]
}

// fakeMic hands out fakeStreams.
type fakeMic struct {
	mu      sync.Mutex
	err     error
	rate    int
	streams []*fakeStream
}

func (m *fakeMic) Open(sampleRate, channels int) (InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.rate = sampleRate
	s := &fakeStream{}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMic) Stream(i int) *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.streams) {
		return nil
	}
	return m.streams[i]
}

type fakeStream struct {
	mu        sync.Mutex
	onSamples func([]float32)
	closed    int
}

func (s *fakeStream) Start(onSamples func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSamples = onSamples
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) Push(samples []float32) {
	s.mu.Lock()
	fn := s.onSamples
	s.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (s *fakeStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOutput hands out fakeOutputContexts.
type fakeOutput struct {
	mu       sync.Mutex
	err      error
	rate     int
	start    float64
	contexts []*fakeOutputContext
}

func (o *fakeOutput) Open(sampleRate int) (OutputContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.rate = sampleRate
	ctx := &fakeOutputContext{now: o.start}
	o.contexts = append(o.contexts, ctx)
	return ctx, nil
}

func (o *fakeOutput) Context(i int) *fakeOutputContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.contexts) {
		return nil
	}
	return o.contexts[i]
}

// fakeOutputContext has a manual clock and records scheduled nodes.
type fakeOutputContext struct {
	mu     sync.Mutex
	now    float64
	nodes  []*fakeNode
	closed int
}

func (o *fakeOutputContext) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutputContext) SetTime(t float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = t
}

func (o *fakeOutputContext) Schedule(buf *audio.Buffer, when float64, onEnded func()) (PlaybackNode, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed > 0 {
		return nil, errors.New("output closed")
	}
	n := &fakeNode{buf: buf, when: when, onEnded: onEnded}
	o.nodes = append(o.nodes, n)
	return n, nil
}

func (o *fakeOutputContext) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutputContext) Nodes() []*fakeNode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeNode(nil), o.nodes...)
}

func (o *fakeOutputContext) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeNode struct {
	mu      sync.Mutex
	buf     *audio.Buffer
	when    float64
	onEnded func()
	stopped int
	ended   bool
}

// Stop fails on a node that already ended, like a real source node.
func (n *fakeNode) Stop() error {
	n.mu.Lock()
	n.stopped++
	if n.ended {
		n.mu.Unlock()
		return errors.New("node already ended")
	}
	n.ended = true
	fn := n.onEnded
	n.mu.Unlock()
	fn()
	return nil
}

// Finish simulates the buffer playing to its end.
func (n *fakeNode) Finish() {
	n.mu.Lock()
	if n.ended {
		n.mu.Unlock()
		return
	}
	n.ended = true
	fn := n.onEnded
	n.mu.Unlock()
	fn()
}

func (n *fakeNode) Stopped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

// fakeKeys is a KeySelector; a selection grants a key when grant is set.
type fakeKeys struct {
	mu      sync.Mutex
	key     string
	grant   string
	selects int
}

func (k *fakeKeys) HasSelectedKey(context.Context) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key != ""
}

func (k *fakeKeys) OpenSelectKey(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.selects++
	if k.grant == "" {
		return errors.New("selection dismissed")
	}
	k.key = k.grant
	return nil
}

func (k *fakeKeys) APIKey() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key
}

func (k *fakeKeys) Selects() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.selects
}

// fakeTimers is a manual AfterFunc.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Fire runs timer i even if it was stopped, like a timer that raced Stop.
func (f *fakeTimers) Fire(i int) {
	f.mu.Lock()
	t := f.timers[i]
	f.mu.Unlock()
	t.fn()
}

func (f *fakeTimers) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *fakeTimers) Last() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[len(f.timers)-1]
}

// inlinePost runs posted functions immediately; for components tested off
// the event loop.
func inlinePost(fn func()) bool {
	fn()
	return true
}

func inlineSpawn(fn func()) { fn() }

// manualSpawn holds decode jobs until the test runs them.
type manualSpawn struct {
	mu   sync.Mutex
	jobs []func()
}

func (m *manualSpawn) spawn(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, fn)
}

func (m *manualSpawn) Run(i int) {
	m.mu.Lock()
	fn := m.jobs[i]
	m.mu.Unlock()
	fn()
}

func (m *manualSpawn) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// pcmBlob returns a silent 24 kHz fragment of n samples.
func pcmBlob(n int) connection.Blob {
	return connection.Blob{
		Data:     base64.StdEncoding.EncodeToString(make([]byte, n*audio.BytesPerSample)),
		MIMEType: audio.PCMMIMEType(audio.PlaybackSampleRate),
	}
}

// harness wires a Conversation to fakes.
type harness struct {
	conv      *Conversation
	connector *fakeConnector
	mic       *fakeMic
	output    *fakeOutput
	keys      *fakeKeys
	timers    *fakeTimers
	bus       *pipeline.EventBus
	events    chan pipeline.Event
	seen      []pipeline.Event
}

type harnessOption func(*Config, *Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		connector: newFakeConnector(),
		mic:       &fakeMic{},
		output:    &fakeOutput{start: 1.0},
		keys:      &fakeKeys{key: "test-key"},
		timers:    &fakeTimers{},
		bus:       pipeline.NewEventBus(),
		events:    make(chan pipeline.Event, 256),
	}
	for _, et := range []pipeline.EventType{
		pipeline.EventStateChanged,
		pipeline.EventCaption,
		pipeline.EventInterrupted,
		pipeline.EventTurnComplete,
		pipeline.EventError,
		pipeline.EventWarning,
	} {
		h.bus.Subscribe(et, h.events)
	}

	cfg := DefaultConfig()
	o := Options{
		Connector:  h.connector,
		Microphone: h.mic,
		Output:     h.output,
		Keys:       h.keys,
		Bus:        h.bus,
		AfterFunc:  h.timers.AfterFunc,
	}
	for _, opt := range opts {
		opt(&cfg, &o)
	}

	conv, err := New(cfg, o)
	require.NoError(t, err)
	conv.scheduler.spawn = inlineSpawn
	h.conv = conv
	t.Cleanup(func() { conv.Close() })
	return h
}

// settle lets posted work (and work it posts in turn) run.
func (h *harness) settle() {
	for i := 0; i < 8; i++ {
		h.conv.loop.call(func() {})
	}
}

// send delivers a server message through the session callbacks.
func (h *harness) send(evt *connection.ServerEvent) {
	h.connector.Callbacks().OnMessage(evt)
	h.settle()
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.conv.Start(context.Background()))
	require.Equal(t, StateActive, h.conv.State())
}

// eventsOf returns every event of type et published so far.
func (h *harness) eventsOf(et pipeline.EventType) []pipeline.Event {
	for {
		select {
		case e := <-h.events:
			h.seen = append(h.seen, e)
			continue
		default:
		}
		break
	}
	var out []pipeline.Event
	for _, e := range h.seen {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) outputCtx() *fakeOutputContext {
	return h.output.Context(0)
}
