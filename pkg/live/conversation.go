// Package live implements a real-time voice conversation with a remote
// live model.
//
// Microphone audio is cut into fixed 16 kHz PCM chunks and streamed to the
// session; audio coming back is decoded and scheduled gaplessly on the
// output clock. The server may interrupt the reply (barge-in), which stops
// playback at once. A Conversation supervises the whole lifecycle:
//
//	Idle -> Connecting -> Active -> Idle
//
// All scheduling, caption and lifecycle state is owned by a single event
// loop goroutine; device callbacks, transport callbacks, decode workers and
// timers post their results to it.
package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/livevoice/pkg/audio"
	"github.com/realtime-ai/livevoice/pkg/connection"
	"github.com/realtime-ai/livevoice/pkg/pipeline"
	"github.com/realtime-ai/livevoice/pkg/trace"
	"github.com/realtime-ai/livevoice/pkg/transcript"
)

// State is the lifecycle state of a Conversation.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	// StateInterrupted is reported for a short while after barge-in. The
	// session stays active underneath.
	StateInterrupted
	// StateStopped is terminal; the conversation has been closed.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Voices lists the prebuilt voices offered for a live conversation.
var Voices = []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir"}

// DefaultVoice is the voice used when none is configured.
const DefaultVoice = "Zephyr"

// DefaultCaptionClearDelay is how long the caption stays after a turn ends.
const DefaultCaptionClearDelay = 5 * time.Second

// ErrStartAborted is returned by Start when the conversation is stopped or
// the session closes before it becomes active.
var ErrStartAborted = errors.New("conversation stopped before becoming active")

// Config holds the parameters of a conversation.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	// Transport names the connector in traces (genai, websocket).
	Transport string

	CaptureSampleRate  int
	PlaybackSampleRate int
	// BlockSize is the number of samples per outbound chunk.
	BlockSize int
	// OutboundQueueSize bounds the chunks waiting to be sent.
	OutboundQueueSize int

	CaptionClearDelay    time.Duration
	InterruptedIndicator time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Model:                connection.DefaultModel,
		Voice:                DefaultVoice,
		CaptureSampleRate:    audio.CaptureSampleRate,
		PlaybackSampleRate:   audio.PlaybackSampleRate,
		BlockSize:            audio.DefaultBlockSize,
		OutboundQueueSize:    64,
		CaptionClearDelay:    DefaultCaptionClearDelay,
		InterruptedIndicator: DefaultInterruptedIndicator,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Voice == "" {
		c.Voice = def.Voice
	}
	if c.CaptureSampleRate <= 0 {
		c.CaptureSampleRate = def.CaptureSampleRate
	}
	if c.PlaybackSampleRate <= 0 {
		c.PlaybackSampleRate = def.PlaybackSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = def.BlockSize
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = def.OutboundQueueSize
	}
	if c.CaptionClearDelay <= 0 {
		c.CaptionClearDelay = def.CaptionClearDelay
	}
	if c.InterruptedIndicator <= 0 {
		c.InterruptedIndicator = def.InterruptedIndicator
	}
}

// Options are the collaborators of a conversation. Connector, Microphone,
// Output and Keys are required.
type Options struct {
	Connector  connection.Connector
	Microphone Microphone
	Output     AudioOutput
	Keys       KeySelector

	// Bus receives state, caption, interruption, turn and error events.
	Bus pipeline.Bus
	// History records completed turns.
	History transcript.Store

	// Decoder defaults to audio.DecodePCM16.
	Decoder Decoder
	// AfterFunc defaults to time.AfterFunc.
	AfterFunc AfterFunc
}

// Snapshot is a consistent view of a conversation's state.
type Snapshot struct {
	State           State
	SessionID       string
	Caption         string
	NextStartTime   float64
	ActivePlayback  int
	OutboundSent    int64
	OutboundDropped int64
}

func (s Snapshot) String() string {
	return fmt.Sprintf("state=%s caption=%q next=%.3f active=%d", s.State, s.Caption, s.NextStartTime, s.ActivePlayback)
}

// Conversation is a live voice conversation. It is safe for concurrent use.
type Conversation struct {
	cfg  Config
	opts Options

	loop    *eventLoop
	history *historyWriter

	// 以下字段只在事件循环中访问
	state      State
	gen        uint64
	sessionID  string
	session    connection.Session
	connected  bool
	opened     bool
	devicesReq bool
	outbound   *outboundQueue
	capture    *capturePipeline
	output     OutputContext
	span       oteltrace.Span
	spanCtx    context.Context
	waiter     chan error

	scheduler  *Scheduler
	caption    *CaptionAggregator
	interrupt  *InterruptHandler
	turns      *turnTracker
	dispatcher *Dispatcher

	// 供其他 goroutine 读取的状态镜像
	stateMirror       atomic.Int32
	interruptedMirror atomic.Bool

	closeOnce sync.Once
}

// New creates an idle conversation.
func New(cfg Config, opts Options) (*Conversation, error) {
	switch {
	case opts.Connector == nil:
		return nil, errors.New("live: Options.Connector is required")
	case opts.Microphone == nil:
		return nil, errors.New("live: Options.Microphone is required")
	case opts.Output == nil:
		return nil, errors.New("live: Options.Output is required")
	case opts.Keys == nil:
		return nil, errors.New("live: Options.Keys is required")
	}
	cfg.applyDefaults()

	c := &Conversation{
		cfg:     cfg,
		opts:    opts,
		loop:    newEventLoop(),
		spanCtx: context.Background(),
	}
	if opts.History != nil {
		c.history = newHistoryWriter(opts.History)
	}

	post := c.loop.post
	c.scheduler = newScheduler(opts.Decoder, post, c.warn)
	c.caption = newCaptionAggregator(cfg.CaptionClearDelay, opts.AfterFunc, post, c.onCaption)
	c.interrupt = newInterruptHandler(c.scheduler, c.caption, cfg.InterruptedIndicator, opts.AfterFunc, post, c.onInterrupted)
	c.turns = &turnTracker{onTurn: c.onTurn}
	c.dispatcher = &Dispatcher{
		caption:   c.caption,
		interrupt: c.interrupt,
		scheduler: c.scheduler,
		turns:     c.turns,
	}
	return c, nil
}

// Config returns the configuration after defaults were applied.
func (c *Conversation) Config() Config {
	return c.cfg
}

// Start opens a session and starts capture and playback. It returns once
// the conversation is active or the start failed. Starting while a session
// is connecting or active does nothing.
func (c *Conversation) Start(ctx context.Context) error {
	done := make(chan error, 1)
	if !c.loop.post(func() { c.beginStart(ctx, done) }) {
		return ErrClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.loop.post(func() {
			if c.waiter == done {
				c.teardown(ctx.Err())
			}
		})
		return <-done
	}
}

func (c *Conversation) beginStart(ctx context.Context, done chan error) {
	switch c.state {
	case StateStopped:
		done <- ErrClosed
		return
	case StateConnecting, StateActive:
		log.Printf("[Conversation] start ignored: session already %s", c.state)
		done <- nil
		return
	}

	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.waiter = done
	c.spanCtx, c.span = trace.InstrumentSession(context.WithoutCancel(ctx), c.sessionID, c.cfg.Model, c.cfg.Voice)
	c.setState(StateConnecting)

	cfg := connection.Config{
		Model:               c.cfg.Model,
		Voice:               c.cfg.Voice,
		SystemInstruction:   c.cfg.SystemInstruction,
		InputTranscription:  true,
		OutputTranscription: true,
	}
	go c.connect(ctx, c.spanCtx, gen, c.sessionID, cfg)
}

// authorize makes sure a key is selected, asking the selector once.
func (c *Conversation) authorize(ctx context.Context) error {
	keys := c.opts.Keys
	if keys.HasSelectedKey(ctx) {
		return nil
	}
	if err := keys.OpenSelectKey(ctx); err != nil {
		log.Printf("[Conversation] key selection failed: %v", err)
	}
	if !keys.HasSelectedKey(ctx) {
		return newError(KindAuth, "select api key", nil)
	}
	return nil
}

func (c *Conversation) connect(ctx, spanCtx context.Context, gen uint64, sessionID string, cfg connection.Config) {
	if err := c.authorize(ctx); err != nil {
		c.loop.post(func() { c.failStart(gen, err) })
		return
	}
	cfg.APIKey = c.opts.Keys.APIKey()

	post := c.loop.post
	cb := connection.Callbacks{
		OnOpen:    func() { post(func() { c.onOpen(gen) }) },
		OnMessage: func(evt *connection.ServerEvent) { post(func() { c.onMessage(gen, evt) }) },
		OnError:   func(err error) { post(func() { c.onRemoteError(gen, err) }) },
		OnClose:   func() { post(func() { c.onRemoteClose(gen) }) },
	}

	_, span := trace.InstrumentConnect(spanCtx, sessionID, c.cfg.Transport)
	session, err := c.opts.Connector.Connect(ctx, cfg, cb)
	trace.RecordError(span, err)
	span.End()

	if err != nil {
		c.loop.post(func() { c.failStart(gen, classifyConnectionError("connect", err)) })
		return
	}
	if !c.loop.post(func() { c.onConnected(gen, session) }) {
		session.Close()
	}
}

func (c *Conversation) onConnected(gen uint64, session connection.Session) {
	if gen != c.gen {
		// 连接建立前会话已被停止
		if err := session.Close(); err != nil {
			log.Printf("[Conversation] close stale session error: %v", err)
		}
		return
	}
	c.session = session
	c.connected = true
	c.maybeOpenDevices(gen)
}

func (c *Conversation) onOpen(gen uint64) {
	if gen != c.gen {
		return
	}
	if id := trace.TraceID(c.spanCtx); id != "" {
		log.Printf("[Conversation] session %s opened (trace_id=%s)", c.sessionID, id)
	} else {
		log.Printf("[Conversation] session %s opened", c.sessionID)
	}
	trace.AddEvent(c.span, trace.EventSessionOpen)
	c.opened = true
	c.maybeOpenDevices(gen)
}

// maybeOpenDevices opens the output and the microphone once the session has
// both been returned by the connector and reported open.
func (c *Conversation) maybeOpenDevices(gen uint64) {
	if !c.connected || !c.opened || c.devicesReq {
		return
	}
	c.devicesReq = true
	c.outbound = newOutboundQueue(c.session, c.cfg.OutboundQueueSize)
	go c.openDevices(gen, c.outbound)
}

func (c *Conversation) openDevices(gen uint64, out *outboundQueue) {
	output, err := c.opts.Output.Open(c.cfg.PlaybackSampleRate)
	if err != nil {
		err = newError(KindDevice, "open audio output", err)
		c.loop.post(func() { c.failStart(gen, err) })
		return
	}

	capture, err := startCapture(c.opts.Microphone, c.cfg.CaptureSampleRate, c.cfg.BlockSize, out.Send)
	if err != nil {
		output.Close()
		c.loop.post(func() { c.failStart(gen, err) })
		return
	}

	if !c.loop.post(func() { c.onDevicesReady(gen, output, capture) }) {
		capture.stop()
		output.Close()
	}
}

func (c *Conversation) onDevicesReady(gen uint64, output OutputContext, capture *capturePipeline) {
	if gen != c.gen {
		capture.stop()
		if err := output.Close(); err != nil {
			log.Printf("[Conversation] close stale output error: %v", err)
		}
		return
	}
	c.output = output
	c.capture = capture
	c.scheduler.Attach(output)
	trace.SetAttributes(c.span, trace.AudioAttrs(c.cfg.CaptureSampleRate, 1, c.cfg.BlockSize)...)
	c.setState(StateActive)
	c.resolve(nil)
}

func (c *Conversation) onMessage(gen uint64, evt *connection.ServerEvent) {
	if gen != c.gen {
		return
	}
	c.dispatcher.Dispatch(evt)
}

func (c *Conversation) onRemoteError(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.fail(classifyConnectionError("live session", err))
}

func (c *Conversation) onRemoteClose(gen uint64) {
	if gen != c.gen {
		return
	}
	log.Printf("[Conversation] session %s closed by server", c.sessionID)
	c.teardown(nil)
}

func (c *Conversation) failStart(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.fail(err)
}

// fail surfaces err and tears the session down. A rejected key asks the
// selector for a new one.
func (c *Conversation) fail(err error) {
	kind := KindOf(err)
	log.Printf("[Conversation] session %s error (%s): %v", c.sessionID, kind, err)
	if c.span != nil {
		trace.SessionError(c.span, kind.String(), err)
	}
	c.publish(pipeline.EventError, &pipeline.ErrorPayload{
		Kind:    kind.String(),
		Message: Message(err),
		Err:     err,
	})

	c.teardown(err)

	if kind == KindPermission {
		keys := c.opts.Keys
		go func() {
			if err := keys.OpenSelectKey(context.Background()); err != nil {
				log.Printf("[Conversation] key reselection failed: %v", err)
			}
		}()
	}
}

// teardown releases every resource of the current session. It is safe to
// call in any state. Bumping the generation discards every pending async
// result of the session.
func (c *Conversation) teardown(cause error) {
	c.gen++

	if c.capture != nil {
		c.capture.stop()
		c.capture = nil
	}
	if c.outbound != nil {
		c.outbound.Close()
		c.outbound = nil
	}
	// 先停掉所有播放，再关闭会话
	c.scheduler.Reset()
	c.scheduler.Detach()
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			log.Printf("[Conversation] close session error: %v", err)
		}
		c.session = nil
	}
	if c.output != nil {
		if err := c.output.Close(); err != nil {
			log.Printf("[Conversation] close output error: %v", err)
		}
		c.output = nil
	}

	c.caption.Clear()
	c.interrupt.Cancel()
	c.turns.reset()
	c.connected, c.opened, c.devicesReq = false, false, false

	if c.span != nil {
		trace.AddEvent(c.span, trace.EventSessionClosed)
		c.span.End()
		c.span = nil
	}

	if cause == nil {
		cause = ErrStartAborted
	}
	c.resolve(cause)

	if c.state != StateStopped {
		c.setState(StateIdle)
	}
}

// resolve completes a pending Start.
func (c *Conversation) resolve(err error) {
	if c.waiter == nil {
		return
	}
	c.waiter <- err
	c.waiter = nil
}

// Stop ends the session and releases all resources. It can be called at
// any time and any number of times.
func (c *Conversation) Stop() error {
	c.loop.call(func() { c.teardown(nil) })
	return nil
}

// Close stops the conversation for good. Start returns ErrClosed afterwards.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		c.loop.call(func() {
			c.teardown(nil)
			c.setState(StateStopped)
		})
		c.loop.close()
		if c.history != nil {
			c.history.close()
		}
	})
	return nil
}

// State returns the current state.
func (c *Conversation) State() State {
	s := State(c.stateMirror.Load())
	if s == StateActive && c.interruptedMirror.Load() {
		return StateInterrupted
	}
	return s
}

// Snapshot returns a consistent view of the conversation.
func (c *Conversation) Snapshot() Snapshot {
	var snap Snapshot
	ok := c.loop.call(func() {
		snap = Snapshot{
			State:          c.state,
			SessionID:      c.sessionID,
			Caption:        c.caption.Text(),
			NextStartTime:  c.scheduler.NextStartTime(),
			ActivePlayback: c.scheduler.ActiveCount(),
		}
		if snap.State == StateActive && c.interrupt.Active() {
			snap.State = StateInterrupted
		}
		if c.outbound != nil {
			snap.OutboundSent = c.outbound.sent.Load()
			snap.OutboundDropped = c.outbound.dropped.Load()
		}
	})
	if !ok {
		snap.State = StateStopped
	}
	return snap
}

// Caption returns the caption of the current model turn.
func (c *Conversation) Caption() string {
	return c.Snapshot().Caption
}

func (c *Conversation) setState(s State) {
	from := c.state
	if from == s {
		return
	}
	c.state = s
	c.stateMirror.Store(int32(s))
	log.Printf("[Conversation] state: %s -> %s", from, s)
	c.publish(pipeline.EventStateChanged, &pipeline.StatePayload{From: from.String(), To: s.String()})
}

func (c *Conversation) publish(t pipeline.EventType, payload interface{}) {
	if c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(pipeline.Event{
		Type:      t,
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Payload:   payload,
	})
}

func (c *Conversation) warn(err error) {
	log.Printf("[Conversation] warning: %v", err)
	c.publish(pipeline.EventWarning, &pipeline.ErrorPayload{
		Kind:    KindOf(err).String(),
		Message: Message(err),
		Err:     err,
	})
}

func (c *Conversation) onCaption(text string) {
	c.publish(pipeline.EventCaption, &pipeline.CaptionPayload{Text: text})
}

func (c *Conversation) onInterrupted(active bool) {
	c.interruptedMirror.Store(active)
	if active && c.span != nil {
		trace.AddEvent(c.span, trace.EventInterrupted)
	}
	c.publish(pipeline.EventInterrupted, &pipeline.InterruptPayload{Active: active})
}

func (c *Conversation) onTurn(user, model string) {
	if c.span != nil {
		trace.AddEvent(c.span, trace.EventTurnComplete, trace.TurnAttrs(user, model)...)
	}
	c.publish(pipeline.EventTurnComplete, &pipeline.TurnPayload{User: user, Model: model})
	if c.history != nil {
		c.history.append(transcript.Turn{
			SessionID: c.sessionID,
			User:      user,
			Model:     model,
			Time:      time.Now(),
		})
	}
}

// historyWriter appends turns to the store off the event loop, in order.
type historyWriter struct {
	store transcript.Store
	ch    chan transcript.Turn
	done  chan struct{}
}

func newHistoryWriter(store transcript.Store) *historyWriter {
	w := &historyWriter{
		store: store,
		ch:    make(chan transcript.Turn, 16),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *historyWriter) append(turn transcript.Turn) {
	select {
	case w.ch <- turn:
	default:
		log.Printf("[History] writer busy, turn dropped")
	}
}

func (w *historyWriter) run() {
	defer close(w.done)
	for turn := range w.ch {
		if err := w.store.Append(context.Background(), turn); err != nil {
			log.Printf("[History] append turn error: %v", err)
		}
	}
}

// close flushes pending turns.
func (w *historyWriter) close() {
	close(w.ch)
	<-w.done
}
