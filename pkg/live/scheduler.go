package live

import (
	"log"

	"github.com/realtime-ai/livevoice/pkg/audio"
)

// scheduledPlayback is a decoded buffer bound to a playback node.
type scheduledPlayback struct {
	node     PlaybackNode
	start    float64
	duration float64
}

type decodeResult struct {
	buf *audio.Buffer
	err error
}

// Scheduler plays inbound fragments back to back against the output clock.
//
// Fragments are decoded off the event loop but scheduled strictly in arrival
// order: each one takes a sequence number on Enqueue, and decoded results
// wait in a reorder buffer until every earlier fragment has been committed.
// A generation counter invalidates in-flight decodes on Reset.
//
// All methods must be called on the event loop.
type Scheduler struct {
	out    OutputContext
	decode Decoder
	post   func(func()) bool
	spawn  func(func())

	// nextStartTime is the clock time of the next fragment; 0 means unset.
	nextStartTime float64
	active        map[*scheduledPlayback]struct{}

	gen       uint64
	nextSeq   uint64
	commitSeq uint64
	pending   map[uint64]decodeResult

	onWarning func(err error)
}

func newScheduler(decode Decoder, post func(func()) bool, onWarning func(error)) *Scheduler {
	if decode == nil {
		decode = audio.DecodePCM16
	}
	return &Scheduler{
		decode:    decode,
		post:      post,
		spawn:     func(fn func()) { go fn() },
		active:    make(map[*scheduledPlayback]struct{}),
		pending:   make(map[uint64]decodeResult),
		onWarning: onWarning,
	}
}

// Attach binds the scheduler to an output context.
func (s *Scheduler) Attach(out OutputContext) {
	s.out = out
}

// Detach unbinds the output context; later commits are discarded.
func (s *Scheduler) Detach() {
	s.out = nil
}

// Enqueue starts decoding one inbound fragment.
func (s *Scheduler) Enqueue(chunk AudioChunk) {
	gen, seq := s.gen, s.nextSeq
	s.nextSeq++

	decode, post := s.decode, s.post
	s.spawn(func() {
		buf, err := decode(chunk.Data, chunk.MIMEType)
		post(func() { s.commit(gen, seq, decodeResult{buf: buf, err: err}) })
	})
}

// commit records a decode result and schedules every fragment that is now
// next in arrival order.
func (s *Scheduler) commit(gen, seq uint64, res decodeResult) {
	if gen != s.gen {
		return
	}
	s.pending[seq] = res

	for {
		r, ok := s.pending[s.commitSeq]
		if !ok {
			return
		}
		delete(s.pending, s.commitSeq)
		s.commitSeq++

		if r.err != nil {
			if s.onWarning != nil {
				s.onWarning(newError(KindDecode, "decode audio fragment", r.err))
			}
			continue
		}
		s.schedule(r.buf)
	}
}

func (s *Scheduler) schedule(buf *audio.Buffer) {
	// 上下文已经销毁（会话结束），不再排播
	if s.out == nil {
		return
	}

	now := s.out.CurrentTime()
	if s.nextStartTime == 0 {
		s.nextStartTime = now
	}
	if s.nextStartTime < now {
		s.nextStartTime = now
	}

	p := &scheduledPlayback{start: s.nextStartTime, duration: buf.Duration()}
	s.active[p] = struct{}{}

	post := s.post
	node, err := s.out.Schedule(buf, p.start, func() {
		post(func() { s.ended(p) })
	})
	if err != nil {
		delete(s.active, p)
		log.Printf("[Scheduler] schedule buffer error: %v", err)
		if s.onWarning != nil {
			s.onWarning(newError(KindDecode, "schedule audio fragment", err))
		}
		return
	}
	p.node = node
	s.nextStartTime += p.duration
}

func (s *Scheduler) ended(p *scheduledPlayback) {
	delete(s.active, p)
}

// StopAll stops every active node, ignoring errors from nodes that have
// already finished, and clears the set.
func (s *Scheduler) StopAll() {
	for p := range s.active {
		if p.node != nil {
			_ = p.node.Stop()
		}
	}
	s.active = make(map[*scheduledPlayback]struct{})
}

// Reset stops all playback, unsets NextStartTime and discards in-flight
// decodes.
func (s *Scheduler) Reset() {
	s.StopAll()
	s.nextStartTime = 0
	s.gen++
	s.nextSeq = 0
	s.commitSeq = 0
	s.pending = make(map[uint64]decodeResult)
}

// NextStartTime returns the clock time for the next fragment, 0 when unset.
func (s *Scheduler) NextStartTime() float64 {
	return s.nextStartTime
}

// ActiveCount returns the number of scheduled or playing nodes.
func (s *Scheduler) ActiveCount() int {
	return len(s.active)
}
