package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/realtime-ai/livevoice/pkg/audio"
	"github.com/realtime-ai/livevoice/pkg/live"
)

var (
	// ErrMixerClosed is returned when scheduling on a closed mixer.
	ErrMixerClosed = errors.New("mixer closed")
	// ErrNodeEnded is returned when stopping a node that already ended.
	ErrNodeEnded = errors.New("playback node already ended")
)

// Mixer is a sample-accurate timeline of scheduled mono buffers. Its clock
// is the number of frames rendered divided by the sample rate, so it only
// advances while the device pulls audio.
//
// It is safe to call methods on Mixer from multiple goroutines.
type Mixer struct {
	sampleRate int

	mu       sync.Mutex
	rendered int64
	head     *node
	closed   bool
}

var _ live.OutputContext = (*Mixer)(nil)

// NewMixer creates an empty timeline at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

// CurrentTime returns the clock in seconds.
func (mx *Mixer) CurrentTime() float64 {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	return float64(mx.rendered) / float64(mx.sampleRate)
}

// Schedule plays buf from when. A start in the past plays from the next
// rendered frame.
func (mx *Mixer) Schedule(buf *audio.Buffer, when float64, onEnded func()) (live.PlaybackNode, error) {
	if buf == nil {
		return nil, fmt.Errorf("nil buffer")
	}
	if buf.SampleRate != mx.sampleRate {
		return nil, fmt.Errorf("buffer rate %d does not match output rate %d", buf.SampleRate, mx.sampleRate)
	}
	if buf.Channels != audio.Channels {
		return nil, fmt.Errorf("unsupported channel count %d", buf.Channels)
	}

	mx.mu.Lock()
	defer mx.mu.Unlock()
	if mx.closed {
		return nil, ErrMixerClosed
	}

	start := int64(math.Round(when * float64(mx.sampleRate)))
	if start < mx.rendered {
		start = mx.rendered
	}
	n := &node{
		mx:      mx,
		samples: buf.Samples,
		start:   start,
		onEnded: onEnded,
		next:    mx.head,
	}
	mx.head = n
	return n, nil
}

// Render mixes the next len(out) frames into out and advances the clock.
func (mx *Mixer) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	var ended []*node

	mx.mu.Lock()
	from := mx.rendered
	to := from + int64(len(out))

	var prev *node
	for n := mx.head; n != nil; n = n.next {
		end := n.start + int64(len(n.samples))
		if n.start < to && end > from {
			lo := max(n.start, from)
			hi := min(end, to)
			src := n.samples[lo-n.start : hi-n.start]
			dst := out[lo-from : hi-from]
			for i, s := range src {
				dst[i] += s
			}
		}
		if end <= to {
			// 播放完毕，从链表移除
			n.done = true
			ended = append(ended, n)
			if prev == nil {
				mx.head = n.next
			} else {
				prev.next = n.next
			}
			continue
		}
		prev = n
	}
	mx.rendered = to
	mx.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	for _, n := range ended {
		n.ended()
	}
}

// Active returns the number of scheduled or playing nodes.
func (mx *Mixer) Active() int {
	mx.mu.Lock()
	defer mx.mu.Unlock()
	count := 0
	for n := mx.head; n != nil; n = n.next {
		count++
	}
	return count
}

// Close stops every node. Scheduling afterwards fails.
func (mx *Mixer) Close() error {
	mx.mu.Lock()
	if mx.closed {
		mx.mu.Unlock()
		return nil
	}
	mx.closed = true
	var stopped []*node
	for n := mx.head; n != nil; n = n.next {
		n.done = true
		stopped = append(stopped, n)
	}
	mx.head = nil
	mx.mu.Unlock()

	for _, n := range stopped {
		n.ended()
	}
	return nil
}

// remove unlinks n; the caller holds mx.mu.
func (mx *Mixer) remove(target *node) {
	var prev *node
	for n := mx.head; n != nil; n = n.next {
		if n == target {
			if prev == nil {
				mx.head = n.next
			} else {
				prev.next = n.next
			}
			return
		}
		prev = n
	}
}

type node struct {
	mx      *Mixer
	samples []float32
	start   int64
	onEnded func()
	done    bool
	next    *node
}

// Stop removes the node from the timeline.
func (n *node) Stop() error {
	n.mx.mu.Lock()
	if n.done {
		n.mx.mu.Unlock()
		return ErrNodeEnded
	}
	n.done = true
	n.mx.remove(n)
	n.mx.mu.Unlock()

	n.ended()
	return nil
}

func (n *node) ended() {
	if n.onEnded != nil {
		n.onEnded()
	}
}
