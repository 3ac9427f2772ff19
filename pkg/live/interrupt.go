package live

import (
	"log"
	"time"
)

// DefaultInterruptedIndicator is how long the interrupted indicator stays on.
const DefaultInterruptedIndicator = 500 * time.Millisecond

// InterruptHandler implements barge-in: when the server reports the user
// talked over the reply, playback stops at once and the schedule restarts
// from "now". All methods run on the event loop.
type InterruptHandler struct {
	scheduler *Scheduler
	caption   *CaptionAggregator

	delay time.Duration
	after AfterFunc
	post  func(func()) bool

	active bool
	timer  Timer
	token  uint64

	onIndicator func(active bool)
}

func newInterruptHandler(s *Scheduler, c *CaptionAggregator, delay time.Duration, after AfterFunc, post func(func()) bool, onIndicator func(bool)) *InterruptHandler {
	if after == nil {
		after = defaultAfterFunc
	}
	if delay <= 0 {
		delay = DefaultInterruptedIndicator
	}
	return &InterruptHandler{
		scheduler:   s,
		caption:     c,
		delay:       delay,
		after:       after,
		post:        post,
		onIndicator: onIndicator,
	}
}

// Handle stops all playback, unsets NextStartTime, clears the caption and
// raises the indicator.
func (h *InterruptHandler) Handle() {
	stopped := h.scheduler.ActiveCount()
	h.scheduler.Reset()
	h.caption.Clear()

	log.Printf("[Interrupt] barge-in: stopped %d playback nodes", stopped)

	h.stopTimer()
	token := h.token
	post := h.post
	h.timer = h.after(h.delay, func() {
		post(func() { h.expire(token) })
	})
	if !h.active {
		h.active = true
		h.notify()
	}
}

func (h *InterruptHandler) expire(token uint64) {
	if token != h.token {
		return
	}
	h.timer = nil
	h.Cancel()
}

// Cancel lowers the indicator and stops its timer.
func (h *InterruptHandler) Cancel() {
	h.stopTimer()
	if h.active {
		h.active = false
		h.notify()
	}
}

// Active reports whether the interrupted indicator is on.
func (h *InterruptHandler) Active() bool {
	return h.active
}

func (h *InterruptHandler) stopTimer() {
	h.token++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *InterruptHandler) notify() {
	if h.onIndicator != nil {
		h.onIndicator(h.active)
	}
}
