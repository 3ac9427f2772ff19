package live

import (
	"time"
)

// CaptionAggregator accumulates the transcript of the model's current turn.
// A turn-complete arms a clear timer; a new fragment cancels it. All methods
// run on the event loop.
type CaptionAggregator struct {
	text  string
	delay time.Duration

	after AfterFunc
	post  func(func()) bool
	timer Timer
	token uint64

	onChange func(text string)
}

func newCaptionAggregator(delay time.Duration, after AfterFunc, post func(func()) bool, onChange func(string)) *CaptionAggregator {
	if after == nil {
		after = defaultAfterFunc
	}
	return &CaptionAggregator{
		delay:    delay,
		after:    after,
		post:     post,
		onChange: onChange,
	}
}

// Append adds a fragment in arrival order. The turn is continuing, so any
// pending clear is cancelled.
func (c *CaptionAggregator) Append(fragment string) {
	if fragment == "" {
		return
	}
	c.Cancel()
	c.text += fragment
	c.changed()
}

// TurnComplete (re)starts the clear timer.
func (c *CaptionAggregator) TurnComplete() {
	c.Cancel()

	token := c.token
	post := c.post
	c.timer = c.after(c.delay, func() {
		post(func() { c.fire(token) })
	})
}

func (c *CaptionAggregator) fire(token uint64) {
	// 过期的定时器（已被取消或重置）
	if token != c.token {
		return
	}
	c.timer = nil
	c.Clear()
}

// Clear empties the caption immediately and cancels the timer.
func (c *CaptionAggregator) Clear() {
	c.Cancel()
	if c.text == "" {
		return
	}
	c.text = ""
	c.changed()
}

// Cancel stops a pending clear.
func (c *CaptionAggregator) Cancel() {
	c.token++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Text returns the current caption.
func (c *CaptionAggregator) Text() string {
	return c.text
}

// Pending reports whether a clear is armed.
func (c *CaptionAggregator) Pending() bool {
	return c.timer != nil
}

func (c *CaptionAggregator) changed() {
	if c.onChange != nil {
		c.onChange(c.text)
	}
}
