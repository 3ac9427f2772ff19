package live

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/realtime-ai/livevoice/pkg/connection"
)

// AudioChunk is one outbound block: base64 PCM16 plus its MIME type.
type AudioChunk = connection.Blob

// outboundQueue streams chunks to the session in capture order. Enqueueing
// never blocks: chunks are dropped when the queue is full or closed.
type outboundQueue struct {
	session connection.Session

	mu     sync.Mutex
	ch     chan AudioChunk
	closed bool

	sent    atomic.Int64
	dropped atomic.Int64
}

func newOutboundQueue(session connection.Session, size int) *outboundQueue {
	if size <= 0 {
		size = 1
	}
	q := &outboundQueue{
		session: session,
		ch:      make(chan AudioChunk, size),
	}
	go q.pump()
	return q
}

// Send enqueues chunk and reports whether it was accepted.
func (q *outboundQueue) Send(chunk AudioChunk) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- chunk:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Close discards queued chunks and stops the pump after its current send.
func (q *outboundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	// 清空通道中尚未发送的数据
	for {
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
			close(q.ch)
			return
		}
	}
}

func (q *outboundQueue) pump() {
	for chunk := range q.ch {
		if err := q.session.SendRealtimeInput(chunk); err != nil {
			// best effort: a failed chunk is not resent
			log.Printf("[Outbound] send realtime input error: %v", err)
			continue
		}
		q.sent.Add(1)
	}
}
