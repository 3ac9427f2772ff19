package pipeline

import "sync"

// Bus 事件总线：组件发布状态变化，界面层订阅
type Bus interface {
	Subscribe(eventType EventType, ch chan<- Event)
	Unsubscribe(eventType EventType, ch chan<- Event)
	// Publish 非阻塞地投递事件，订阅者的通道已满时丢弃，返回是否全部投递成功
	Publish(evt Event) bool
	// Close 之后 Publish 不再投递，返回 false
	Close()
}

// EventBus 是 Bus 的默认实现
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan<- Event
	closed      bool
}

var _ Bus = (*EventBus)(nil)

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan<- Event),
	}
}

func (b *EventBus) Subscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *EventBus) Unsubscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chans := b.subscribers[eventType]
	for i, c := range chans {
		if c == ch {
			b.subscribers[eventType] = append(chans[:i:i], chans[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Publish(evt Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	delivered := true
	for _, ch := range b.subscribers[evt.Type] {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	return delivered
}

// Close 可重复调用
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[EventType][]chan<- Event)
}
