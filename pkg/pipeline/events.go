package pipeline

import "time"

// EventType 事件类型
type EventType int

const (
	// EventStateChanged 会话状态变化，Payload 为 *StatePayload
	EventStateChanged EventType = iota
	// EventCaption 字幕变化，Payload 为 *CaptionPayload
	EventCaption
	// EventInterrupted 打断指示变化，Payload 为 *InterruptPayload
	EventInterrupted
	// EventTurnComplete 一轮对话结束，Payload 为 *TurnPayload
	EventTurnComplete
	// EventError 需要展示给用户的错误，Payload 为 *ErrorPayload
	EventError
	// EventWarning 非致命告警（例如单个音频片段解码失败），Payload 为 *ErrorPayload
	EventWarning
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventCaption:
		return "caption"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event 总线上传递的事件
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Payload   interface{}
}

// StatePayload 状态变化
type StatePayload struct {
	From string
	To   string
}

// CaptionPayload 当前字幕全文
type CaptionPayload struct {
	Text string
}

// InterruptPayload 打断指示；Active 为 false 表示指示结束
type InterruptPayload struct {
	Active bool
}

// TurnPayload 一轮完整对话
type TurnPayload struct {
	User  string
	Model string
}

// ErrorPayload 错误信息
type ErrorPayload struct {
	Kind    string
	Message string
	Err     error
}
