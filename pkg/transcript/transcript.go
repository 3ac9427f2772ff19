// Package transcript stores the history of completed conversation turns.
package transcript

import (
	"context"
	"errors"
	"time"
)

// Turn is one exchange: what the user said and what the model answered.
type Turn struct {
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	Model     string    `json:"model"`
	Time      time.Time `json:"time"`
}

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("transcript: store closed")

// Store keeps turns in the order they were appended.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	// List returns the most recent turns, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Turn, error)
	Clear(ctx context.Context) error
	Close() error
}

// tail returns the last limit turns of all.
func tail(all []Turn, limit int) []Turn {
	if limit > 0 && len(all) > limit {
		return all[len(all)-limit:]
	}
	return all
}
