// internal/uplink/sink.go
package uplink

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Message is one aggregated payload ready to leave the node.
type Message struct {
	ID      uint8
	At      time.Time
	Payload []byte
}

// Sink delivers messages somewhere. Implementations must be safe to call from one goroutine at a time.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Fanout delivers to every sink; one failing sink does not stop the others.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errs []string
	for _, s := range f {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New("uplink: " + strings.Join(errs, " | "))
	}
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
