package mcpui

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
)

// PostMessage is an in-process channel between a host and a UI living in the same process, shaped
// like a window message channel: both sides post opaque JSON payloads and nothing acknowledges them.
//
// The UI side is the ClientTransport handed to NewBridge; the host side uses Post and Received.
type PostMessage struct {
	id       string
	toUI     chan json.RawMessage
	fromUI   chan json.RawMessage
	stopOnce sync.Once
	done     chan struct{}
}

type postMessageSession struct {
	ch *PostMessage
}

// NewPostMessage creates a PostMessage whose directions each buffer up to buffer payloads.
func NewPostMessage(buffer int) *PostMessage {
	return &PostMessage{
		id:     uuid.New().String(),
		toUI:   make(chan json.RawMessage, buffer),
		fromUI: make(chan json.RawMessage, buffer),
		done:   make(chan struct{}),
	}
}

// StartSession implements the ClientTransport interface.
func (p *PostMessage) StartSession(_ context.Context) (Session, error) {
	select {
	case <-p.done:
		return nil, fmt.Errorf("channel %s is closed", p.id)
	default:
	}
	return postMessageSession{ch: p}, nil
}

// Post delivers a payload from the host to the UI.
func (p *PostMessage) Post(ctx context.Context, payload json.RawMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return fmt.Errorf("channel %s is closed", p.id)
	case p.toUI <- payload:
		return nil
	}
}

// Received returns the payloads the UI posted to the host, in the order they were sent.
func (p *PostMessage) Received() <-chan json.RawMessage {
	return p.fromUI
}

// Close closes the channel for both sides.
func (p *PostMessage) Close() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (s postMessageSession) ID() string { return s.ch.id }

func (s postMessageSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ch.done:
		return fmt.Errorf("channel %s is closed", s.ch.id)
	case s.ch.fromUI <- msgBs:
		return nil
	}
}

func (s postMessageSession) Messages() iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		for {
			select {
			case <-s.ch.done:
				return
			case payload := <-s.ch.toUI:
				if !yield(payload) {
					return
				}
			}
		}
	}
}

func (s postMessageSession) Stop() {
	s.ch.Close()
}
