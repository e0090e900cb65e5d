package mcpui

import (
	"context"
	"encoding/json"
	"iter"
)

// ClientTransport provides the UI-side communication layer with the host.
type ClientTransport interface {
	// StartSession opens the channel to the host and returns the Session that carries it. Operations are
	// canceled when the context is canceled, and appropriate errors are returned for connection failures.
	StartSession(ctx context.Context) (Session, error)
}

// Session is the raw cross-context channel between the UI and its host.
//
// Sends are fire-and-forget: a nil error only means the payload was handed to the channel. Each
// inbound payload carries exactly one JSON value, and the implementation must not interpret it
// beyond framing, since DecodeEnvelope is the only place payloads are validated.
type Session interface {
	// ID returns the identifier of this channel.
	ID() string

	// Send transmits a message to the host.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields payloads received from the host, in delivery order.
	// The implementations should exit the iteration if the session is stopped.
	Messages() iter.Seq[json.RawMessage]

	// Stop stops the session. The caller is guaranteed to call this method once.
	Stop()
}

// ToolInputHandler receives the arguments of a tool the agent is calling, before its result exists.
// The arguments are forwarded without validation.
type ToolInputHandler interface {
	OnToolInput(arguments map[string]any)
}

// ToolResultHandler receives tool results, both the ones broadcast by the host and the replies to
// Bridge.CallTool, so result handling does not depend on who initiated the call.
//
// Results are delivered at least once: the same notification received twice is handed over twice.
type ToolResultHandler interface {
	OnToolResult(result CallToolResult)
}

// HostContextWatcher is notified after a HostContext has been applied, in the handshake and on every
// host-context-changed notification.
type HostContextWatcher interface {
	OnHostContextChanged(hostCtx HostContext)
}

// SessionRestorer is notified when the host asks the UI to restore a previous session.
type SessionRestorer interface {
	OnSessionRestore(sessionID string)
}

// TeardownHandler runs cleanup before the host destroys the surface. Its outcome never prevents the
// teardown from being acknowledged.
type TeardownHandler interface {
	OnTeardown(ctx context.Context) error
}

// Document is the sink for host-context side effects. In a browser it would be the document element;
// MemoryDocument keeps them in memory.
type Document interface {
	SetAttribute(name, value string)
	SetStyleProperty(name, value string)
}

// TeardownFunc adapts an ordinary function to the TeardownHandler interface.
type TeardownFunc func(ctx context.Context) error

// ToolResultFunc adapts an ordinary function to the ToolResultHandler interface.
type ToolResultFunc func(result CallToolResult)

// ToolInputFunc adapts an ordinary function to the ToolInputHandler interface.
type ToolInputFunc func(arguments map[string]any)

// OnTeardown calls f(ctx).
func (f TeardownFunc) OnTeardown(ctx context.Context) error { return f(ctx) }

// OnToolResult calls f(result).
func (f ToolResultFunc) OnToolResult(result CallToolResult) { f(result) }

// OnToolInput calls f(arguments).
func (f ToolInputFunc) OnToolInput(arguments map[string]any) { f(arguments) }
