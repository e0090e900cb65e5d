package mcpui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// dispatcher routes host notifications. Document side effects are applied on the caller's goroutine,
// in delivery order; domain callbacks are handed to a callbackQueue so they may call Bridge.CallTool
// without stalling the inbound loop.
type dispatcher struct {
	logger   *slog.Logger
	document Document
	queue    *callbackQueue

	toolInputHandler   ToolInputHandler
	toolResultHandler  ToolResultHandler
	hostContextWatcher HostContextWatcher
	sessionRestorer    SessionRestorer

	// onRestore lets the Bridge record the restored session id before domain callbacks see it.
	onRestore func(sessionID string)
	metrics   *metrics
}

// callbackQueue runs functions one at a time, in the order they were pushed, on a single goroutine.
// It is unbounded so a callback can push more work (CallTool does) without deadlocking itself.
type callbackQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func (d *dispatcher) dispatch(env Envelope) {
	switch env.Method {
	case MethodNotificationsToolInput:
		var params toolInputParams
		if err := unmarshalParams(env.Params, &params); err != nil {
			d.logger.Warn("failed to unmarshal tool-input params", "err", err)
			return
		}
		if d.toolInputHandler == nil {
			return
		}
		args := params.Arguments
		d.queue.push(func() { d.toolInputHandler.OnToolInput(args) })
	case MethodNotificationsToolResult:
		var result CallToolResult
		if err := unmarshalParams(env.Params, &result); err != nil {
			d.logger.Warn("failed to unmarshal tool-result params", "err", err)
			return
		}
		d.deliverToolResult(result)
	case MethodNotificationsHostContextChanged:
		var hostCtx HostContext
		if err := unmarshalParams(env.Params, &hostCtx); err != nil {
			d.logger.Warn("failed to unmarshal host context", "err", err)
			return
		}
		d.applyHostContext(hostCtx)
	default:
		d.logger.Info("ignoring unrecognized notification", slog.String("method", env.Method))
		d.metrics.dropped("unknown_method")
	}
}

// deliverToolResult hands a result to the ToolResultHandler. There is no deduplication.
func (d *dispatcher) deliverToolResult(result CallToolResult) {
	if d.toolResultHandler == nil {
		return
	}
	d.queue.push(func() { d.toolResultHandler.OnToolResult(result) })
}

// applyHostContext writes the theme and style variables to the document and reports a restored
// session, if any. A context without a theme leaves the current theme untouched.
func (d *dispatcher) applyHostContext(hostCtx HostContext) {
	if hostCtx.Theme != "" {
		hostCtx.Theme = NormalizeTheme(hostCtx.Theme)
	}

	if d.document != nil {
		if hostCtx.Theme != "" {
			d.document.SetAttribute(ThemeAttribute, string(hostCtx.Theme))
		}

		for _, name := range slices.Sorted(maps.Keys(hostCtx.StyleVariables)) {
			value := hostCtx.StyleVariables[name]
			if falsy(value) {
				continue
			}
			d.document.SetStyleProperty(name, styleValue(value))
		}
	}

	if hostCtx.AppState != nil && hostCtx.AppState.SessionID != "" {
		sessionID := hostCtx.AppState.SessionID
		if d.onRestore != nil {
			d.onRestore(sessionID)
		}
		if d.sessionRestorer != nil {
			d.queue.push(func() { d.sessionRestorer.OnSessionRestore(sessionID) })
		}
	}

	if d.hostContextWatcher != nil {
		d.queue.push(func() { d.hostContextWatcher.OnHostContextChanged(hostCtx) })
	}
}

func newCallbackQueue() *callbackQueue {
	return &callbackQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push schedules fn. Functions pushed after close are dropped.
func (q *callbackQueue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run executes queued functions until the queue is closed and drained.
func (q *callbackQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		fn()
	}
}

// close stops accepting functions and waits until the ones already queued have run.
func (q *callbackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 || isNull(params) {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// falsy reports whether a style value is empty: nil, "", false or 0.
func falsy(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	default:
		return false
	}
}

func styleValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
