package mcpui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// BridgeOption is a function that configures a Bridge.
type BridgeOption func(*Bridge)

// Bridge implements the UI side of the MCP Apps protocol. It answers the host handshake, correlates
// the tool calls it sends with their responses, dispatches host notifications to the registered
// handlers and acknowledges the teardown request before the surface is destroyed.
//
// A Bridge must be created using NewBridge and driven by Serve. Tool calls are only accepted once
// the handshake completed; callers can wait for that on Ready.
type Bridge struct {
	info      Info
	transport ClientTransport
	logger    *slog.Logger

	requestTimeout  time.Duration
	writeTimeout    time.Duration
	teardownTimeout time.Duration

	toolInputHandler   ToolInputHandler
	toolResultHandler  ToolResultHandler
	hostContextWatcher HostContextWatcher
	sessionRestorer    SessionRestorer
	teardownHandler    TeardownHandler
	document           Document

	registerer prometheus.Registerer
	metrics    *metrics

	correlator *correlator
	dispatcher *dispatcher
	queue      *callbackQueue

	mu        sync.RWMutex
	state     SessionState
	session   Session
	sessionID string
	hostInfo  Info

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// ToolCallError is returned by CallTool when the host answered with an error or did not answer in
// time. Use errors.Is(err, ErrRequestTimeout) or errors.As with *JSONRPCError to tell them apart.
type ToolCallError struct {
	Name      string
	RequestID int64
	Err       error
}

type toolCallOutcome struct {
	result CallToolResult
	err    error
}

var (
	// ErrNotReady is returned by CallTool before the handshake completed and while tearing down.
	ErrNotReady = errors.New("bridge not ready")
	// ErrClosed is returned by CallTool once the host tore the surface down.
	ErrClosed = errors.New("bridge closed")

	defaultRequestTimeout  = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultTeardownTimeout = 10 * time.Second
)

// WithLogger sets the logger for the bridge.
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithRequestTimeout sets how long a tool call waits for its response before it fails with
// ErrRequestTimeout.
func WithRequestTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.requestTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for the bridge.
func WithWriteTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.writeTimeout = timeout
	}
}

// WithTeardownTimeout bounds the time given to the TeardownHandler. The teardown is acknowledged
// when it elapses, whether or not the handler returned.
func WithTeardownTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		b.teardownTimeout = timeout
	}
}

// WithToolInputHandler sets the tool input handler for the bridge.
func WithToolInputHandler(handler ToolInputHandler) BridgeOption {
	return func(b *Bridge) {
		b.toolInputHandler = handler
	}
}

// WithToolResultHandler sets the tool result handler for the bridge.
func WithToolResultHandler(handler ToolResultHandler) BridgeOption {
	return func(b *Bridge) {
		b.toolResultHandler = handler
	}
}

// WithHostContextWatcher sets the host context watcher for the bridge.
func WithHostContextWatcher(watcher HostContextWatcher) BridgeOption {
	return func(b *Bridge) {
		b.hostContextWatcher = watcher
	}
}

// WithSessionRestorer sets the session restorer for the bridge.
func WithSessionRestorer(restorer SessionRestorer) BridgeOption {
	return func(b *Bridge) {
		b.sessionRestorer = restorer
	}
}

// WithTeardownHandler sets the cleanup hook run when the host tears the surface down.
func WithTeardownHandler(handler TeardownHandler) BridgeOption {
	return func(b *Bridge) {
		b.teardownHandler = handler
	}
}

// WithDocument sets the sink for theme and style variable side effects.
func WithDocument(doc Document) BridgeOption {
	return func(b *Bridge) {
		b.document = doc
	}
}

// WithMetrics registers the bridge collectors on reg.
func WithMetrics(reg prometheus.Registerer) BridgeOption {
	return func(b *Bridge) {
		b.registerer = reg
	}
}

// NewBridge creates a Bridge that identifies itself to the host with info and talks to it through
// transport. Handlers, timeouts and the document sink are configured through BridgeOption functions.
//
// The bridge does nothing until Serve is called.
func NewBridge(info Info, transport ClientTransport, options ...BridgeOption) *Bridge {
	b := &Bridge{
		info:      info,
		transport: transport,
		logger:    slog.Default(),
		sessionID: uuid.New().String(),
		queue:     newCallbackQueue(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(b)
	}

	if b.requestTimeout == 0 {
		b.requestTimeout = defaultRequestTimeout
	}
	if b.writeTimeout == 0 {
		b.writeTimeout = defaultWriteTimeout
	}
	if b.teardownTimeout == 0 {
		b.teardownTimeout = defaultTeardownTimeout
	}
	if b.registerer != nil {
		b.metrics = newMetrics(b.registerer)
	}

	b.correlator = newCorrelator(b.requestTimeout)
	b.correlator.onExpire = func(id int64) {
		b.logger.Warn("request timed out", slog.Int64("id", id), slog.Duration("timeout", b.requestTimeout))
	}
	b.dispatcher = &dispatcher{
		logger:             b.logger,
		document:           b.document,
		queue:              b.queue,
		toolInputHandler:   b.toolInputHandler,
		toolResultHandler:  b.toolResultHandler,
		hostContextWatcher: b.hostContextWatcher,
		sessionRestorer:    b.sessionRestorer,
		onRestore:          b.restoreSession,
		metrics:            b.metrics,
	}
	b.metrics.setState(StateUninitialized)

	return b
}

// Serve starts the transport session and processes host messages in delivery order until the
// session ends, the context is canceled, or the host tore the surface down.
//
// Serve must be called once. Domain callbacks still queued when it returns run before it returns.
func (b *Bridge) Serve(ctx context.Context) error {
	sess, err := b.transport.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	b.mu.Lock()
	if b.session != nil {
		b.mu.Unlock()
		sess.Stop()
		return errors.New("bridge already serving")
	}
	b.session = sess
	b.mu.Unlock()

	go b.queue.run()

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(sess.Stop) }
	watchDone := make(chan struct{})
	defer func() {
		close(watchDone)
		stop()
		b.queue.close()
	}()

	// Messages only returns once the session stops, so cancellation and teardown stop it.
	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		case <-watchDone:
			return
		}
		stop()
	}()

	for payload := range sess.Messages() {
		if ctx.Err() != nil {
			break
		}
		b.handlePayload(ctx, payload)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// CallTool invokes a tool on the host and waits for its result. On success the result is also
// handed to the ToolResultHandler, exactly as if the host had broadcast it.
//
// Calls fail fast with ErrNotReady before the handshake completed. A host error or a timeout is
// returned as a *ToolCallError. Canceling ctx returns early but does not release the pending
// request, which still ends with its response or its timeout.
func (b *Bridge) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	switch state := b.State(); state {
	case StateReady:
	case StateClosed:
		return CallToolResult{}, ErrClosed
	default:
		return CallToolResult{}, fmt.Errorf("%w: state %s", ErrNotReady, state)
	}

	if arguments == nil {
		arguments = map[string]any{}
	}
	paramsBs, err := json.Marshal(CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return CallToolResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}

	id := b.correlator.allocateID()
	outcomes := make(chan toolCallOutcome, 1)
	started := time.Now()

	b.correlator.register(id,
		func(raw json.RawMessage) {
			b.metrics.observeCall(name, time.Since(started).Seconds())

			var result CallToolResult
			if err := json.Unmarshal(raw, &result); err != nil {
				b.metrics.requestDone(MethodToolsCall, "invalid_result")
				outcomes <- toolCallOutcome{err: &ToolCallError{
					Name:      name,
					RequestID: id,
					Err:       fmt.Errorf("failed to unmarshal result: %w", err),
				}}
				return
			}
			b.metrics.requestDone(MethodToolsCall, "success")
			b.dispatcher.deliverToolResult(result)
			outcomes <- toolCallOutcome{result: result}
		},
		func(err error) {
			b.metrics.observeCall(name, time.Since(started).Seconds())
			b.metrics.requestDone(MethodToolsCall, outcomeLabel(err))
			outcomes <- toolCallOutcome{err: &ToolCallError{Name: name, RequestID: id, Err: err}}
		},
	)
	b.metrics.requestSent(MethodToolsCall)

	err = b.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      requestID(id),
		Method:  MethodToolsCall,
		Params:  paramsBs,
	})
	if err != nil {
		b.correlator.fail(id, fmt.Errorf("failed to send request: %w", err))
	}

	select {
	case out := <-outcomes:
		return out.result, out.err
	case <-ctx.Done():
		return CallToolResult{}, ctx.Err()
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() SessionState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state
}

// Ready returns a channel that is closed once the handshake completed, or once the bridge closed
// without one. Check State after it fires to tell the two apart.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Done returns a channel that is closed once the teardown was acknowledged.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// SessionID returns the id of the UI session: the one restored by the host, or a fresh one.
func (b *Bridge) SessionID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.sessionID
}

// HostInfo returns the host's info, as announced in the handshake.
func (b *Bridge) HostInfo() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.hostInfo
}

// PendingRequests returns the number of requests awaiting a response or their timeout.
func (b *Bridge) PendingRequests() int {
	return b.correlator.pendingCount()
}

func (b *Bridge) handlePayload(ctx context.Context, payload json.RawMessage) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		b.logger.Debug("dropping malformed envelope", "err", err)
		b.metrics.dropped("malformed")
		return
	}

	switch env.Kind {
	case EnvelopeResponse:
		b.handleResponse(env)
	case EnvelopeRequest:
		b.handleRequest(ctx, env)
	case EnvelopeNotification:
		state := b.State()
		if !state.acceptsNotifications() {
			b.logger.Debug("dropping notification", slog.String("method", env.Method), slog.String("state", state.String()))
			b.metrics.dropped("not_ready")
			return
		}
		b.dispatcher.dispatch(env)
	}
}

func (b *Bridge) handleResponse(env Envelope) {
	id, ok := env.CorrelationID()
	if ok && b.correlator.settle(id, env) {
		return
	}
	b.logger.Debug("dropping unmatched response", slog.String("id", string(env.ID)))
	b.metrics.dropped("unmatched")
}

func (b *Bridge) handleRequest(ctx context.Context, env Envelope) {
	state := b.State()
	if state == StateClosed {
		b.logger.Debug("dropping request after close", slog.String("method", env.Method))
		b.metrics.dropped("closed")
		return
	}

	switch env.Method {
	case MethodInitialize:
		b.handleInitialize(ctx, env)
	case MethodResourceTeardown:
		b.handleTeardown(ctx, env)
	case methodPing:
		if err := b.sendResult(ctx, env.ID, struct{}{}); err != nil {
			b.logger.Error("failed to handle ping", "err", err)
		}
	default:
		b.logger.Info("ignoring unrecognized request", slog.String("method", env.Method))
		b.metrics.dropped("unknown_method")
		if err := b.sendError(ctx, env.ID, JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: errMsgMethodNotFound,
			Data:    map[string]any{"method": env.Method},
		}); err != nil {
			b.logger.Error("failed to send error", "err", err)
		}
	}
}

func (b *Bridge) handleInitialize(ctx context.Context, env Envelope) {
	b.mu.Lock()
	if b.state != StateUninitialized {
		state := b.state
		b.mu.Unlock()
		b.logger.Warn("ignoring repeated handshake", slog.String("state", state.String()))
		if err := b.sendError(ctx, env.ID, JSONRPCError{
			Code:    jsonRPCInvalidRequestCode,
			Message: errMsgAlreadyInitialized,
		}); err != nil {
			b.logger.Error("failed to send error", "err", err)
		}
		return
	}
	b.setStateLocked(StateInitializing)
	b.mu.Unlock()

	var params initializeParams
	if err := unmarshalParams(env.Params, &params); err != nil {
		b.setState(StateUninitialized)
		if sErr := b.sendError(ctx, env.ID, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: errMsgInvalidParams,
			Data:    map[string]any{"error": err.Error()},
		}); sErr != nil {
			b.logger.Error("failed to send error", "err", sErr)
		}
		return
	}

	if params.HostInfo != nil {
		b.mu.Lock()
		b.hostInfo = *params.HostInfo
		b.mu.Unlock()
	}
	if params.HostContext != nil {
		b.dispatcher.applyHostContext(*params.HostContext)
	}

	err := b.sendResult(ctx, env.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      b.info,
	})
	if err != nil {
		b.logger.Error("failed to answer handshake", "err", err)
		b.setState(StateUninitialized)
		return
	}

	if err := b.sendNotification(ctx, MethodNotificationsInitialized, nil); err != nil {
		b.logger.Error("failed to send initialized notification", "err", err)
	}

	b.setState(StateReady)
	b.closeReady()
	b.logger.Info("handshake completed", slog.String("sessionID", b.SessionID()))
}

func (b *Bridge) handleTeardown(ctx context.Context, env Envelope) {
	b.mu.Lock()
	if b.state == StateTearingDown {
		b.mu.Unlock()
		b.logger.Warn("acknowledging repeated teardown request")
		if err := b.sendResult(ctx, env.ID, struct{}{}); err != nil {
			b.logger.Error("failed to acknowledge teardown", "err", err)
		}
		return
	}
	b.setStateLocked(StateTearingDown)
	b.mu.Unlock()

	// The cleanup may take a while; the inbound loop keeps settling responses meanwhile.
	go b.teardown(ctx, env.ID)
}

func (b *Bridge) teardown(ctx context.Context, id json.RawMessage) {
	if b.teardownHandler != nil {
		if err := b.runTeardownHandler(ctx); err != nil {
			b.logger.Error("teardown cleanup failed", "err", err)
		}
	}

	if err := b.sendResult(ctx, id, struct{}{}); err != nil {
		b.logger.Error("failed to acknowledge teardown", "err", err)
	}

	b.setState(StateClosed)
	b.closeReady()
	close(b.done)
	b.logger.Info("surface torn down", slog.String("sessionID", b.SessionID()))
}

func (b *Bridge) runTeardownHandler(ctx context.Context) error {
	tCtx, cancel := context.WithTimeout(ctx, b.teardownTimeout)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errs <- fmt.Errorf("teardown handler panicked: %v", r)
			}
		}()
		errs <- b.teardownHandler.OnTeardown(tCtx)
	}()

	select {
	case err := <-errs:
		return err
	case <-tCtx.Done():
		return fmt.Errorf("teardown handler did not return: %w", tCtx.Err())
	}
}

func (b *Bridge) restoreSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessionID = sessionID
}

// closeReady releases Ready waiters, either after the handshake or when the bridge closes without
// one.
func (b *Bridge) closeReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bridge) setState(state SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setStateLocked(state)
}

func (b *Bridge) setStateLocked(state SessionState) {
	b.logger.Debug("state transition", slog.String("from", b.state.String()), slog.String("to", state.String()))
	b.state = state
	b.metrics.setState(state)
}

func (b *Bridge) sendNotification(ctx context.Context, method string, params any) error {
	var paramsBs json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsBs = bs
	}

	if err := b.send(ctx, b.currentSession(), JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsBs,
	}); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

func (b *Bridge) sendResult(ctx context.Context, id json.RawMessage, result any) error {
	resBs, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := b.send(ctx, b.currentSession(), JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resBs,
	}); err != nil {
		return fmt.Errorf("failed to send result: %w", err)
	}

	return nil
}

func (b *Bridge) sendError(ctx context.Context, id json.RawMessage, rpcErr JSONRPCError) error {
	if err := b.send(ctx, b.currentSession(), JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &rpcErr,
	}); err != nil {
		return fmt.Errorf("failed to send error: %w", err)
	}

	return nil
}

// sendRequest sends msg only while the bridge is Ready. The state lock is held for the whole send,
// so teardown cannot close the bridge between the check and the write.
func (b *Bridge) sendRequest(ctx context.Context, msg JSONRPCMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch b.state {
	case StateReady:
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, b.state)
	}

	return b.send(ctx, b.session, msg)
}

func (b *Bridge) send(ctx context.Context, sess Session, msg JSONRPCMessage) error {
	if sess == nil {
		return errors.New("no active session")
	}

	sCtx, sCancel := context.WithTimeout(ctx, b.writeTimeout)
	defer sCancel()

	return sess.Send(sCtx, msg)
}

func (b *Bridge) currentSession() Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.session
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call %s (id %d) failed: %v", e.Name, e.RequestID, e.Err)
}

func (e *ToolCallError) Unwrap() error {
	return e.Err
}

func outcomeLabel(err error) string {
	var rpcErr *JSONRPCError
	switch {
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.As(err, &rpcErr):
		return "host_error"
	default:
		return "send_failed"
	}
}
