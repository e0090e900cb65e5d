package mcpui_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/go-mcp-ui"
)

type testHost struct {
	t      *testing.T
	ch     *mcpui.PostMessage
	bridge *mcpui.Bridge
	doc    *mcpui.MemoryDocument

	cancel   context.CancelFunc
	serveErr chan error
}

type mockToolResultHandler struct {
	lock    sync.Mutex
	results []mcpui.CallToolResult
	calls   chan mcpui.CallToolResult
}

type mockToolInputHandler struct {
	calls chan map[string]any
}

type mockHostContextWatcher struct {
	calls chan mcpui.HostContext
}

type mockSessionRestorer struct {
	calls chan string
}

var testInfo = mcpui.Info{Name: "todo-ui", Version: "0.1.0"}

func newTestHost(t *testing.T, options ...mcpui.BridgeOption) *testHost {
	t.Helper()

	ch := mcpui.NewPostMessage(32)
	doc := mcpui.NewMemoryDocument()
	options = append([]mcpui.BridgeOption{mcpui.WithDocument(doc)}, options...)
	bridge := mcpui.NewBridge(testInfo, ch, options...)

	ctx, cancel := context.WithCancel(context.Background())
	h := &testHost{
		t:        t,
		ch:       ch,
		bridge:   bridge,
		doc:      doc,
		cancel:   cancel,
		serveErr: make(chan error, 1),
	}
	go func() {
		h.serveErr <- bridge.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.serveErr:
		case <-time.After(5 * time.Second):
			t.Errorf("bridge did not stop serving")
		}
	})

	return h
}

func (h *testHost) post(payload string) {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := h.ch.Post(ctx, json.RawMessage(payload)); err != nil {
		h.t.Fatalf("failed to post payload: %v", err)
	}
}

func (h *testHost) next() mcpui.JSONRPCMessage {
	h.t.Helper()

	select {
	case payload := <-h.ch.Received():
		var msg mcpui.JSONRPCMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.t.Fatalf("failed to unmarshal payload %s: %v", payload, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for message from bridge")
	}
	return mcpui.JSONRPCMessage{}
}

func (h *testHost) expectNoMessage() {
	h.t.Helper()

	select {
	case payload := <-h.ch.Received():
		h.t.Fatalf("unexpected message from bridge: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// initialize performs the handshake and consumes the reply and the initialized notification.
func (h *testHost) initialize(hostContext string) {
	h.t.Helper()

	params := `{"hostInfo":{"name":"test-host","version":"1.0.0"}}`
	if hostContext != "" {
		params = `{"hostInfo":{"name":"test-host","version":"1.0.0"},"hostContext":` + hostContext + `}`
	}
	h.post(`{"jsonrpc":"2.0","id":"init-1","method":"ui/initialize","params":` + params + `}`)

	res := h.next()
	if string(res.ID) != `"init-1"` {
		h.t.Fatalf("expected handshake reply with id \"init-1\", got %s", res.ID)
	}
	notif := h.next()
	if notif.Method != mcpui.MethodNotificationsInitialized {
		h.t.Fatalf("expected %s, got %q", mcpui.MethodNotificationsInitialized, notif.Method)
	}

	select {
	case <-h.bridge.Ready():
	case <-time.After(time.Second):
		h.t.Fatal("bridge not ready after handshake")
	}
}

// callTool runs CallTool on its own goroutine, since it blocks until the host answers.
func (h *testHost) callTool(name string, args map[string]any) <-chan callOutcome {
	outcomes := make(chan callOutcome, 1)
	go func() {
		res, err := h.bridge.CallTool(context.Background(), name, args)
		outcomes <- callOutcome{result: res, err: err}
	}()
	return outcomes
}

type callOutcome struct {
	result mcpui.CallToolResult
	err    error
}

func waitOutcome(t *testing.T, outcomes <-chan callOutcome) callOutcome {
	t.Helper()

	select {
	case out := <-outcomes:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for CallTool to return")
	}
	return callOutcome{}
}

func newMockToolResultHandler() *mockToolResultHandler {
	return &mockToolResultHandler{calls: make(chan mcpui.CallToolResult, 10)}
}

func (m *mockToolResultHandler) OnToolResult(result mcpui.CallToolResult) {
	m.lock.Lock()
	m.results = append(m.results, result)
	m.lock.Unlock()

	m.calls <- result
}

func (m *mockToolResultHandler) count() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.results)
}

func (m *mockToolResultHandler) wait(t *testing.T) mcpui.CallToolResult {
	t.Helper()

	select {
	case res := <-m.calls:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tool result callback")
	}
	return mcpui.CallToolResult{}
}

func (m mockToolInputHandler) OnToolInput(arguments map[string]any) {
	m.calls <- arguments
}

func (m mockHostContextWatcher) OnHostContextChanged(hostCtx mcpui.HostContext) {
	m.calls <- hostCtx
}

func (m mockSessionRestorer) OnSessionRestore(sessionID string) {
	m.calls <- sessionID
}

func asToolCallError(t *testing.T, err error) *mcpui.ToolCallError {
	t.Helper()

	var callErr *mcpui.ToolCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *ToolCallError, got %T: %v", err, err)
	}
	return callErr
}
