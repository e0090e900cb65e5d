// Package mcpui implements the UI side of the MCP Apps bridge, the protocol a sandboxed UI surface
// uses to talk to the host that embeds it over a single untyped message channel.
//
// A Bridge answers the host handshake (ui/initialize), correlates the tool calls it sends with
// their responses, routes host notifications (tool input, tool results, host context changes) to
// the registered handlers, and acknowledges the teardown request (ui/resource-teardown) before the
// host destroys the surface:
//
//	doc := mcpui.NewMemoryDocument()
//	bridge := mcpui.NewBridge(mcpui.Info{Name: "todo-ui", Version: "1.0.0"},
//		mcpui.NewStdIO(os.Stdin, os.Stdout),
//		mcpui.WithDocument(doc),
//		mcpui.WithToolResultHandler(model),
//	)
//	go bridge.Serve(ctx)
//	<-bridge.Ready()
//	result, err := bridge.CallTool(ctx, "todo_list", nil)
//
// Tool calls are only accepted after the handshake; earlier calls fail with ErrNotReady. A call
// that gets no response within the request timeout fails with a *ToolCallError wrapping
// ErrRequestTimeout, even if the transport never delivers anything.
//
// Ready also fires when the host tears the surface down before the handshake, so check State
// after it. Done fires once the teardown was acknowledged, after which calls fail with ErrClosed.
package mcpui
