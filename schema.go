package mcpui

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONRPCMessage represents a JSON-RPC 2.0 message used for communication between the UI and the host.
// Depending on which fields are set it is a request, a response or a notification. Incoming payloads
// are classified by DecodeEnvelope; outgoing messages are built by the Bridge.
type JSONRPCMessage struct {
	// JSONRPC must always be "2.0" per the JSON-RPC specification
	JSONRPC string `json:"jsonrpc"`
	// ID uniquely identifies request-response pairs. It is kept as raw JSON so the id of a host
	// request is echoed back byte for byte, whether the host used a string or a number.
	ID json.RawMessage `json:"id,omitempty"`
	// Method contains the name of the method to be invoked (for requests and notifications)
	Method string `json:"method,omitempty"`
	// Params contains the parameters to be used during method invocation
	Params json.RawMessage `json:"params,omitempty"`
	// Result contains the result of a successful method invocation (response only)
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details if method invocation failed (response only)
	Error *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents an error response in the JSON-RPC 2.0 protocol.
type JSONRPCError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data contains additional information about the error.
	Data map[string]any `json:"data,omitempty"`
}

// Info contains metadata about the UI or the host including its name and version.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Theme is the color scheme requested by the host.
type Theme string

// HostContext carries the presentation state the host pushes to the UI, both in the handshake and
// in host-context-changed notifications. It is applied as a side effect and never kept by the Bridge.
type HostContext struct {
	// Theme is normalized to ThemeLight or ThemeDark before it is applied.
	Theme Theme `json:"theme,omitempty"`
	// StyleVariables maps CSS-like variable names to values. Entries with falsy values are skipped.
	StyleVariables map[string]any `json:"styleVariables,omitempty"`
	// AppState is present when the host restores a previous UI session.
	AppState *AppState `json:"appState,omitempty"`
}

// AppState identifies a UI session the host wants restored.
type AppState struct {
	SessionID string `json:"sessionId"`
}

// CallToolParams contains parameters for executing a specific tool on the host.
type CallToolParams struct {
	// Name is the unique identifier of the tool to execute
	Name string `json:"name"`

	// Arguments is a flat string-keyed mapping forwarded to the tool as is.
	Arguments map[string]any `json:"arguments"`
}

// CallToolResult represents the outcome of a tool invocation, either as the direct reply to CallTool
// or broadcast by the host in a tool-result notification. The Bridge does not interpret its fields.
type CallToolResult struct {
	Content []Content `json:"content"`
	// StructuredContent is used by the domain layer to refresh its displayed state. A "title" entry
	// is the convention for updating the host-visible panel caption.
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// Content is one typed block of a tool result.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// ContentType represents the type of content in tool results.
type ContentType string

type initializeParams struct {
	ProtocolVersion string       `json:"protocolVersion,omitempty"`
	HostInfo        *Info        `json:"hostInfo,omitempty"`
	HostContext     *HostContext `json:"hostContext,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Info           `json:"clientInfo"`
}

type toolInputParams struct {
	Arguments map[string]any `json:"arguments"`
}

const (
	// ThemeLight is the light color scheme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color scheme, also used for any unrecognized theme value.
	ThemeDark Theme = "dark"
)

const (
	// ContentTypeText is the only content type the todo surface renders.
	ContentTypeText ContentType = "text"
)

const (
	// JSONRPCVersion specifies the JSON-RPC protocol version used for communication.
	JSONRPCVersion = "2.0"

	// ProtocolVersion is the fixed version string answered in the handshake. There is no negotiation.
	ProtocolVersion = "2025-06-18"

	// MethodToolsCall is the method name for invoking a tool on the host.
	MethodToolsCall = "tools/call"

	// MethodInitialize is the handshake request sent by the host.
	MethodInitialize = "ui/initialize"
	// MethodResourceTeardown is the request the host sends before destroying the surface.
	MethodResourceTeardown = "ui/resource-teardown"

	// MethodNotificationsInitialized is sent by the UI once it answered the handshake.
	MethodNotificationsInitialized = "ui/notifications/initialized"
	// MethodNotificationsToolInput carries the arguments of a tool the agent is about to call.
	MethodNotificationsToolInput = "ui/notifications/tool-input"
	// MethodNotificationsToolResult carries a tool result broadcast by the host.
	MethodNotificationsToolResult = "ui/notifications/tool-result"
	// MethodNotificationsHostContextChanged carries an updated HostContext.
	MethodNotificationsHostContextChanged = "ui/notifications/host-context-changed"

	methodPing = "ping"

	// ThemeAttribute is the document attribute the normalized theme is written to.
	ThemeAttribute = "data-theme"

	errMsgMethodNotFound     = "Method not found"
	errMsgInvalidParams      = "Invalid params"
	errMsgAlreadyInitialized = "Already initialized"

	jsonRPCInvalidRequestCode = -32600
	jsonRPCMethodNotFoundCode = -32601
	jsonRPCInvalidParamsCode  = -32602
)

// NormalizeTheme collapses any theme value to ThemeLight or ThemeDark.
func NormalizeTheme(t Theme) Theme {
	if t == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

func (j JSONRPCError) Error() string {
	return fmt.Sprintf("request error, code: %d, message: %s, data %+v", j.Code, j.Message, j.Data)
}

func requestID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}
