package todoapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/go-mcp-ui"
	"github.com/mitchellh/mapstructure"
)

// ToolCaller invokes tools on the host. *mcpui.Bridge satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) (mcpui.CallToolResult, error)
}

// Model holds the todo list as last reported by the host. It implements mcpui.ToolResultHandler and
// mcpui.ToolInputHandler, so it can be registered on the Bridge that it also calls tools through.
//
// Instances should be created using NewModel and attached to a ToolCaller before use.
type Model struct {
	logger *slog.Logger

	mu        sync.RWMutex
	caller    ToolCaller
	title     string
	todos     []Todo
	incoming  map[string]any
	observers []func(Snapshot)
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// ToolError is returned when the host reports a tool result flagged as an error.
type ToolError struct {
	Tool    string
	Message string
}

var (
	// ErrNoCaller is returned by the actions before Attach was called.
	ErrNoCaller = errors.New("model not attached to a tool caller")
	// ErrEmptyText is returned by Add for blank text.
	ErrEmptyText = errors.New("todo text is empty")
	// ErrEmptyID is returned by Toggle and Remove for a blank id.
	ErrEmptyID = errors.New("todo id is empty")
)

// WithModelLogger sets the logger for the model.
func WithModelLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) {
		m.logger = logger
	}
}

// NewModel creates an empty Model.
func NewModel(options ...ModelOption) *Model {
	m := &Model{
		logger: slog.Default(),
		title:  defaultTitle,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Attach sets the ToolCaller used by the actions.
func (m *Model) Attach(caller ToolCaller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.caller = caller
}

// OnChange registers fn to be called with a snapshot after every state change.
func (m *Model) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, fn)
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshotLocked()
}

// Add asks the host to create a todo.
func (m *Model) Add(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	return m.call(ctx, ToolAdd, map[string]any{"text": text})
}

// List asks the host for the current todos.
func (m *Model) List(ctx context.Context) error {
	return m.call(ctx, ToolList, nil)
}

// Toggle flips the done flag of a todo.
func (m *Model) Toggle(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return m.call(ctx, ToolToggle, map[string]any{"id": id})
}

// Remove deletes a todo.
func (m *Model) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return m.call(ctx, ToolRemove, map[string]any{"id": id})
}

// OnToolResult implements mcpui.ToolResultHandler. Results flagged as errors leave the state
// untouched; results without todos only update what they carry.
func (m *Model) OnToolResult(result mcpui.CallToolResult) {
	if result.IsError {
		m.logger.Warn("ignoring error tool result", slog.String("message", resultText(result)))
		return
	}

	update, err := decodeUpdate(result.StructuredContent)
	if err != nil {
		m.logger.Error("failed to decode tool result", "err", err)
		return
	}

	m.mu.Lock()
	if update.hasTodos {
		m.todos = update.todos
	}
	if update.title != "" {
		m.title = update.title
	}
	m.incoming = nil
	snap, observers := m.snapshotLocked(), slices.Clone(m.observers)
	m.mu.Unlock()

	notify(observers, snap)
}

// OnToolInput implements mcpui.ToolInputHandler. The arguments are shown as pending until the
// matching result arrives.
func (m *Model) OnToolInput(arguments map[string]any) {
	m.mu.Lock()
	m.incoming = maps.Clone(arguments)
	if m.incoming == nil {
		m.incoming = map[string]any{}
	}
	snap, observers := m.snapshotLocked(), slices.Clone(m.observers)
	m.mu.Unlock()

	notify(observers, snap)
}

func (m *Model) call(ctx context.Context, tool string, arguments map[string]any) error {
	m.mu.RLock()
	caller := m.caller
	m.mu.RUnlock()

	if caller == nil {
		return ErrNoCaller
	}

	m.logger.Debug("calling tool", slog.String("tool", tool))
	result, err := caller.CallTool(ctx, tool, arguments)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", tool, err)
	}
	if result.IsError {
		return &ToolError{Tool: tool, Message: resultText(result)}
	}

	// The Bridge hands the result to OnToolResult too, so the state is updated there.
	return nil
}

func (m *Model) snapshotLocked() Snapshot {
	return Snapshot{
		Title:    m.title,
		Todos:    slices.Clone(m.todos),
		Incoming: maps.Clone(m.incoming),
	}
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s reported an error: %s", e.Tool, e.Message)
}

type update struct {
	hasTodos bool
	todos    []Todo
	title    string
}

func decodeUpdate(content map[string]any) (update, error) {
	var u update
	if content == nil {
		return u, nil
	}

	if title, ok := content["title"].(string); ok {
		u.title = title
	}

	raw, ok := content["todos"]
	if !ok {
		return u, nil
	}

	todos := []Todo{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &todos,
		// Hosts may send numeric ids.
		WeaklyTypedInput: true,
	})
	if err != nil {
		return u, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return u, fmt.Errorf("failed to decode todos: %w", err)
	}

	u.hasTodos = true
	u.todos = todos
	return u, nil
}

func resultText(result mcpui.CallToolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if c.Type == mcpui.ContentTypeText && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func notify(observers []func(Snapshot), snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}
