// Package todoapp is the domain side of the todo surface: it keeps the todos the host reports, and
// turns user actions into tool calls.
//
// The host owns the data. Every tool result carries the full list in its structured content, and
// the Model replaces its state with it instead of applying deltas.
package todoapp

import (
	"fmt"
	"strings"
)

// Todo is one entry of the list.
type Todo struct {
	ID   string `json:"id" mapstructure:"id"`
	Text string `json:"text" mapstructure:"text"`
	Done bool   `json:"done" mapstructure:"done"`
}

// Snapshot is a copy of the Model state handed to observers.
type Snapshot struct {
	Title string
	Todos []Todo
	// Incoming holds the arguments of a tool the agent is calling, until its result arrives.
	Incoming map[string]any
}

// Tool names the todo server exposes.
const (
	ToolAdd    = "todo_add"
	ToolList   = "todo_list"
	ToolToggle = "todo_toggle"
	ToolRemove = "todo_remove"
)

const defaultTitle = "Todos"

// Remaining returns the number of todos not done yet.
func (s Snapshot) Remaining() int {
	n := 0
	for _, t := range s.Todos {
		if !t.Done {
			n++
		}
	}
	return n
}

// String renders the snapshot as a plain text checklist.
func (s Snapshot) String() string {
	var sb strings.Builder

	title := s.Title
	if title == "" {
		title = defaultTitle
	}
	fmt.Fprintf(&sb, "%s (%d/%d left)\n", title, s.Remaining(), len(s.Todos))

	if len(s.Todos) == 0 {
		sb.WriteString("  (empty)\n")
	}
	for _, t := range s.Todos {
		mark := " "
		if t.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "  [%s] %s  #%s\n", mark, t.Text, t.ID)
	}

	if s.Incoming != nil {
		fmt.Fprintf(&sb, "  ... agent is calling a tool with %v\n", s.Incoming)
	}

	return sb.String()
}
