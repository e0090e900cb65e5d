package mcpui

import (
	"maps"
	"sync"
)

// MemoryDocument is a Document that keeps attributes and style properties in memory. It is safe for
// concurrent use.
type MemoryDocument struct {
	mu         sync.RWMutex
	attributes map[string]string
	styles     map[string]string
}

// NewMemoryDocument creates an empty MemoryDocument.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		attributes: make(map[string]string),
		styles:     make(map[string]string),
	}
}

// SetAttribute implements Document.
func (d *MemoryDocument) SetAttribute(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attributes[name] = value
}

// SetStyleProperty implements Document.
func (d *MemoryDocument) SetStyleProperty(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.styles[name] = value
}

// Attribute returns the value of an attribute and whether it is set.
func (d *MemoryDocument) Attribute(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.attributes[name]
	return v, ok
}

// Theme returns the theme last applied by the host, or an empty string before the handshake.
func (d *MemoryDocument) Theme() Theme {
	v, _ := d.Attribute(ThemeAttribute)
	return Theme(v)
}

// StyleProperties returns a copy of the style properties.
func (d *MemoryDocument) StyleProperties() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return maps.Clone(d.styles)
}
