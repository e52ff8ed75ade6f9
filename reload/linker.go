package reload

import (
	"fmt"
	"sync"
)

// Body is the executable implementation of a method, constructor or static
// initializer. target is the receiver instance, or nil for static members.
type Body func(target *Instance, args []Value) (Value, error)

// Linker resolves the body references carried by a type image. It is the
// boundary to the binary-image patcher.
type Linker interface {
	Link(typeName, ref string) (Body, error)
}

// LinkerFunc adapts a function to the Linker interface.
type LinkerFunc func(typeName, ref string) (Body, error)

func (f LinkerFunc) Link(typeName, ref string) (Body, error) { return f(typeName, ref) }

// BodyTable is a Linker backed by a map of body references.
// It's thread-safe for concurrent access.
type BodyTable struct {
	mu     sync.RWMutex
	bodies map[string]Body
}

// NewBodyTable creates a new empty body table.
func NewBodyTable() *BodyTable {
	return &BodyTable{bodies: make(map[string]Body)}
}

// Register adds or replaces the body for a reference.
func (bt *BodyTable) Register(ref string, body Body) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.bodies[ref] = body
}

// Link implements Linker.
func (bt *BodyTable) Link(typeName, ref string) (Body, error) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	if b, ok := bt.bodies[ref]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q for %s", ErrUnresolvedBody, ref, typeName)
}

// Len returns the number of registered bodies.
func (bt *BodyTable) Len() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return len(bt.bodies)
}

// nopLinker is used by registries created without a Linker; it fails every
// non-empty reference.
var nopLinker = LinkerFunc(func(typeName, ref string) (Body, error) {
	return nil, fmt.Errorf("%w: %q for %s (no linker)", ErrUnresolvedBody, ref, typeName)
})
