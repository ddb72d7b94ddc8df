package console

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// Handler runs a console command. args[0] is the command name.
type Handler func(c *Console, args []string) error

// Command is a registered console command.
type Command struct {
	ID      uint16
	Name    string
	Usage   string // one-line help, e.g. "led <pattern>"
	Handler Handler
}

// ErrUnknownCommand is returned by Dispatch for names nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

// Registry holds the console commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command and returns its ID. Registering a name twice
// keeps the first handler and returns its ID.
func (r *Registry) Register(name, usage string, handler Handler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Usage:   usage,
		Handler: handler,
	}
	r.nameToID[name] = id
	return id
}

// Get retrieves a command by ID.
func (r *Registry) Get(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup retrieves a command by name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.nameToID))
	for name := range r.nameToID {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Dispatch runs the command named by args[0].
func (r *Registry) Dispatch(c *Console, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		return ErrUnknownCommand
	}
	return cmd.Handler(c, args)
}
