package core

import "sync"

// CommandHandler decodes its own arguments from data, consuming exactly the
// bytes it reads so the next command in the frame starts at data[0].
type CommandHandler func(data *[]byte) error

// Command is one dictionary entry. Responses (MCU to host) have no Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "oid=%c speed=%i"
	Handler CommandHandler
}

// IsResponse reports whether c is sent by the MCU rather than handled by it
func (c *Command) IsResponse() bool { return c.Handler == nil }

// Signature is the dictionary key: name followed by the format, if any
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns dense ids in registration order
type CommandRegistry struct {
	mu     sync.RWMutex
	byID   []*Command
	byName map[string]uint16
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]uint16)}
}

// RegisterCommand adds a host command to the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds an MCU response to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register returns the id for name, assigning the next one on first use.
// Registering a name again keeps the original entry.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.byName[name]; exists {
		return id
	}
	id := uint16(len(r.byID))
	r.byID = append(r.byID, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.byName[name] = id
	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Count returns the number of registered commands and responses
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Dispatch runs the handler for cmdID. Response ids are not dispatchable.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.IsResponse() {
		return newError(ErrUnknownCommand, "dispatch", "id "+itoa(int(cmdID)), nil)
	}
	return cmd.Handler(data)
}

// GetCommandsAndResponses maps each signature to its id, split by direction
func (r *CommandRegistry) GetCommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, cmd := range r.byID {
		if cmd.IsResponse() {
			responses[cmd.Signature()] = int(cmd.ID)
		} else {
			commands[cmd.Signature()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// DispatchCommand dispatches through the global registry. It is the
// protocol.Transport command handler.
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}
