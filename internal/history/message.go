// Package history implements the conversation history and compactor:
// it appends turns, detects user-anchored segments, and shrinks
// history on a context-window overflow while preserving user intent
// and final tool results.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles a Message can carry. Tool results are appended as user-role
// messages by convention, matching the provider wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation history.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
	Metadata  map[string]interface{}

	// IsInternalReminder marks a user-role message the agent loop
	// injected to coax the model (schema reminder, tool reminder,
	// mermaid-fix, JSON correction). Stripped preferentially.
	IsInternalReminder bool

	// IsToolResult marks a user-role message carrying a tool's output,
	// as opposed to a genuine user turn.
	IsToolResult bool
}

// Error is returned by History operations.
type Error struct {
	SessionID string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.SessionID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.SessionID, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(sessionID, op, msg string, err error) *Error {
	return &Error{SessionID: sessionID, Operation: op, Message: msg, Err: err}
}

// History is a mutex-guarded, per-session ordered message log. The
// system message, if any, always lives at index 0 and is never
// removed by compaction.
type History struct {
	mu        sync.RWMutex
	SessionID string
	Messages  []Message
}

// New creates an empty history for a session.
func New(sessionID string) (*History, error) {
	if sessionID == "" {
		return nil, newError("", "New", "session ID is required", nil)
	}
	return &History{SessionID: sessionID}, nil
}

// Append adds a message and returns it.
func (h *History) Append(role, content string, metadata map[string]interface{}) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	h.Messages = append(h.Messages, msg)
	return msg
}

// AppendToolResult adds a user-role message flagged as a tool result.
func (h *History) AppendToolResult(content string, metadata map[string]interface{}) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{
		ID:           uuid.NewString(),
		Role:         RoleUser,
		Content:      content,
		Timestamp:    time.Now(),
		Metadata:     metadata,
		IsToolResult: true,
	}
	h.Messages = append(h.Messages, msg)
	return msg
}

// AppendInternalReminder adds a user-role message flagged as an
// internal reminder the compactor should strip preferentially.
func (h *History) AppendInternalReminder(content string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{
		ID:                 uuid.NewString(),
		Role:               RoleUser,
		Content:            content,
		Timestamp:          time.Now(),
		IsInternalReminder: true,
	}
	h.Messages = append(h.Messages, msg)
	return msg
}

// Snapshot returns a defensive copy of the current message list.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.Messages))
	copy(out, h.Messages)
	return out
}

// Replace swaps the message list wholesale. Used by the compactor to
// install a shrunk history atomically.
func (h *History) Replace(messages []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Messages = messages
}

// Len returns the number of messages currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Messages)
}

// Clone returns a new, independent History. If stripReminders is true,
// internal-reminder messages are dropped. If dropSystem is true, a
// leading system message is dropped. If newSessionID is non-empty, the
// clone uses it in place of the parent's session id; otherwise the
// parent's id is retained. This lets the agent loop branch a new agent
// from the current state without mutating the parent.
func (h *History) Clone(stripReminders, dropSystem bool, newSessionID string) *History {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessionID := h.SessionID
	if newSessionID != "" {
		sessionID = newSessionID
	}

	clone := &History{SessionID: sessionID}
	for i, msg := range h.Messages {
		if dropSystem && i == 0 && msg.Role == RoleSystem {
			continue
		}
		if stripReminders && msg.IsInternalReminder {
			continue
		}
		clone.Messages = append(clone.Messages, msg)
	}
	return clone
}
