// Package ipc carries daemon commands over a unix socket as JSON lines.
package ipc

import "encoding/json"

const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandToggle = "toggle"
	CommandStatus = "status"
	CommandNote   = "note"
	CommandItems  = "items"
	CommandDone   = "done"
	CommandEdit   = "edit"
	CommandDelete = "delete"
)

// Request is one client command. Text carries the note body for CommandNote
// and the status filter for CommandItems. Args carries item ids for
// CommandDone and CommandDelete, and an id followed by key=value fields for
// CommandEdit.
type Request struct {
	Command string   `json:"command"`
	Text    string   `json:"text,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// Response answers one Request. Data carries action items for CommandNote and CommandItems.
type Response struct {
	OK         bool            `json:"ok"`
	State      string          `json:"state,omitempty"`
	Permission string          `json:"permission,omitempty"`
	Level      int             `json:"level,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Failure builds an error response.
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
