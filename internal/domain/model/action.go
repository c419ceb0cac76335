package model

import (
	"time"
)

// ActionKind is the mutation an offline action replays.
type ActionKind string

// Supported action kinds.
const (
	ActionInsert ActionKind = "insert"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Valid reports whether k is one of the supported kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Action is a mutation recorded while the remote store was unreachable.
type Action struct {
	ID        string         `json:"id"`
	Resource  string         `json:"resource"`
	Kind      ActionKind     `json:"action"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// RecordID returns the "id" field of the payload, if it is a non-empty string.
func (a Action) RecordID() (string, bool) {
	id, ok := a.Data["id"].(string)
	return id, ok && id != ""
}
