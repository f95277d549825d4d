package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Audit actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionUnban  = "unban"
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one tracking event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id"`
	Item   string    `json:"item"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}
