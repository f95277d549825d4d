// Package storage provides the optional audit trail for tracking events
// (usernames added, removed, or observed unbanned).
//
// It currently supports:
//   - A dependency-free JSONL file backend (default)
//   - A SQLite backend behind the "sqlite" build tag
package storage
