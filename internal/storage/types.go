package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file (modernc.org/sqlite)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one send attempt to one channel.
type DeliveryRecord struct {
	At      time.Time `json:"at"`
	CycleID string    `json:"cycle_id"`
	Channel string    `json:"channel"`
	Role    string    `json:"role"`
	ChatID  int64     `json:"chat_id"`
	Thread  int       `json:"thread,omitempty"`
	Changed bool      `json:"changed"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
