// Package storage keeps an optional journal of delivery attempts.
//
// Snapshots are never persisted; the journal only answers "what was sent
// where, and did it work".
package storage
