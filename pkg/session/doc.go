// Package session tracks tool-call lifecycle per conversation. Each
// session owns a bounded map of call id to state; writes are serialized
// per session so concurrent calls in one turn never race, while
// different sessions proceed without contention. Memory is bounded two
// ways: a per-session entry cap with oldest-terminal-first eviction,
// and idle-session expiry through an expirable LRU.
package session
