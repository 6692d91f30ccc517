// Package storage provides utilities shared across turn-store
// implementations, including sentinel errors and tenant context helpers.
//
// Turn stores (memory, postgres) persist per-session conversation
// transcripts so follow-up requests carrying tool results can rebuild
// history after a restart. This package contains the TurnStore interface
// and shared helpers only, not the implementations.
package storage
