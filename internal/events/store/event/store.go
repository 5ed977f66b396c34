// Package event persists registration records and their append-only action
// logs. Stores are pure I/O: every lifecycle rule lives in the service.
package event

import (
	"time"

	"crvs/internal/events/models"
)

const (
	// numShards spreads per-event locks of the in-memory store.
	numShards = 128

	// DefaultTxTimeout bounds a transaction that has no deadline of its own.
	DefaultTxTimeout = 15 * time.Second
)

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// conflicts reports whether a collides with a unique key already in e.
func conflicts(e *models.Event, a models.Action) bool {
	if _, dup := e.FindAction(a.ID); dup {
		return true
	}
	if _, dup := e.FindByTransaction(a.Type, a.TransactionID); dup {
		return true
	}
	if a.RequestID.IsNil() {
		return false
	}
	if a.IsResolution() {
		_, dup := e.ResolutionOf(a.RequestID)
		return dup
	}
	_, dup := e.CorrectionDecisionOf(a.RequestID)
	return dup
}
