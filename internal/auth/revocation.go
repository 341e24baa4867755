// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"sync"
	"time"
)

// RevocationList revokes every token of a subject issued at or before a
// cutoff.
type RevocationList struct {
	mu      sync.RWMutex
	cutoffs map[string]time.Time
}

// NewRevocationList returns an empty list.
func NewRevocationList() *RevocationList {
	return &RevocationList{cutoffs: make(map[string]time.Time)}
}

// Revoke invalidates tokens of subject issued at or before at. A later
// cutoff replaces an earlier one.
func (l *RevocationList) Revoke(subject string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.cutoffs[subject]; ok && prev.After(at) {
		return
	}
	l.cutoffs[subject] = at
}

// Revoked reports whether a token of subject issued at issuedAt is revoked.
// A zero issuedAt counts as revoked when subject has a cutoff.
func (l *RevocationList) Revoked(subject string, issuedAt time.Time) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	cutoff, ok := l.cutoffs[subject]
	l.mu.RUnlock()
	return ok && !issuedAt.After(cutoff)
}
