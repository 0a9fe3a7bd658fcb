// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package db

import (
	"sync"
)

var (
	// Application name reported to the mongo server by the client
	// connections, falls back to defaultSourceIdentifier if not set
	sourceIdentifier = ""

	// Once a connection picked up the identifier it can no longer be
	// changed for the life of the program
	sourceIdentifierUsed = false

	sourceIdentifierLock sync.Mutex
)

// SetSourceIdentifier sets the application name used by new
// connections. Returns false if a connection already picked up the
// identifier.
func SetSourceIdentifier(identifier string) bool {
	sourceIdentifierLock.Lock()
	defer sourceIdentifierLock.Unlock()
	if sourceIdentifierUsed {
		return false
	}
	sourceIdentifier = identifier
	return true
}

// for internal use only, it also marks the identifier as in use
func getSourceIdentifier() string {
	sourceIdentifierLock.Lock()
	defer sourceIdentifierLock.Unlock()
	sourceIdentifierUsed = true
	if sourceIdentifier != "" {
		return sourceIdentifier
	}
	return defaultSourceIdentifier
}
