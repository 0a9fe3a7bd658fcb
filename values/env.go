// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package values

import (
	"os"
	"strings"
)

const (
	// Environment variable name providing the listen address
	ListenEnv = "STORAGE_PROXY_LISTEN"

	// Environment variable name providing the storage emulator address,
	// shared with the firebase tooling
	UpstreamEnv = "FIREBASE_STORAGE_EMULATOR_HOST"

	// Environment variable name providing the logging configuration
	LogLevelEnv = "STORAGE_PROXY_LOG_LEVEL"

	// Environment variable name providing mongo configdb username
	MongoConfigDBUserNameEnv = "MONGO_CONFIGDB_USERNAME"

	// Environment variable name providing mongo configdb password
	MongoConfigDBPasswordEnv = "MONGO_CONFIGDB_PASSWORD"
)

// Lookup returns the value of the environment variable, a variable set
// to blanks is treated as unset.
func Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Get configured mongodb credentials, ok is false unless both the user
// and the password are provided
func GetMongoConfigDBCredentials() (user string, pass string, ok bool) {
	user, ok = Lookup(MongoConfigDBUserNameEnv)
	if !ok {
		return "", "", false
	}
	pass, ok = os.LookupEnv(MongoConfigDBPasswordEnv)
	if !ok {
		return "", "", false
	}
	return user, pass, true
}
