package config

import (
	"sync"
)

// defaultJWTSecret is only fit for local development.
const defaultJWTSecret = "wayfinder-development-secret"

var (
	jwtSecretMu sync.RWMutex
	jwtSecret   []byte
)

// GetJWTSecret returns the key that signs session tokens, reading JWT_SECRET
// on first use.
func GetJWTSecret() []byte {
	jwtSecretMu.RLock()
	secret := jwtSecret
	jwtSecretMu.RUnlock()
	if secret != nil {
		return secret
	}

	jwtSecretMu.Lock()
	defer jwtSecretMu.Unlock()
	if jwtSecret == nil {
		jwtSecret = []byte(GetEnvOrDefault("JWT_SECRET", defaultJWTSecret))
	}
	return jwtSecret
}

// UsingDefaultJWTSecret reports whether tokens are signed with the built-in
// development key.
func UsingDefaultJWTSecret() bool {
	return string(GetJWTSecret()) == defaultJWTSecret
}

// SetJWTSecret swaps the signing key and returns a function that puts the
// previous one back.
func SetJWTSecret(secret []byte) func() {
	jwtSecretMu.Lock()
	previous := jwtSecret
	jwtSecret = secret
	jwtSecretMu.Unlock()

	return func() {
		jwtSecretMu.Lock()
		jwtSecret = previous
		jwtSecretMu.Unlock()
	}
}
