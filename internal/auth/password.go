// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances verification latency and brute-force resistance.
const bcryptCost = 12

// HashPassword returns a bcrypt hash of password. Used for the admin
// account and for room passwords stored in room records.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CredentialVerifier validates a single configured username/password
// pair. The password is hashed once at construction so login attempts
// never see the plaintext.
type CredentialVerifier struct {
	username     string
	passwordHash []byte
}

// NewCredentialVerifier hashes the configured password up front.
func NewCredentialVerifier(username, password string) (*CredentialVerifier, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &CredentialVerifier{
		username:     username,
		passwordHash: hash,
	}, nil
}

// Verify reports whether the supplied credentials match. Username
// comparison is constant time; bcrypt comparison is inherently so.
func (v *CredentialVerifier) Verify(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}
