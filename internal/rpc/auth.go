package rpc

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned when a client's initialize token doesn't
// match the daemon's provisioned secret.
var ErrUnauthorized = errors.New("rpc: unauthorized")

// TokenAuth guards the socket with a single shared-secret token, hashed at
// rest with bcrypt the way the teacher's pkg/auth.go hashes passwords. The
// socket itself is already restricted to mode 0600 on the local filesystem
// (spec §6); this is a second factor for hosts that proxy the socket.
type TokenAuth struct {
	hash []byte
}

// NewTokenAuth generates a random token, persists its bcrypt hash at
// hashPath, and returns the auth guard plus the plaintext token the caller
// must hand out to clients once.
func NewTokenAuth(hashPath string) (*TokenAuth, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("rpc: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("rpc: hash token: %w", err)
	}
	if err := os.WriteFile(hashPath, hash, 0o600); err != nil {
		return nil, "", fmt.Errorf("rpc: persist token hash: %w", err)
	}
	return &TokenAuth{hash: hash}, token, nil
}

// LoadTokenAuth reads a previously persisted bcrypt hash from disk.
func LoadTokenAuth(hashPath string) (*TokenAuth, error) {
	hash, err := os.ReadFile(hashPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: read token hash: %w", err)
	}
	return &TokenAuth{hash: hash}, nil
}

// Verify checks a client-supplied token against the stored hash.
func (a *TokenAuth) Verify(token string) error {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// initializeParams is the subset of spec §6's initialize params this
// package cares about: an optional bearer token alongside the standard MCP
// protocolVersion/clientInfo fields.
type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	Token           string `json:"token"`
}

func parseInitializeParams(raw json.RawMessage) (initializeParams, error) {
	var p initializeParams
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("rpc: invalid initialize params: %w", err)
	}
	return p, nil
}
