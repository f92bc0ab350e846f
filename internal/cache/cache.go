// Package cache builds fingerprints for generate calls and defines the
// store they are looked up in. A fingerprint is a pure function of the
// call's inputs; two entries are equal iff every field serializes
// identically.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

// DefaultExpiry is the retention applied when the caller opts into caching
// without an explicit policy.
const DefaultExpiry = "1W"

// Policy controls cache retention and partitioning. Expiry uses compact
// duration units (s, m, h, D, W, M, Y); empty means never expire. Scopes
// add caller-defined dimensions to the fingerprint.
type Policy struct {
	Expiry   string            `json:"expiry,omitempty"`
	PerEpoch bool              `json:"per_epoch"`
	Scopes   map[string]string `json:"scopes,omitempty"`
}

// DefaultPolicy is the policy applied when caching is requested without an
// explicit one.
func DefaultPolicy() Policy {
	return Policy{Expiry: DefaultExpiry, PerEpoch: true}
}

// Entry carries every fingerprint-relevant field of a generate call.
type Entry struct {
	BaseURL    string                  `json:"base_url,omitempty"`
	Config     contract.GenerateConfig `json:"config"`
	Input      []contract.ChatMessage  `json:"input"`
	Model      string                  `json:"model"`
	Policy     Policy                  `json:"policy"`
	ToolChoice contract.ToolChoice     `json:"tool_choice"`
	Tools      []contract.ToolInfo     `json:"tools,omitempty"`
}

// Fingerprint returns the canonical key for the entry: the hex SHA-256 of
// its JSON serialization. Map keys serialize sorted, so the fingerprint is
// deterministic.
func (e Entry) Fingerprint() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("serialize cache entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store is the external cache the orchestrator fetches from and stores to.
type Store interface {
	// Fetch returns the cached output for a fingerprint, or ok=false when
	// absent or expired.
	Fetch(fingerprint string) (output *contract.ModelOutput, ok bool, err error)

	// Put stores an output under a fingerprint.
	Put(fingerprint string, output *contract.ModelOutput) error
}
