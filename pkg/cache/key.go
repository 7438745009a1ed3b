// Package cache avoids recomputation across runs. Keys are derived from a
// node's full upstream provenance: the interface identity and configuration
// fingerprint, the resolved parameter values, and, transitively, the cache
// keys of every upstream producer feeding its inputs. Any change anywhere
// upstream changes the key without re-hashing artifact contents.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Key identifies one cached node execution.
type Key string

// String returns the string representation of the Key.
func (k Key) String() string {
	return string(k)
}

// keyPayload is the canonical form hashed into a Key. JSON marshaling sorts
// map keys, so equal payloads always hash identically.
type keyPayload struct {
	Interface string                 `json:"interface"`
	Config    string                 `json:"config"`
	Params    map[string]interface{} `json:"params"`
	Upstream  map[string]Key         `json:"upstream"`
}

// ComputeKey derives the cache key for a node execution. config is the
// interface's configuration fingerprint (empty for unconfigured interfaces);
// upstream maps each connected input port to the cache key of its producer.
func ComputeKey(ifaceName, config string, params map[string]interface{}, upstream map[string]Key) (Key, error) {
	payload := keyPayload{Interface: ifaceName, Config: config, Params: params, Upstream: upstream}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache key payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return Key(fmt.Sprintf("%x", sum)), nil
}
