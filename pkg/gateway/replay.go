package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

type replayEntry struct {
	fingerprint string
	response    RPCResponse
	expiresAt   time.Time
}

// replayCache remembers responses by idempotency key for ttl
type replayCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   func() time.Time
	entries map[string]replayEntry
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{ttl: ttl, clock: time.Now, entries: make(map[string]replayEntry)}
}

// paramsFingerprint hashes params. encoding/json sorts map keys, so equal
// params always hash alike.
func paramsFingerprint(params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// get returns the live response stored under key. conflict is set when
// key was stored for a different fingerprint.
func (c *replayCache) get(key, fingerprint string) (resp RPCResponse, found, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return RPCResponse{}, false, false
	}
	if c.clock().After(entry.expiresAt) {
		delete(c.entries, key)
		return RPCResponse{}, false, false
	}
	if entry.fingerprint != fingerprint {
		return RPCResponse{}, false, true
	}
	return copyResponse(entry.response), true, false
}

func (c *replayCache) put(key, fingerprint string, resp RPCResponse) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = replayEntry{
		fingerprint: fingerprint,
		response:    copyResponse(resp),
		expiresAt:   now.Add(c.ttl),
	}
}

func (c *replayCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func copyResponse(src RPCResponse) RPCResponse {
	out := src
	if src.Error != nil {
		e := *src.Error
		out.Error = &e
	}
	return out
}
