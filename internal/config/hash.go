package config

import (
	"encoding/json"
	"hash/fnv"
)

// fingerprint hashes the decoded config rather than the file bytes, so saves
// that only change comments, key order or the file format are not reloads.
// It returns 0 when cfg cannot be encoded, which never matches.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	h := fnv.New64a()
	if err := json.NewEncoder(h).Encode(cfg); err != nil {
		return 0
	}
	return h.Sum64()
}
