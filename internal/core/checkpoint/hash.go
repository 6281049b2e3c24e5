package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// hashLen is the hex length of a content hash. A 64-bit prefix of SHA-256
// is plenty for integrity and equality checks; this is not a security
// control.
const hashLen = 16

// ContentHash digests the canonical serialization of a state map.
// Structurally equal maps produce equal hashes regardless of insertion
// order, because the canonical form sorts keys deterministically.
func ContentHash(st map[string]any) string {
	sum := sha256.Sum256(state.Canonical(st))
	return hex.EncodeToString(sum[:])[:hashLen]
}
