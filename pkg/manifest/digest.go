package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/caseforge/caseforge/pkg/engine"
)

// DigestPrefix tags digests with their algorithm.
const DigestPrefix = "blake3:"

// Digest returns the BLAKE3 hash of the compact JSON encoding of m. Entry
// order is significant; parameter order within an entry is not.
func Digest(m *engine.Manifest) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest for digest: %w", err)
	}
	sum := blake3.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:]), nil
}
