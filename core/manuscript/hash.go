package manuscript

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// TextHash returns the hex BLAKE3-256 digest of a text span. Used for
// rewrite-cache keys and for integrity checks over sealed originals.
func TextHash(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// OriginalHash returns the digest of the block's sealed original text.
func (b *ChangeBlock) OriginalHash() string {
	return TextHash(b.Original)
}
