package usecase

import (
	"encoding/hex"

	"pulse-backend/internal/ingest/domain"

	"github.com/zeebo/blake3"
)

// contentHash fingerprints the fields whose change makes a new version of an item.
// Fields are NUL separated so that moving text between them changes the hash.
func contentHash(item *domain.NormalizedItem) string {
	h := blake3.New()
	for _, field := range []string{string(item.ContentType), item.Author, item.Title, item.Text} {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
