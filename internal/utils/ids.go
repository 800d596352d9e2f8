package utils

import (
	"crypto/sha256"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoIDWithPrefix produces ids like "dom_x7k2m9..." used as primary keys.
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// GenerateFallbackMessageID derives a deterministic message id for messages the
// provider delivered without one. The same sender, timestamp and subject always
// map to the same id, so re-syncs still deduplicate.
func GenerateFallbackMessageID(from string, date time.Time, subject string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", from, date.Unix(), subject)))
	return fmt.Sprintf("%x@fallback.local", hash[:16])
}

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}
