package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomainFromEmail("user@example.com"))
	assert.Equal(t, "example.com", ExtractDomainFromEmail("user@EXAMPLE.COM"))
	assert.Equal(t, "example.com", ExtractDomainFromEmail("  user@example.com  "))
	assert.Equal(t, "example.com", ExtractDomainFromEmail("John Doe <user@example.com>"))
	assert.Equal(t, "", ExtractDomainFromEmail("not-an-email"))
	assert.Equal(t, "", ExtractDomainFromEmail("two@at@signs"))
	assert.Equal(t, "", ExtractDomainFromEmail(""))
}

func TestUniqueEmails(t *testing.T) {
	assert.Equal(t,
		[]string{"a@example.com", "b@example.com"},
		UniqueEmails([]string{"a@example.com", "b@example.com", "a@example.com"}))
	assert.Empty(t, UniqueEmails(nil))
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@mail.example.com", NormalizeMessageID("<abc@mail.example.com>"))
	assert.Equal(t, "abc@mail.example.com", NormalizeMessageID("  <abc@mail.example.com>  "))
	assert.Equal(t, "abc@mail.example.com", NormalizeMessageID("abc@mail.example.com"))
}

func TestGenerateFallbackMessageID_Deterministic(t *testing.T) {
	date := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := GenerateFallbackMessageID("sender@example.com", date, "hello")
	second := GenerateFallbackMessageID("sender@example.com", date, "hello")
	assert.Equal(t, first, second)
	assert.Contains(t, first, "@fallback.local")

	other := GenerateFallbackMessageID("sender@example.com", date, "different subject")
	assert.NotEqual(t, first, other)
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("dom", 21)
	assert.Len(t, id, len("dom_")+21)
	assert.Contains(t, id, "dom_")

	assert.NotEqual(t, id, GenerateNanoIDWithPrefix("dom", 21))
}
