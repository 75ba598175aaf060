package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	breakPattern      = regexp.MustCompile(`(\r\n|\r|\n)+`)
	whitespacePattern = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// Normalize strips markup, decodes HTML entities and collapses all whitespace
// runs into single spaces, repeating until the text is stable. Entity decoding
// can uncover another layer of markup or entities; running to the fixpoint
// keeps Normalize idempotent. Each pass shortens the text, so the loop
// terminates.
func Normalize(raw string) string {
	text := normalizeOnce(raw)
	for {
		next := normalizeOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func normalizeOnce(raw string) string {
	text := tagPattern.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	text = breakPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Hash returns the hex digest of the normalized content. This is the stable
// identity key for text submissions; lookups against historically stored rows
// depend on sha1 staying the digest.
func Hash(raw string) string {
	return digest(Normalize(raw))
}

// LegacyHash digests the raw content without normalization. Rows created
// before normalization was introduced are keyed this way and are migrated
// forward when found.
func LegacyHash(raw string) string {
	return digest(raw)
}

// ClearHex returns the normalized clear text hex-encoded for transport across
// a request boundary.
func ClearHex(raw string) string {
	return hex.EncodeToString([]byte(Normalize(raw)))
}

// DecodeClearHex reverses ClearHex.
func DecodeClearHex(encoded string) (string, error) {
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WordCount counts whitespace-separated words in the normalized content.
func WordCount(raw string) int {
	text := Normalize(raw)
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func digest(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
