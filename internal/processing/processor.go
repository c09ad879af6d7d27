package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/DeafMist/news-search/backend/internal/models"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanLine decodes HTML entities and squeezes whitespace into single spaces.
func CleanLine(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// Normalize cleans the single-line fields of n. Body is only trimmed so
// paragraph breaks survive.
func Normalize(n models.News) models.News {
	n.Title = CleanLine(n.Title)
	n.ShortLink = strings.TrimSpace(n.ShortLink)
	n.Time = strings.TrimSpace(n.Time)
	n.Category = CleanLine(n.Category)
	n.NewsID = strings.TrimSpace(n.NewsID)
	n.Body = strings.TrimSpace(html.UnescapeString(n.Body))
	return n
}

// Fingerprint hashes every field of n, so redelivered identical messages
// produce the same key and any edit produces a new one.
func Fingerprint(n models.News) string {
	parts := []string{
		strconv.FormatInt(n.ID, 10),
		n.Title,
		n.ShortLink,
		n.Time,
		n.Category,
		n.NewsID,
		n.Body,
	}
	s := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(s[:])
}
