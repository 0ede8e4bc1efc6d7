package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

// backupKey names a timestamped copy of a book, e.g.
// backups/b1/2025-07-16_153000_alice-in-wonderland.json
func backupKey(bookID, title string, at time.Time) string {
	name := fmt.Sprintf("%s_%s.json", at.Format("2006-01-02_150405"), slug(title, 40))
	return path.Join("backups", bookID, name)
}

// slug converts a title to a safe filename component
func slug(s string, maxLen int) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r) || strings.ContainsRune("-_/\\:.", r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	if out == "" {
		out = "untitled"
	}
	return out
}
