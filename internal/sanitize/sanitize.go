// Package sanitize turns arbitrary extractor-supplied strings (titles,
// playlist names) into filesystem-safe path components, applying the
// cross-platform reserved-character and reserved-name rules Windows,
// macOS, and Linux filesystems all need satisfied at once.
package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// maxBytes is the UTF-8 byte length cap applied after truncation.
const maxBytes = 240

// forbiddenRun matches control characters and the Windows-reserved
// path characters, collapsing contiguous runs into one replacement.
var forbiddenRun = regexp.MustCompile(`[\x00-\x1f\\/?*:"<>|]+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
}

func init() {
	for i := 1; i <= 9; i++ {
		reservedNames["COM"+string(rune('0'+i))] = true
		reservedNames["LPT"+string(rune('0'+i))] = true
	}
}

// Sanitize normalizes raw into a safe single path component: NFC-normalize,
// strip control/reserved characters, collapse whitespace, trim leading and
// trailing dots/spaces, rename reserved device names, and truncate to maxBytes on a
// grapheme boundary. Pure and idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	if raw == "" {
		return "Untitled"
	}

	s := norm.NFC.String(raw)

	s = forbiddenRun.ReplaceAllString(s, "-")

	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")

	s = prefixIfReserved(s)

	s = truncateToBytes(s, maxBytes)

	if s == "" || strings.Trim(s, ".") == "" {
		return "Untitled"
	}

	return s
}

func prefixIfReserved(s string) string {
	ext := filepath.Ext(s)
	stem := strings.TrimSuffix(s, ext)
	if reservedNames[strings.ToUpper(stem)] {
		return "_" + s
	}
	return s
}

// truncateToBytes shortens s to fit within limit UTF-8 bytes, trimming from
// the stem while preserving the extension, and never splitting a grapheme
// cluster.
func truncateToBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	ext := filepath.Ext(s)
	stem := strings.TrimSuffix(s, ext)
	budget := limit - len(ext)
	if budget <= 0 {
		// Extension alone exceeds the budget; truncate it as if it were
		// the whole name and drop the stem entirely.
		return truncateGraphemes(ext, limit)
	}

	return truncateGraphemes(stem, budget) + ext
}

func truncateGraphemes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	gr := uniseg.NewGraphemes(s)
	var out strings.Builder
	for gr.Next() {
		cluster := gr.Str()
		if out.Len()+len(cluster) > limit {
			break
		}
		out.WriteString(cluster)
	}
	return out.String()
}
