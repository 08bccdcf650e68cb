package packager

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Review suffixes appended to generated filenames so operators can spot
// documents that need attention straight from a file listing.
const (
	SuffixVerify    = "_VERIFY"    // medium-confidence identity match
	SuffixManual    = "_MANUAL"    // low-confidence identity match
	SuffixUnmatched = "_UNMATCHED" // no identity match at all
	SuffixCheck     = "_CHECK"     // classification too weak to trust
)

var turkishASCII = strings.NewReplacer(
	"ç", "c", "Ç", "C",
	"ğ", "g", "Ğ", "G",
	"ı", "i", "İ", "I",
	"ö", "o", "Ö", "O",
	"ş", "s", "Ş", "S",
	"ü", "u", "Ü", "U",
)

// sanitizeNamePart reduces a person name to a filesystem-safe ASCII token:
// Turkish letters transliterated, anything but letters and digits collapsed
// to single underscores.
func sanitizeNamePart(name string) string {
	ascii := turkishASCII.Replace(name)
	var b strings.Builder
	lastUnderscore := true
	for _, r := range ascii {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// BuildFilename assembles the archive filename:
//
//	<Name|unknown>_<doctype>[<suffix>]_<timestamp>.pdf
//
// The timestamp keeps repeated uploads for the same patient distinct.
func BuildFilename(patientName, docType, suffix string, at time.Time) string {
	namePart := sanitizeNamePart(patientName)
	if namePart == "" {
		namePart = "unknown"
	}
	typePart := sanitizeNamePart(docType)
	if typePart == "" {
		typePart = "document"
	}
	return fmt.Sprintf("%s_%s%s_%s.pdf", namePart, typePart, suffix, at.Format("20060102_150405"))
}
