package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ocrConfusables maps digits that OCR engines commonly substitute for
// letters back to their letter forms.
var ocrConfusables = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"5", "s",
	"8", "b",
	"6", "g",
)

// dottedFold maps the Turkish dotless ı (which carries no combining mark and
// survives NFD stripping) onto plain i.
var dottedFold = strings.NewReplacer("ı", "i")

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize case-folds (Turkish-aware), strips diacritics, folds common OCR
// digit confusions onto letters and collapses whitespace. All similarity
// signals operate on normalized text.
func Normalize(s string) string {
	lower := strings.ToLowerSpecial(unicode.TurkishCase, s)
	folded, _, err := transform.String(diacriticStripper, lower)
	if err != nil {
		folded = lower
	}
	folded = dottedFold.Replace(folded)
	folded = ocrConfusables.Replace(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// digitsOnly strips everything but ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
