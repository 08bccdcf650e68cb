// Package extract pulls person names, national identity numbers and dates
// out of OCR text from scanned administrative documents. Institutional text
// filtering and checksum validation are hard gates: a candidate failing them
// is dropped, not down-scored.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// NameCandidate is the best person-name guess with its heuristic confidence.
type NameCandidate struct {
	Text       string
	Confidence float64
}

// IDCandidate is an 11-digit national-ID sequence found in the text.
// Valid is true only when the checksum holds; invalid IDs never surface.
type IDCandidate struct {
	Text  string
	Valid bool
}

// Entities is the immutable result of one extraction pass.
type Entities struct {
	Name       *NameCandidate
	NationalID *IDCandidate
	Dates      []DateCandidate
}

var (
	// Label-introduced names, e.g. "HASTA ADI SOYADI: ALİ VELİ".
	labelNameRe = regexp.MustCompile(`(?m)(?:HASTA\s+ADI(?:\s+SOYADI)?|ADI\s+SOYADI|PATIENT\s+NAME|SAYIN)\s*[:\-]?\s*` +
		`([A-ZÇĞİÖŞÜ][A-ZÇĞİÖŞÜa-zçğıöşü]*(?:[ ]+[A-ZÇĞİÖŞÜ][A-ZÇĞİÖŞÜa-zçğıöşü]*){1,3})`)

	// Free-standing all-caps two/three token sequences.
	allCapsNameRe = regexp.MustCompile(`(?m)(?:^|[\s:>])([A-ZÇĞİÖŞÜ]{2,}(?:[ ]+[A-ZÇĞİÖŞÜ]{2,}){1,2})(?:$|[\s,.;])`)

	// Mixed-case two/three token sequences.
	mixedNameRe = regexp.MustCompile(`(?m)(?:^|[\s:>])([A-ZÇĞİÖŞÜ][a-zçğıöşü]+(?:[ ]+[A-ZÇĞİÖŞÜ][a-zçğıöşü]+){1,2})(?:$|[\s,.;])`)

	// 11-digit sequences, optionally introduced by an ID label.
	nationalIDRe = regexp.MustCompile(`(?:TC(?:KN)?|T\.C\.|KİMLİK|KIMLIK)?[^0-9]{0,10}(\d{11})`)

	contextKeywords = []string{"hasta", "adı", "adi", "soyad", "patient", "name", "sayın", "sayin"}

	surnameSuffixes = []string{"OĞLU", "GİL"}
)

// labelTokens are leftover field labels stripped from candidate edges.
var labelTokens = map[string]bool{
	"HASTA": true, "ADI": true, "SOYADI": true, "SAYIN": true,
	"TC": true, "TCKN": true, "KİMLİK": true, "NO": true,
}

// blockTokens is institutional/staff vocabulary that disqualifies a name
// candidate outright.
var blockTokens = map[string]bool{
	"SOSYAL": true, "GÜVENLİK": true, "KURUMU": true, "KURUM": true,
	"RAPORU": true, "RAPOR": true, "BELGE": true, "BELGESİ": true,
	"HASTANESİ": true, "HASTANE": true, "SAĞLIK": true, "BAKANLIĞI": true,
	"MÜDÜRLÜĞÜ": true, "MÜDÜR": true, "ÜNİVERSİTESİ": true, "ÜNİVERSİTE": true,
	"FAKÜLTESİ": true, "TIP": true, "MERKEZİ": true, "MERKEZ": true,
	"KLİNİK": true, "POLİKLİNİK": true, "DEVLET": true, "EĞİTİM": true,
	"ARAŞTIRMA": true, "ŞİRKETİ": true, "LTD": true, "ŞTİ": true,
	"DOKTOR": true, "DR": true, "PROF": true, "DOÇ": true, "UZM": true,
	"UZMAN": true, "HEKİM": true, "SORUMLU": true, "ODYOLOG": true,
	"İŞİTME": true, "CİHAZI": true, "REÇETE": true, "SGK": true,
	"TARİH": true, "TARİHİ": true, "DOĞUM": true, "PROTOKOL": true,
}

// Extract runs all entity extractors over the OCR text.
func Extract(text string) Entities {
	return Entities{
		Name:       extractName(text),
		NationalID: extractNationalID(text),
		Dates:      extractDates(text),
	}
}

type nameMatch struct {
	text      string
	pos       int
	fromLabel bool
}

func extractName(text string) *NameCandidate {
	matches := collectNameMatches(text)

	var best *NameCandidate
	for _, m := range matches {
		cleaned := stripLabelTokens(m.text)
		if !LooksLikeName(cleaned) {
			continue
		}
		score := scoreName(text, cleaned, m)
		if best == nil || score > best.Confidence {
			best = &NameCandidate{Text: cleaned, Confidence: score}
		}
	}
	return best
}

func collectNameMatches(text string) []nameMatch {
	var out []nameMatch
	for _, m := range labelNameRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, nameMatch{text: text[m[2]:m[3]], pos: m[2], fromLabel: true})
	}
	for _, re := range []*regexp.Regexp{allCapsNameRe, mixedNameRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			out = append(out, nameMatch{text: text[m[2]:m[3]], pos: m[2]})
		}
	}
	return out
}

// stripLabelTokens removes leftover field labels from both ends of a
// candidate.
func stripLabelTokens(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 0 && labelTokens[upperTurkish(tokens[0])] {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && labelTokens[upperTurkish(tokens[len(tokens)-1])] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// LooksLikeName reports whether s plausibly is a person name: 2-4 tokens,
// letters only, at least 4 characters, and free of institutional vocabulary.
func LooksLikeName(s string) bool {
	if len([]rune(s)) < 4 {
		return false
	}
	tokens := strings.Fields(s)
	if len(tokens) < 2 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		for _, r := range tok {
			if !unicode.IsLetter(r) {
				return false
			}
		}
		if blockTokens[upperTurkish(tok)] {
			return false
		}
	}
	return true
}

// IsInstitutionalText reports whether any token of s belongs to the
// institutional blocklist. The resolver uses this as a safety net.
func IsInstitutionalText(s string) bool {
	for _, tok := range strings.Fields(s) {
		if blockTokens[upperTurkish(tok)] {
			return true
		}
	}
	return false
}

func scoreName(text, cleaned string, m nameMatch) float64 {
	score := 0.4
	tokens := strings.Fields(cleaned)
	if len(tokens) == 2 || len(tokens) == 3 {
		score += 0.2
	}
	if m.fromLabel {
		score += 0.1
	}
	if hasContextKeyword(text, m.pos) {
		score += 0.2
	}
	last := upperTurkish(tokens[len(tokens)-1])
	for _, suffix := range surnameSuffixes {
		if strings.HasSuffix(last, suffix) {
			score += 0.1
			break
		}
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

// hasContextKeyword checks the 40 characters preceding the match for a
// patient/name keyword.
func hasContextKeyword(text string, pos int) bool {
	start := pos - 40
	if start < 0 {
		start = 0
	}
	window := strings.ToLower(text[start:pos])
	for _, kw := range contextKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

func extractNationalID(text string) *IDCandidate {
	for _, m := range nationalIDRe.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if ValidateTCKN(id) {
			return &IDCandidate{Text: id, Valid: true}
		}
	}
	return nil
}

func upperTurkish(s string) string {
	return strings.ToUpperSpecial(unicode.TurkishCase, s)
}
