package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateRole identifies what a date on the document most likely refers to.
type DateRole string

const (
	DateRoleBirth    DateRole = "birth"
	DateRoleDocument DateRole = "document"
	DateRoleUnknown  DateRole = "unknown"
)

// DateCandidate is a date found in OCR text, normalized to ISO form.
type DateCandidate struct {
	Raw  string
	ISO  string // YYYY-MM-DD
	Role DateRole
}

var (
	dmyPattern = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	isoPattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	birthKeywords = []string{"doğum", "dogum", "d.tarihi", "birth"}
)

// extractDates finds DD.MM.YYYY, DD/MM/YYYY and YYYY-MM-DD dates and
// normalizes them. Invalid calendar dates are dropped.
func extractDates(text string) []DateCandidate {
	var out []DateCandidate
	seen := make(map[string]bool)

	add := func(raw string, year, month, day, pos int) {
		iso, ok := normalizeDate(year, month, day)
		if !ok || seen[iso] {
			return
		}
		seen[iso] = true
		out = append(out, DateCandidate{Raw: raw, ISO: iso, Role: inferDateRole(text, pos)})
	}

	for _, m := range dmyPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[0]:m[1]]
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		add(raw, year, month, day, m[0])
	}
	for _, m := range isoPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[0]:m[1]]
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		add(raw, year, month, day, m[0])
	}
	return out
}

// normalizeDate validates the calendar date and renders it in ISO form.
func normalizeDate(year, month, day int) (string, bool) {
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// inferDateRole looks at the text immediately before the date for a birth
// keyword; anything else on an administrative document is treated as the
// document date.
func inferDateRole(text string, pos int) DateRole {
	start := pos - 30
	if start < 0 {
		start = 0
	}
	window := strings.ToLower(text[start:pos])
	for _, kw := range birthKeywords {
		if strings.Contains(window, kw) {
			return DateRoleBirth
		}
	}
	return DateRoleDocument
}
