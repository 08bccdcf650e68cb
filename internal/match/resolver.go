// Package match resolves extracted document entities against the patient
// directory. Scoring fuses several string-similarity algorithms with exact
// identifier signals into a single confidence per patient.
package match

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xear-health/docflow/internal/directory"
	"github.com/xear-health/docflow/internal/extract"
)

// Confidence tier cutoffs. High matches may be auto-assigned, medium and low
// matches require operator confirmation.
const (
	HighThreshold   = 0.40
	MediumThreshold = 0.25
	LowThreshold    = 0.15
)

// Tier buckets a resolution outcome by its top candidate's confidence.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
	TierNone   Tier = "none"
)

// tierFor maps a confidence to its tier.
func tierFor(confidence float64) Tier {
	switch {
	case confidence >= HighThreshold:
		return TierHigh
	case confidence >= MediumThreshold:
		return TierMedium
	case confidence >= LowThreshold:
		return TierLow
	default:
		return TierNone
	}
}

// Signals holds the individual scoring components that produced a
// candidate's confidence, for operator review and debugging.
type Signals struct {
	Name         float64 `json:"name"`
	TokenOverlap float64 `json:"tokenOverlap"`
	NameOrder    float64 `json:"nameOrder"`
	NationalID   float64 `json:"nationalId"`
	BirthDate    float64 `json:"birthDate"`
	Phone        float64 `json:"phone"`
}

// Candidate is one scored directory entry.
type Candidate struct {
	Patient    directory.Patient `json:"patient"`
	Confidence float64           `json:"confidence"`
	Signals    Signals           `json:"signals"`
}

// Result is a resolution outcome: ranked candidates, at most one per
// patient, plus the tier of the best candidate.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Tier       Tier        `json:"tier"`
	QueriedAt  time.Time   `json:"queriedAt"`
}

// Best returns the top candidate, if any.
func (r Result) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Fusion weights. The three name signals form the name component; the exact
// identifier signals are added on top and the sum is capped at 1.0.
const (
	weightName         = 0.80
	weightTokenOverlap = 0.15
	weightNameOrder    = 0.05
	weightNationalID   = 0.10
	weightBirthDate    = 0.05
	weightPhone        = 0.02

	orderTokenThreshold = 0.8
	maxCandidates       = 10
)

// Resolver scores extracted entities against directory patients. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger falls back to slog.Default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve scores every patient against the extracted entities and the raw
// OCR text, returning a deterministic ranked list. A keyword search of
// patient name tokens in the raw text backs up the scored pass: it runs when
// extraction produced neither a usable name nor a national id, and also when
// the scored pass left no candidate at medium or better. Each patient keeps
// the higher of its two confidences.
func (r *Resolver) Resolve(ents extract.Entities, rawText string, patients []directory.Patient) Result {
	result := Result{QueriedAt: time.Now().UTC(), Tier: TierNone}

	extractedName := ""
	if ents.Name != nil && !extract.IsInstitutionalText(ents.Name.Text) {
		extractedName = Normalize(ents.Name.Text)
	}
	extractedID := ""
	if ents.NationalID != nil && ents.NationalID.Valid {
		extractedID = ents.NationalID.Text
	}

	if extractedName == "" && extractedID == "" {
		result.Candidates = r.fallbackSearch(rawText, patients)
	} else {
		result.Candidates = r.scoreAll(extractedName, extractedID, ents, rawText, patients)
		if bestConfidence(result.Candidates) < MediumThreshold {
			result.Candidates = mergeCandidates(result.Candidates, r.fallbackSearch(rawText, patients))
		}
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Patient.ID < b.Patient.ID
	})
	if len(result.Candidates) > maxCandidates {
		result.Candidates = result.Candidates[:maxCandidates]
	}
	if best, ok := result.Best(); ok {
		result.Tier = tierFor(best.Confidence)
		r.logger.Debug("identity resolved",
			"tier", result.Tier,
			"candidates", len(result.Candidates),
			"topConfidence", best.Confidence,
			"topPatient", best.Patient.ID)
	}
	return result
}

func bestConfidence(candidates []Candidate) float64 {
	best := 0.0
	for _, c := range candidates {
		if c.Confidence > best {
			best = c.Confidence
		}
	}
	return best
}

// mergeCandidates unions two candidate lists, keeping the higher-confidence
// entry per patient. Ordering is left to the caller's sort.
func mergeCandidates(a, b []Candidate) []Candidate {
	byPatient := make(map[string]Candidate, len(a)+len(b))
	for _, c := range append(a, b...) {
		if prev, ok := byPatient[c.Patient.ID]; !ok || c.Confidence > prev.Confidence {
			byPatient[c.Patient.ID] = c
		}
	}
	out := make([]Candidate, 0, len(byPatient))
	for _, c := range byPatient {
		out = append(out, c)
	}
	return out
}

func (r *Resolver) scoreAll(extractedName, extractedID string, ents extract.Entities, rawText string, patients []directory.Patient) []Candidate {
	rawDigits := digitsOnly(rawText)
	var out []Candidate
	for _, p := range patients {
		sig := r.score(extractedName, extractedID, ents, rawText, rawDigits, p)
		conf := weightName*sig.Name +
			weightTokenOverlap*sig.TokenOverlap +
			weightNameOrder*sig.NameOrder +
			weightNationalID*sig.NationalID +
			weightBirthDate*sig.BirthDate +
			weightPhone*sig.Phone
		if conf > 1.0 {
			conf = 1.0
		}
		if conf < LowThreshold {
			continue
		}
		out = append(out, Candidate{Patient: p, Confidence: conf, Signals: sig})
	}
	return out
}

func (r *Resolver) score(extractedName, extractedID string, ents extract.Entities, rawText, rawDigits string, p directory.Patient) Signals {
	var sig Signals
	patientName := Normalize(p.FullName())

	if extractedName != "" && patientName != "" {
		sig.Name = NameSimilarity(extractedName, patientName)
		sig.TokenOverlap = exactTokenOverlap(extractedName, patientName)
		sig.NameOrder = nameOrderScore(extractedName, patientName)
	}
	if extractedID != "" && extractedID == p.NationalID {
		sig.NationalID = 1.0
	}
	if p.BirthDate != "" {
		for _, d := range ents.Dates {
			if d.ISO == p.BirthDate {
				sig.BirthDate = 1.0
				break
			}
		}
	}
	if last7 := phoneLast7(p.Phone); last7 != "" && strings.Contains(rawDigits, last7) {
		sig.Phone = 1.0
	}
	return sig
}

// exactTokenOverlap is the fraction of extracted tokens found verbatim among
// the patient's tokens.
func exactTokenOverlap(extracted, patient string) float64 {
	ta := strings.Fields(extracted)
	if len(ta) == 0 {
		return 0
	}
	tb := map[string]bool{}
	for _, t := range strings.Fields(patient) {
		tb[t] = true
	}
	hits := 0
	for _, t := range ta {
		if tb[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(ta))
}

// nameOrderScore rewards names whose tokens appear in the same order. It
// only applies when both names have the same token count, and counts the
// fraction of position-aligned tokens that are near-identical.
func nameOrderScore(extracted, patient string) float64 {
	ta := strings.Fields(extracted)
	tb := strings.Fields(patient)
	if len(ta) == 0 || len(ta) != len(tb) {
		return 0
	}
	aligned := 0
	for i := range ta {
		if levenshteinRatio(ta[i], tb[i]) > orderTokenThreshold {
			aligned++
		}
	}
	return float64(aligned) / float64(len(ta))
}

func phoneLast7(phone string) string {
	d := digitsOnly(phone)
	if len(d) < 7 {
		return ""
	}
	return d[len(d)-7:]
}

// fallbackSearch is the last resort when extraction produced neither a name
// nor a national id: look for patient name tokens directly in the raw OCR
// text. A full-name hit lands in the medium tier, a single long surname or
// first-name hit in the low tier.
func (r *Resolver) fallbackSearch(rawText string, patients []directory.Patient) []Candidate {
	text := Normalize(rawText)
	if text == "" {
		return nil
	}
	var out []Candidate
	for _, p := range patients {
		tokens := strings.Fields(Normalize(p.FullName()))
		hits := 0
		longHit := false
		for _, tok := range tokens {
			if len([]rune(tok)) < 3 {
				continue
			}
			if containsToken(text, tok) {
				hits++
				if len([]rune(tok)) >= 4 {
					longHit = true
				}
			}
		}
		var conf float64
		switch {
		case len(tokens) > 1 && hits == len(tokens):
			conf = 0.30
		case longHit:
			conf = 0.20
		default:
			continue
		}
		sig := Signals{Name: conf}
		out = append(out, Candidate{Patient: p, Confidence: conf, Signals: sig})
	}
	if len(out) > 0 {
		r.logger.Debug("fallback keyword search produced candidates", "count", len(out))
	}
	return out
}

// containsToken reports whether tok occurs as a whole whitespace-delimited
// token in text.
func containsToken(text, tok string) bool {
	for _, f := range strings.Fields(text) {
		if f == tok {
			return true
		}
	}
	return false
}
