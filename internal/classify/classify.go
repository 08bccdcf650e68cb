// Package classify assigns a document type to OCR text using an ordered
// battery of keyword rules. An optional delegate (typically an external NLP
// service) can refine the decision for confidently classified documents.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// Document types, from most to least specific.
const (
	TypeBatteryPrescription    = "battery-prescription"
	TypeDevicePrescription     = "device-prescription"
	TypePrescription           = "prescription"
	TypeAudiometryReport       = "audiometry-report"
	TypeEligibilityCertificate = "eligibility-certificate"
	TypeMedicalReport          = "medical-report"
	TypeOther                  = "other"
)

// Classification is a typed verdict with a confidence in (0, 1].
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Rule       string  `json:"rule,omitempty"`
}

// Delegate refines a rule-based classification, e.g. via an NLP service.
// Returning ok=false keeps the rule-based verdict.
type Delegate interface {
	Refine(ctx context.Context, text string, initial Classification) (Classification, bool, error)
}

// rule is one keyword battery entry. Earlier rules win: more specific
// phrases must come before their generic substrings (a battery prescription
// also contains "reçete").
type rule struct {
	docType    string
	confidence float64
	// all groups must hit; within a group any keyword suffices
	groups [][]string
}

var rules = []rule{
	{TypeBatteryPrescription, 0.95, [][]string{{"pil", "batarya"}, {"reçete", "recete"}}},
	{TypeDevicePrescription, 0.95, [][]string{{"cihaz"}, {"reçete", "recete"}}},
	{TypePrescription, 0.85, [][]string{{"reçete", "recete", "ilaç", "ilac"}}},
	{TypeAudiometryReport, 0.90, [][]string{{"odyometri", "odyometre", "işitme testi", "isitme testi"}}},
	{TypeEligibilityCertificate, 0.85, [][]string{{"cihaz raporu", "sgk", "sosyal güvenlik"}}},
	{TypeMedicalReport, 0.80, [][]string{{"rapor", "muayene", "bulgular"}}},
}

// delegateThreshold: delegate verdicts at or below this confidence are
// discarded in favor of the rule battery.
const delegateThreshold = 0.3

// filenameHints maps filename fragments to a weak fallback type used when
// the text matched no rule. Checked in order so that "pil_recete.jpg" hits
// the battery type, not the generic prescription.
var filenameHints = []struct {
	fragment string
	docType  string
}{
	{"pil", TypeBatteryPrescription},
	{"odyo", TypeAudiometryReport},
	{"recete", TypePrescription},
	{"rapor", TypeMedicalReport},
}

// Classifier classifies documents by keyword rules, optionally refined by a
// delegate.
type Classifier struct {
	delegate Delegate
	logger   *slog.Logger
}

// New creates a classifier. Both arguments may be nil.
func New(delegate Delegate, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{delegate: delegate, logger: logger}
}

// Classify labels the OCR text. When a delegate is configured it gets first
// say: its verdict is adopted whenever its confidence clears delegateThreshold.
// The rule battery covers everything else, with the filename as a weak
// secondary signal when no rule matched. Delegate failures are logged and the
// rule verdict kept, so classification never fails.
func (c *Classifier) Classify(ctx context.Context, text, filename string) Classification {
	verdict := classifyText(text)
	if verdict.Type == TypeOther {
		if hinted, ok := classifyFilename(filename); ok {
			verdict = hinted
		}
	}
	if c.delegate != nil {
		refined, ok, err := c.delegate.Refine(ctx, text, verdict)
		switch {
		case err != nil:
			c.logger.Warn("classification delegate failed, keeping rule verdict",
				"type", verdict.Type, "error", err)
		case ok && refined.Confidence > delegateThreshold:
			c.logger.Debug("delegate classified document",
				"from", verdict.Type, "to", refined.Type)
			verdict = refined
		}
	}
	return verdict
}

func classifyText(text string) Classification {
	lower := strings.ToLowerSpecial(unicode.TurkishCase, text)
	for _, r := range rules {
		if matchesAllGroups(lower, r.groups) {
			return Classification{Type: r.docType, Confidence: r.confidence, Rule: r.docType}
		}
	}
	return Classification{Type: TypeOther, Confidence: 0.1}
}

func matchesAllGroups(lower string, groups [][]string) bool {
	for _, group := range groups {
		hit := false
		for _, kw := range group {
			if strings.Contains(lower, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func classifyFilename(filename string) (Classification, bool) {
	lower := strings.ToLowerSpecial(unicode.TurkishCase, filename)
	for _, hint := range filenameHints {
		if strings.Contains(lower, hint.fragment) {
			// filename-only evidence stays below the delegate threshold
			return Classification{Type: hint.docType, Confidence: 0.3, Rule: "filename"}, true
		}
	}
	return Classification{}, false
}
