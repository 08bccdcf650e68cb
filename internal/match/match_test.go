package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xear-health/docflow/internal/directory"
	"github.com/xear-health/docflow/internal/extract"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ALİ VELİ", "ali veli"},
		{"Gülşah ÇAĞLAR", "gulsah caglar"},
		{"  Ahmet   Yılmaz ", "ahmet yilmaz"},
		{"AL1 VEL1", "ali veli"}, // OCR digit confusion
		{"IŞIL", "isil"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestLevenshteinRatio(t *testing.T) {
	assert.Equal(t, 1.0, levenshteinRatio("kaya", "kaya"))
	assert.Equal(t, 1.0, levenshteinRatio("", ""))
	assert.Equal(t, 0.0, levenshteinRatio("abc", ""))
	assert.InDelta(t, 0.75, levenshteinRatio("kaya", "kaja"), 1e-9)
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, jaroWinkler("mehmet", "mehmet"))
	assert.Equal(t, 0.0, jaroWinkler("abc", "xyz"))
	// Shared prefix outranks same-distance suffix edits.
	prefix := jaroWinkler("mehmet", "mehmed")
	suffix := jaroWinkler("mehmet", "behmet")
	assert.Greater(t, prefix, suffix)
}

func TestTokenPairingSimilarity_OrderIndependent(t *testing.T) {
	straight := tokenPairingSimilarity("ali veli", "ali veli")
	swapped := tokenPairingSimilarity("veli ali", "ali veli")
	assert.Equal(t, 1.0, straight)
	assert.Equal(t, 1.0, swapped)
}

func TestLCSRatio(t *testing.T) {
	assert.Equal(t, 1.0, lcsRatio("ayse", "ayse"))
	assert.InDelta(t, 0.5, lcsRatio("ab", "axbx"), 1e-9)
}

func TestNameSimilarity_SwappedTokensStayHigh(t *testing.T) {
	exact := NameSimilarity("ali veli", "ali veli")
	swapped := NameSimilarity("veli ali", "ali veli")
	assert.Equal(t, 1.0, exact)
	assert.Greater(t, swapped, 0.5)
}

func testPatients() []directory.Patient {
	return []directory.Patient{
		{ID: "p-001", FirstName: "Ali", LastName: "Veli", NationalID: "12345678950", BirthDate: "1985-03-15", Phone: "+90 532 111 22 33"},
		{ID: "p-002", FirstName: "Ayşe", LastName: "Demir", NationalID: "10000000146", BirthDate: "1990-07-01"},
		{ID: "p-003", FirstName: "Mehmet", LastName: "Kaya"},
	}
}

func TestResolve_NameAndIDMatchIsHighTier(t *testing.T) {
	r := NewResolver(nil)
	ents := extract.Entities{
		Name:       &extract.NameCandidate{Text: "ALİ VELİ", Confidence: 0.9},
		NationalID: &extract.IDCandidate{Text: "12345678950", Valid: true},
	}
	res := r.Resolve(ents, "HASTA ADI SOYADI: ALİ VELİ\nTC: 12345678950", testPatients())

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "p-001", best.Patient.ID)
	assert.Equal(t, TierHigh, res.Tier)
	assert.GreaterOrEqual(t, best.Confidence, HighThreshold)
	assert.Equal(t, 1.0, best.Signals.NationalID)
	assert.Equal(t, 1.0, best.Signals.Name)
}

func TestResolve_BirthDateAndPhoneSignals(t *testing.T) {
	r := NewResolver(nil)
	ents := extract.Entities{
		Name:  &extract.NameCandidate{Text: "Ayşe Demir", Confidence: 0.8},
		Dates: []extract.DateCandidate{{Raw: "01.07.1990", ISO: "1990-07-01", Role: extract.DateRoleBirth}},
	}
	res := r.Resolve(ents, "Ayşe Demir 01.07.1990", testPatients())

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "p-002", best.Patient.ID)
	assert.Equal(t, 1.0, best.Signals.BirthDate)
	assert.Equal(t, 0.0, best.Signals.Phone)
}

func TestResolve_PhoneLast7(t *testing.T) {
	r := NewResolver(nil)
	ents := extract.Entities{Name: &extract.NameCandidate{Text: "Ali Veli"}}
	res := r.Resolve(ents, "İletişim: 0532 111 22 33", testPatients())

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "p-001", best.Patient.ID)
	assert.Equal(t, 1.0, best.Signals.Phone)
}

func TestResolve_InstitutionalTextOnlyYieldsNone(t *testing.T) {
	r := NewResolver(nil)
	raw := "SOSYAL GÜVENLİK KURUMU\nSAĞLIK HİZMETLERİ GENEL MÜDÜRLÜĞÜ\nİŞİTME CİHAZI REÇETESİ"
	res := r.Resolve(extract.Entities{}, raw, testPatients())

	assert.Equal(t, TierNone, res.Tier)
	assert.Empty(t, res.Candidates)
}

func TestResolve_InstitutionalNameIsIgnored(t *testing.T) {
	r := NewResolver(nil)
	// A bogus candidate that slipped through extraction must not be scored
	// as a person name.
	ents := extract.Entities{Name: &extract.NameCandidate{Text: "SOSYAL GÜVENLİK"}}
	res := r.Resolve(ents, "SOSYAL GÜVENLİK KURUMU", testPatients())
	assert.Equal(t, TierNone, res.Tier)
}

func TestResolve_FallbackKeywordSearch(t *testing.T) {
	r := NewResolver(nil)
	// No extracted entities, but the raw text mentions the patient.
	res := r.Resolve(extract.Entities{}, "sevk formu mehmet kaya poliklinik", testPatients())

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "p-003", best.Patient.ID)
	assert.Equal(t, TierMedium, res.Tier)
}

func TestResolve_FallbackRescuesWeakScoredPass(t *testing.T) {
	r := NewResolver(nil)
	// OCR mangled the extracted name beyond recognition, but the raw text
	// still carries the patient's full name verbatim.
	ents := extract.Entities{Name: &extract.NameCandidate{Text: "Qqqq Zzzz", Confidence: 0.7}}
	res := r.Resolve(ents, "SEVK FORMU\nMEHMET KAYA\nPROTOKOL 123", testPatients())

	best, ok := res.Best()
	require.True(t, ok)
	assert.Equal(t, "p-003", best.Patient.ID)
	assert.Equal(t, TierMedium, res.Tier)
	assert.InDelta(t, 0.30, best.Confidence, 1e-9)
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(nil)
	ents := extract.Entities{Name: &extract.NameCandidate{Text: "Ali Veli"}}
	first := r.Resolve(ents, "Ali Veli", testPatients())
	for i := 0; i < 5; i++ {
		again := r.Resolve(ents, "Ali Veli", testPatients())
		require.Len(t, again.Candidates, len(first.Candidates))
		for j := range again.Candidates {
			assert.Equal(t, first.Candidates[j].Patient.ID, again.Candidates[j].Patient.ID)
			assert.Equal(t, first.Candidates[j].Confidence, again.Candidates[j].Confidence)
		}
	}
}

func TestResolve_OnePerPatientAndSorted(t *testing.T) {
	r := NewResolver(nil)
	ents := extract.Entities{Name: &extract.NameCandidate{Text: "Ali Veli"}}
	res := r.Resolve(ents, "Ali Veli", testPatients())

	seen := map[string]bool{}
	prev := 2.0
	for _, c := range res.Candidates {
		assert.False(t, seen[c.Patient.ID], "duplicate patient %s", c.Patient.ID)
		seen[c.Patient.ID] = true
		assert.LessOrEqual(t, c.Confidence, prev)
		prev = c.Confidence
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierHigh, tierFor(0.40))
	assert.Equal(t, TierMedium, tierFor(0.39))
	assert.Equal(t, TierMedium, tierFor(0.25))
	assert.Equal(t, TierLow, tierFor(0.15))
	assert.Equal(t, TierNone, tierFor(0.14))
}
