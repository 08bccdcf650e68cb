package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_RuleBattery(t *testing.T) {
	c := New(nil, nil)
	tests := []struct {
		name string
		text string
		want string
	}{
		{"battery prescription", "İşitme cihazı pil reçetesi", TypeBatteryPrescription},
		{"battery via batarya", "BATARYA REÇETE", TypeBatteryPrescription},
		{"device prescription", "İşitme cihazı reçetesi düzenlenmiştir", TypeDevicePrescription},
		{"plain prescription", "REÇETE\nParol 500mg", TypePrescription},
		{"drug prescription", "İlaç listesi", TypePrescription},
		{"audiometry", "ODYOMETRİ TEST SONUÇLARI", TypeAudiometryReport},
		{"eligibility", "SGK işitme cihazı hak ediş belgesi", TypeEligibilityCertificate},
		{"medical report", "SAĞLIK KURULU RAPORU\nMuayene bulgular", TypeMedicalReport},
		{"no keywords", "lorem ipsum dolor", TypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.text, "")
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

// More specific rules must beat their generic substrings regardless of
// keyword positions in the text.
func TestClassify_SpecificityOrder(t *testing.T) {
	c := New(nil, nil)

	// mentions pil + cihaz + reçete: battery wins over device and plain
	got := c.Classify(context.Background(), "işitme cihazı pil reçetesi", "")
	assert.Equal(t, TypeBatteryPrescription, got.Type)

	// cihaz + reçete but no pil: device wins over plain prescription
	got = c.Classify(context.Background(), "cihaz reçetesi", "")
	assert.Equal(t, TypeDevicePrescription, got.Type)

	// rapor alone never outranks a prescription keyword
	got = c.Classify(context.Background(), "reçete ve rapor", "")
	assert.Equal(t, TypePrescription, got.Type)
}

func TestClassify_ConfidenceBands(t *testing.T) {
	c := New(nil, nil)
	high := c.Classify(context.Background(), "pil reçetesi", "")
	assert.InDelta(t, 0.95, high.Confidence, 1e-9)

	other := c.Classify(context.Background(), "tamamen alakasız metin", "")
	assert.Equal(t, TypeOther, other.Type)
	assert.InDelta(t, 0.1, other.Confidence, 1e-9)
}

func TestClassify_FilenameHintOnlyWhenTextUnmatched(t *testing.T) {
	c := New(nil, nil)

	// text matched nothing: filename fragment decides
	got := c.Classify(context.Background(), "okunamayan metin", "ali_veli_recete.jpg")
	assert.Equal(t, TypePrescription, got.Type)
	assert.InDelta(t, 0.3, got.Confidence, 1e-9)
	assert.Equal(t, "filename", got.Rule)

	// text verdict always beats the filename
	got = c.Classify(context.Background(), "odyometri sonucu", "recete.jpg")
	assert.Equal(t, TypeAudiometryReport, got.Type)
}

type stubDelegate struct {
	refined Classification
	ok      bool
	err     error
	calls   int
}

func (s *stubDelegate) Refine(_ context.Context, _ string, _ Classification) (Classification, bool, error) {
	s.calls++
	return s.refined, s.ok, s.err
}

func TestClassify_DelegateRefines(t *testing.T) {
	d := &stubDelegate{refined: Classification{Type: TypeMedicalReport, Confidence: 0.99}, ok: true}
	c := New(d, nil)
	got := c.Classify(context.Background(), "reçete", "")
	assert.Equal(t, TypeMedicalReport, got.Type)
	assert.Equal(t, 1, d.calls)
}

func TestClassify_DelegateErrorKeepsRuleVerdict(t *testing.T) {
	d := &stubDelegate{err: errors.New("connection refused")}
	c := New(d, nil)
	got := c.Classify(context.Background(), "pil reçetesi", "")
	assert.Equal(t, TypeBatteryPrescription, got.Type)
}

func TestClassify_DelegateDecidesWhenRulesMiss(t *testing.T) {
	d := &stubDelegate{refined: Classification{Type: TypeAudiometryReport, Confidence: 0.9}, ok: true}
	c := New(d, nil)
	got := c.Classify(context.Background(), "hiçbir anahtar kelime yok", "")
	assert.Equal(t, TypeAudiometryReport, got.Type)
	assert.Equal(t, 1, d.calls)
}

func TestClassify_WeakDelegateVerdictFallsBackToRules(t *testing.T) {
	d := &stubDelegate{refined: Classification{Type: TypeMedicalReport, Confidence: 0.2}, ok: true}
	c := New(d, nil)
	got := c.Classify(context.Background(), "pil reçetesi", "")
	assert.Equal(t, TypeBatteryPrescription, got.Type)
	assert.Equal(t, 1, d.calls)
}

func TestNLPDelegate_Refine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process", r.URL.Path)
		var req nlpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, TypePrescription, req.InitialType)
		json.NewEncoder(w).Encode(nlpResponse{Type: TypeDevicePrescription, Confidence: 0.97})
	}))
	defer srv.Close()

	d := NewNLPDelegate(srv.URL, 2*time.Second)
	got, ok, err := d.Refine(context.Background(), "cihaz reçetesi", Classification{Type: TypePrescription, Confidence: 0.85})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TypeDevicePrescription, got.Type)
}

func TestNLPDelegate_EmptyTypeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(nlpResponse{Type: "", Confidence: 0.9})
	}))
	defer srv.Close()

	d := NewNLPDelegate(srv.URL, 2*time.Second)
	_, ok, err := d.Refine(context.Background(), "metin", Classification{Type: TypePrescription, Confidence: 0.85})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNLPDelegate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewNLPDelegate(srv.URL, 2*time.Second)
	_, _, err := d.Refine(context.Background(), "metin", Classification{Type: TypePrescription, Confidence: 0.85})
	assert.Error(t, err)
}
