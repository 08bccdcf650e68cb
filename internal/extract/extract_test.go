package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTCKN(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"12345678950", true},
		{"10000000146", true},
		{"12345678901", false},
		{"00345678950", false}, // leading zero
		{"1234567895", false},  // too short
		{"123456789501", false},
		{"1234567895a", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateTCKN(tt.id))
		})
	}
}

func TestValidateTCKN_ReferenceFormula(t *testing.T) {
	// Every valid ID must satisfy the mod-11 reference formula; spot-check
	// by brute-forcing the two check digits for a handful of stems.
	stems := []string{"123456789", "987654321", "555555555", "100000001"}
	for _, stem := range stems {
		found := 0
		for d10 := 0; d10 < 10; d10++ {
			for d11 := 0; d11 < 10; d11++ {
				id := stem + string(rune('0'+d10)) + string(rune('0'+d11))
				if ValidateTCKN(id) {
					found++
				}
			}
		}
		// Exactly one (d10, d11) pair satisfies the checksum.
		assert.Equal(t, 1, found, "stem %s", stem)
	}
}

func TestExtract_UppercaseNameAndID(t *testing.T) {
	e := Extract("ALİ VELİ\nTC: 12345678950\nReçete")

	require.NotNil(t, e.Name)
	assert.Equal(t, "ALİ VELİ", e.Name.Text)
	assert.Greater(t, e.Name.Confidence, 0.5)

	require.NotNil(t, e.NationalID)
	assert.Equal(t, "12345678950", e.NationalID.Text)
	assert.True(t, e.NationalID.Valid)
}

func TestExtract_LabeledName(t *testing.T) {
	e := Extract("HASTA ADI SOYADI: Ahmet Yılmaz\nTarih: 01.02.2024")

	require.NotNil(t, e.Name)
	assert.Equal(t, "Ahmet Yılmaz", e.Name.Text)
}

func TestExtract_InstitutionalTextYieldsNoName(t *testing.T) {
	e := Extract("SOSYAL GÜVENLİK KURUMU RAPORU")
	assert.Nil(t, e.Name)
}

func TestExtract_InvalidChecksumDropsID(t *testing.T) {
	e := Extract("TC: 12345678901")
	assert.Nil(t, e.NationalID)
}

func TestExtract_Dates(t *testing.T) {
	text := "Doğum Tarihi: 15.03.1980\nRapor Tarihi: 2024-01-20\nGeçersiz: 31.02.2020"
	e := Extract(text)

	require.Len(t, e.Dates, 2)
	assert.Equal(t, "1980-03-15", e.Dates[0].ISO)
	assert.Equal(t, DateRoleBirth, e.Dates[0].Role)
	assert.Equal(t, "2024-01-20", e.Dates[1].ISO)
	assert.Equal(t, DateRoleDocument, e.Dates[1].Role)
}

func TestExtract_SlashDates(t *testing.T) {
	e := Extract("Tarih 05/11/2023")
	require.Len(t, e.Dates, 1)
	assert.Equal(t, "2023-11-05", e.Dates[0].ISO)
}

func TestExtract_EmptyText(t *testing.T) {
	e := Extract("")
	assert.Nil(t, e.Name)
	assert.Nil(t, e.NationalID)
	assert.Empty(t, e.Dates)
}

func TestLooksLikeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"two tokens", "Ali Veli", true},
		{"three tokens", "Mehmet Ali Kaya", true},
		{"single token", "Ali", false},
		{"too short", "A B", false},
		{"digits", "Ali 123", false},
		{"institutional", "Devlet Hastanesi", false},
		{"doctor prefix kept out", "Doktor Yılmaz", false},
		{"five tokens", "A B C D E", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeName(tt.in))
		})
	}
}

func TestIsInstitutionalText(t *testing.T) {
	assert.True(t, IsInstitutionalText("SOSYAL GÜVENLİK KURUMU"))
	assert.True(t, IsInstitutionalText("özel işitme merkezi"))
	assert.False(t, IsInstitutionalText("Ali Veli"))
}

func TestStripLabelTokens(t *testing.T) {
	assert.Equal(t, "Ali Veli", stripLabelTokens("HASTA ADI Ali Veli"))
	assert.Equal(t, "Ali Veli", stripLabelTokens("Ali Veli TC"))
}
