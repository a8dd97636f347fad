package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	assert.Equal(t, "mau buka rekening dong", d.Normalize("Mau BUKA rekening, dong!"))
	assert.Equal(t, "halo pak", d.Normalize("  halo\t\npak  "))
	assert.Equal(t, "daftar mbca", d.Normalize("daftar m-BCA"))
}

func TestNormalizeCorrectsASRVariants(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	for _, raw := range []string{
		"mau daftar m bca",
		"mau daftar m bj ai",
		"mau daftar bj ai",
		"mau daftar em bca",
		"mau daftar m b c a",
	} {
		assert.Equal(t, "mau daftar mbca", d.Normalize(raw), "input %q", raw)
	}
}

func TestDetectSumsKeywordWeights(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	det := d.Detect("selamat pagi, saya mau pembukaan rekening tahapan")
	require.Equal(t, KeyOpenAccount, det.ServiceKey)
	assert.Equal(t, "SV0001", det.ServiceID)
	assert.Equal(t, "Pembukaan Rekening", det.Label)
	assert.InDelta(t, 0.7, det.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"pembukaan rekening", "tahapan"}, det.Matched)
	assert.True(t, d.ShouldLock(det.ServiceKey, det.Confidence))
}

func TestDetectClampsConfidence(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	det := d.Detect("buka rekening baru, pembukaan rekening tahapan tabungan untuk nasabah baru")
	require.Equal(t, KeyOpenAccount, det.ServiceKey)
	assert.Equal(t, 1.0, det.Confidence)
}

func TestDetectBelowThresholdDoesNotLock(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	det := d.Detect("berapa biaya tabungan di sini")
	require.Equal(t, KeyOpenAccount, det.ServiceKey)
	assert.InDelta(t, 0.3, det.Confidence, 1e-9)
	assert.False(t, d.ShouldLock(det.ServiceKey, det.Confidence))
}

func TestDetectTieBreaksByDeclarationOrder(t *testing.T) {
	t.Parallel()

	d := NewDetector([]ServiceRule{
		{Key: "A", ServiceID: "SV000A", Label: "A", LockThreshold: 0.5,
			Keywords: []Keyword{{Phrase: "halo", Weight: 0.4}}},
		{Key: "B", ServiceID: "SV000B", Label: "B", LockThreshold: 0.5,
			Keywords: []Keyword{{Phrase: "halo", Weight: 0.4}}},
	})

	det := d.Detect("halo halo")
	assert.Equal(t, "A", det.ServiceKey)
}

func TestDetectMatchesTokenBoundaries(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	// "tabungan" inside a longer word is not a keyword hit.
	det := d.Detect("itu soal ketabunganan")
	assert.Empty(t, det.ServiceKey)
	assert.Zero(t, det.Confidence)
}

func TestDetectMBCAAfterCorrection(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	det := d.Detect("saya mau daftar m bj ai untuk mobile banking")
	require.Equal(t, KeyMBCARegistration, det.ServiceKey)
	assert.Equal(t, "SV0003", det.ServiceID)
	// "mbca" + "daftar mbca" + "mobile banking" = 0.4 + 0.45 + 0.35, clamped.
	assert.Equal(t, 1.0, det.Confidence)
	assert.True(t, d.ShouldLock(det.ServiceKey, det.Confidence))
}

func TestDetectHigherBarForMBCA(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	det := d.Detect("apakah bca mobile bisa transfer")
	require.Equal(t, KeyMBCARegistration, det.ServiceKey)
	assert.InDelta(t, 0.4, det.Confidence, 1e-9)
	assert.False(t, d.ShouldLock(det.ServiceKey, det.Confidence))
}

func TestDetectEmptyAndUnmatchedText(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())

	assert.Zero(t, d.Detect(""))
	assert.Zero(t, d.Detect("   \t  "))
	assert.Zero(t, d.Detect("cuaca hari ini cerah sekali"))
}

func TestDetectIsDeterministic(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())
	text := "mau ganti kartu, kartu atm saya tertelan di mesin"

	first := d.Detect(text)
	require.Equal(t, KeyATMReplacement, first.ServiceKey)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Detect(text))
	}
}

func TestShouldLockUnknownKey(t *testing.T) {
	t.Parallel()

	d := NewDetector(DefaultRules())
	assert.False(t, d.ShouldLock("NO_SUCH_SERVICE", 1.0))
}
