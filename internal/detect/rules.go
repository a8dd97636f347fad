package detect

// Canonical service keys.
const (
	KeyOpenAccount      = "OPEN_ACCOUNT"
	KeyATMReplacement   = "ATM_REPLACEMENT"
	KeyMBCARegistration = "MBCA_REGISTRATION"
)

// DefaultRules returns the built-in rule set for the branch services.
// Keyword phrases are Indonesian, matching what customers actually say at
// the desk; weights are flat per keyword and sum toward the lock threshold.
func DefaultRules() []ServiceRule {
	return []ServiceRule{
		{
			Key:           KeyOpenAccount,
			ServiceID:     "SV0001",
			Label:         "Pembukaan Rekening",
			LockThreshold: 0.65,
			Keywords: []Keyword{
				{Phrase: "buka rekening", Weight: 0.4},
				{Phrase: "pembukaan rekening", Weight: 0.4},
				{Phrase: "buat rekening", Weight: 0.4},
				{Phrase: "rekening baru", Weight: 0.35},
				{Phrase: "tahapan", Weight: 0.3},
				{Phrase: "tabungan", Weight: 0.3},
				{Phrase: "nasabah baru", Weight: 0.3},
			},
		},
		{
			Key:           KeyATMReplacement,
			ServiceID:     "SV0002",
			Label:         "Penggantian Kartu ATM",
			LockThreshold: 0.65,
			Keywords: []Keyword{
				{Phrase: "kartu atm", Weight: 0.35},
				{Phrase: "ganti kartu", Weight: 0.4},
				{Phrase: "kartu hilang", Weight: 0.4},
				{Phrase: "kartu rusak", Weight: 0.4},
				{Phrase: "kartu tertelan", Weight: 0.4},
			},
		},
		{
			// Short product-name keywords are easy to mis-hear, so this
			// service requires a higher bar before locking.
			Key:           KeyMBCARegistration,
			ServiceID:     "SV0003",
			Label:         "Pendaftaran m-BCA",
			LockThreshold: 0.75,
			Keywords: []Keyword{
				{Phrase: "mbca", Weight: 0.4},
				{Phrase: "daftar mbca", Weight: 0.45},
				{Phrase: "bca mobile", Weight: 0.4},
				{Phrase: "mobile banking", Weight: 0.35},
				{Phrase: "pendaftaran mbca", Weight: 0.45},
			},
		},
	}
}

// defaultCorrections maps recurring ASR mis-transcriptions of the m-BCA
// product name onto its canonical token.
func defaultCorrections() []correction {
	return []correction{
		{from: "m bca", to: "mbca"},
		{from: "m bj ai", to: "mbca"},
		{from: "bj ai", to: "mbca"},
		{from: "em bca", to: "mbca"},
		{from: "m b c a", to: "mbca"},
	}
}
