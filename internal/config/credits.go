package config

// CreditsConfig carries the pricing and grant policy for the credit ledger.
type CreditsConfig struct {
	// Cost per work-product kind, in credits.
	Costs map[string]int64

	// Credits granted per purchased pack (payment-provider webhook).
	PackCredits map[string]int64

	// One-time grant on identity-verification approval.
	FreePackCredits int64

	// Safety cap applied to guarantee refunds regardless of what the
	// reviewer requests.
	MaxRefundCredits int64

	// Days that must elapse after the first work-product before the
	// guarantee opens.
	GuaranteeDays int
}

// LoadCreditsConfig returns the pricing policy with env overrides applied.
func LoadCreditsConfig() *CreditsConfig {
	return &CreditsConfig{
		Costs: map[string]int64{
			"kit_full":         int64(getEnvAsInt("COST_FULL_KIT", 7)),
			"kit_cv_only":      int64(getEnvAsInt("COST_CV_ONLY", 3)),
			"kit_ats_only":     int64(getEnvAsInt("COST_ATS_ONLY", 1)),
			"kit_cover_only":   int64(getEnvAsInt("COST_COVER_ONLY", 2)),
			"cv_analyze":       int64(getEnvAsInt("COST_CV_ANALYZE", 2)),
			"candidate_search": int64(getEnvAsInt("COST_CANDIDATE_SEARCH", 1)),
		},
		PackCredits: map[string]int64{
			"pack_30":     30,
			"pack_100":    100,
			"pack_300":    300,
			"sub_starter": 50,
			"sub_pro":     200,
		},
		FreePackCredits:  int64(getEnvAsInt("FREE_PACK_CREDITS", 30)),
		MaxRefundCredits: int64(getEnvAsInt("MAX_REFUND_CREDITS", 100)),
		GuaranteeDays:    getEnvAsInt("GUARANTEE_DAYS", 7),
	}
}
