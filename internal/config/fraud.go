package config

import (
	"os"
	"strconv"
)

// FraudConfig carries the scoring policy. The numbers are policy constants,
// tuned against the heuristic scorer's bands, and overridable per deployment.
type FraudConfig struct {
	// Missing-artifact penalties.
	MissingDocFrontPenalty float64
	MissingDocBackPenalty  float64
	MissingVideoPenalty    float64

	// Artifact structural checks.
	DecodeErrorPenalty    float64
	MinDocSizeKB          float64
	MaxDocSizeKB          float64
	DocTooSmallPenalty    float64
	DocTooLargePenalty    float64
	BadFormatPenalty      float64
	DocEntropyFloor       float64 // bits/byte over the leading window
	VideoEntropyFloor     float64
	LowEntropyPenalty     float64
	VideoBadFormatPenalty float64
	VideoLowEntropyPen    float64

	// Video duration sanity.
	MinVideoDurationS    float64
	VideoTooShortPenalty float64
	MinVideoKBPerSecond  float64 // conservative bitrate floor
	SizeMismatchPenalty  float64

	// Cross-artifact + declared-name checks.
	IdenticalSourcePenalty float64
	FingerprintBytes       int
	SuspiciousNamePenalty  float64
	NoVowelPenalty         float64

	// Leading byte window fed to the entropy estimate.
	EntropyWindowBytes int

	// Recommendation bands.
	ApproveBelow float64
	RejectFrom   float64
}

// LoadFraudConfig returns the scoring policy with env overrides applied.
func LoadFraudConfig() *FraudConfig {
	return &FraudConfig{
		MissingDocFrontPenalty: getEnvAsFloat("FRAUD_MISSING_FRONT_PENALTY", 25),
		MissingDocBackPenalty:  getEnvAsFloat("FRAUD_MISSING_BACK_PENALTY", 15),
		MissingVideoPenalty:    getEnvAsFloat("FRAUD_MISSING_VIDEO_PENALTY", 20),
		DecodeErrorPenalty:     getEnvAsFloat("FRAUD_DECODE_ERROR_PENALTY", 20),
		MinDocSizeKB:           getEnvAsFloat("FRAUD_MIN_DOC_KB", 10),
		MaxDocSizeKB:           getEnvAsFloat("FRAUD_MAX_DOC_KB", 8000),
		DocTooSmallPenalty:     getEnvAsFloat("FRAUD_DOC_TOO_SMALL_PENALTY", 15),
		DocTooLargePenalty:     getEnvAsFloat("FRAUD_DOC_TOO_LARGE_PENALTY", 5),
		BadFormatPenalty:       getEnvAsFloat("FRAUD_BAD_FORMAT_PENALTY", 20),
		DocEntropyFloor:        getEnvAsFloat("FRAUD_DOC_ENTROPY_FLOOR", 2.5),
		VideoEntropyFloor:      getEnvAsFloat("FRAUD_VIDEO_ENTROPY_FLOOR", 3.0),
		LowEntropyPenalty:      getEnvAsFloat("FRAUD_LOW_ENTROPY_PENALTY", 20),
		VideoBadFormatPenalty:  getEnvAsFloat("FRAUD_VIDEO_BAD_FORMAT_PENALTY", 15),
		VideoLowEntropyPen:     getEnvAsFloat("FRAUD_VIDEO_LOW_ENTROPY_PENALTY", 15),
		MinVideoDurationS:      getEnvAsFloat("FRAUD_MIN_VIDEO_DURATION_S", 2),
		VideoTooShortPenalty:   getEnvAsFloat("FRAUD_VIDEO_TOO_SHORT_PENALTY", 15),
		MinVideoKBPerSecond:    getEnvAsFloat("FRAUD_MIN_VIDEO_KB_PER_S", 50),
		SizeMismatchPenalty:    getEnvAsFloat("FRAUD_SIZE_MISMATCH_PENALTY", 10),
		IdenticalSourcePenalty: getEnvAsFloat("FRAUD_IDENTICAL_SOURCE_PENALTY", 30),
		FingerprintBytes:       getEnvAsInt("FRAUD_FINGERPRINT_BYTES", 512),
		SuspiciousNamePenalty:  getEnvAsFloat("FRAUD_SUSPICIOUS_NAME_PENALTY", 10),
		NoVowelPenalty:         getEnvAsFloat("FRAUD_NO_VOWEL_PENALTY", 5),
		EntropyWindowBytes:     getEnvAsInt("FRAUD_ENTROPY_WINDOW_BYTES", 4096),
		ApproveBelow:           getEnvAsFloat("FRAUD_APPROVE_BELOW", 30),
		RejectFrom:             getEnvAsFloat("FRAUD_REJECT_FROM", 65),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
