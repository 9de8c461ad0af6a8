package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math"
	"strings"

	"github.com/careerforge/backend/internal/config"
)

// Recommendation bands mapped from the numeric score.
const (
	RecommendApprove      = "approve"
	RecommendManualReview = "manual_review"
	RecommendReject       = "reject"
)

// FraudInput carries the submitted artifacts as the base64 payload the
// capture client sent (data-URL prefixes tolerated). A payload that fails to
// decode is scored as a fraud signal, never treated as "no opinion".
type FraudInput struct {
	DocFront       string
	DocBack        string
	Video          string
	VideoDurationS float64 // client-reported; <= 0 means unreported
	DeclaredName   string
}

// FraudReport is a 0-100 suspicion estimate with human-readable flags.
type FraudReport struct {
	Score          float64  `json:"fraud_score"`
	Flags          []string `json:"flags"`
	Recommendation string   `json:"recommendation"`
}

// FraudAnalyser lets the state machine swap the structural heuristics for a
// real OCR/face-match/liveness vendor without touching transitions.
type FraudAnalyser interface {
	Analyse(in FraudInput) FraudReport
}

// FraudService scores identity artifacts from structural signals alone:
// presence, size plausibility, container magic bytes, byte entropy, duration
// consistency, and cross-artifact fingerprints. Deterministic and explainable;
// no vendor call.
type FraudService struct {
	cfg *config.FraudConfig
}

func NewFraudService(cfg *config.FraudConfig) *FraudService {
	if cfg == nil {
		cfg = config.LoadFraudConfig()
	}
	return &FraudService{cfg: cfg}
}

// Analyse runs all heuristic checks and returns a consolidated report.
// Penalties are additive, clamped to [0, 100].
func (s *FraudService) Analyse(in FraudInput) FraudReport {
	flags := []string{}
	score := 0.0

	if in.DocFront == "" {
		flags = append(flags, "missing_doc_front")
		score += s.cfg.MissingDocFrontPenalty
	} else {
		p, f := s.checkDocument(in.DocFront, "front")
		score += p
		flags = append(flags, f...)
	}

	if in.DocBack == "" {
		flags = append(flags, "missing_doc_back")
		score += s.cfg.MissingDocBackPenalty
	} else {
		p, f := s.checkDocument(in.DocBack, "back")
		score += p
		flags = append(flags, f...)
	}

	if in.Video == "" {
		flags = append(flags, "missing_liveness_video")
		score += s.cfg.MissingVideoPenalty
	} else {
		p, f := s.checkVideo(in.Video, in.VideoDurationS)
		score += p
		flags = append(flags, f...)
	}

	p, f := s.crossCheck(in.DocFront, in.Video, in.DeclaredName)
	score += p
	flags = append(flags, f...)

	score = math.Min(score, 100)
	score = math.Round(score*10) / 10

	recommendation := RecommendReject
	switch {
	case score < s.cfg.ApproveBelow:
		recommendation = RecommendApprove
	case score < s.cfg.RejectFrom:
		recommendation = RecommendManualReview
	}

	return FraudReport{Score: score, Flags: flags, Recommendation: recommendation}
}

func (s *FraudService) checkDocument(b64, side string) (float64, []string) {
	data, err := DecodeArtifact(b64)
	if err != nil {
		return s.cfg.DecodeErrorPenalty, []string{"doc_" + side + "_decode_error"}
	}

	var flags []string
	penalty := 0.0
	sizeKB := float64(len(data)) / 1024

	// Too small is a placeholder or a thumbnail; too large smells of padding.
	if sizeKB < s.cfg.MinDocSizeKB {
		flags = append(flags, "doc_"+side+"_suspiciously_small")
		penalty += s.cfg.DocTooSmallPenalty
	}
	if sizeKB > s.cfg.MaxDocSizeKB {
		flags = append(flags, "doc_"+side+"_suspiciously_large")
		penalty += s.cfg.DocTooLargePenalty
	}

	if !hasImageMagic(data) {
		flags = append(flags, "doc_"+side+"_invalid_format")
		penalty += s.cfg.BadFormatPenalty
	}

	// Near-uniform bytes mean a solid-colour fake, not a photograph.
	if byteEntropy(leading(data, s.cfg.EntropyWindowBytes)) < s.cfg.DocEntropyFloor {
		flags = append(flags, "doc_"+side+"_low_entropy")
		penalty += s.cfg.LowEntropyPenalty
	}

	return penalty, flags
}

func (s *FraudService) checkVideo(b64 string, durationS float64) (float64, []string) {
	data, err := DecodeArtifact(b64)
	if err != nil {
		return s.cfg.DecodeErrorPenalty, []string{"video_decode_error"}
	}

	var flags []string
	penalty := 0.0
	sizeKB := float64(len(data)) / 1024

	if durationS > 0 && durationS < s.cfg.MinVideoDurationS {
		flags = append(flags, "video_too_short")
		penalty += s.cfg.VideoTooShortPenalty
	}

	// A file far smaller than the declared duration could plausibly
	// encode points to fabricated metadata.
	if durationS > 0 && sizeKB < durationS*s.cfg.MinVideoKBPerSecond {
		flags = append(flags, "video_size_duration_mismatch")
		penalty += s.cfg.SizeMismatchPenalty
	}

	if !hasVideoMagic(data) {
		flags = append(flags, "video_invalid_format")
		penalty += s.cfg.VideoBadFormatPenalty
	}

	if byteEntropy(leading(data, s.cfg.EntropyWindowBytes)) < s.cfg.VideoEntropyFloor {
		flags = append(flags, "video_low_entropy")
		penalty += s.cfg.VideoLowEntropyPen
	}

	return penalty, flags
}

var placeholderNames = map[string]struct{}{
	"test": {}, "user": {}, "admin": {}, "demo": {}, "fake": {},
	"john doe": {}, "jane doe": {},
}

func (s *FraudService) crossCheck(docFrontB64, videoB64, declaredName string) (float64, []string) {
	var flags []string
	penalty := 0.0

	if docFrontB64 != "" && videoB64 != "" {
		docData, docErr := DecodeArtifact(docFrontB64)
		vidData, vidErr := DecodeArtifact(videoB64)
		if docErr == nil && vidErr == nil {
			// Identical leading bytes mean the same file was submitted
			// under both fields.
			docFP := sha256.Sum256(leading(docData, s.cfg.FingerprintBytes))
			vidFP := sha256.Sum256(leading(vidData, s.cfg.FingerprintBytes))
			if hex.EncodeToString(docFP[:]) == hex.EncodeToString(vidFP[:]) {
				flags = append(flags, "doc_and_video_identical_source")
				penalty += s.cfg.IdenticalSourcePenalty
			}
		}
	}

	if declaredName != "" {
		name := strings.ToLower(strings.TrimSpace(declaredName))
		if _, suspicious := placeholderNames[name]; suspicious || len(name) < 3 {
			flags = append(flags, "suspicious_declared_name")
			penalty += s.cfg.SuspiciousNamePenalty
		}
		if !strings.ContainsAny(name, "aeiouαεηιουω") {
			flags = append(flags, "name_has_no_vowels")
			penalty += s.cfg.NoVowelPenalty
		}
	}

	return penalty, flags
}

// DecodeArtifact decodes base64, stripping a data-URL prefix and fixing
// missing padding.
func DecodeArtifact(b64 string) ([]byte, error) {
	if idx := strings.IndexByte(b64, ','); idx >= 0 {
		b64 = b64[idx+1:]
	}
	if pad := len(b64) % 4; pad != 0 {
		b64 += strings.Repeat("=", 4-pad)
	}
	return base64.StdEncoding.DecodeString(b64)
}

func hasImageMagic(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xff, 0xd8}) || // JPEG
		bytes.HasPrefix(data, []byte("\x89PNG")) ||
		bytes.HasPrefix(data, []byte("RIFF"))
}

func hasVideoMagic(data []byte) bool {
	isMP4 := bytes.Contains(leading(data, 12), []byte("ftyp"))
	isWebM := bytes.HasPrefix(data, []byte{0x1a, 0x45, 0xdf, 0xa3})
	isMOV := len(data) >= 8 && (bytes.Equal(data[4:8], []byte("moov")) || bytes.Equal(data[4:8], []byte("wide")))
	return isMP4 || isWebM || isMOV
}

// byteEntropy returns the Shannon entropy of data in bits per byte.
func byteEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	entropy := 0.0
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func leading(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}
