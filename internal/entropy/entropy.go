// Package entropy inspects the payload envelope before anything is written.
// The envelope check is hard (wrong app id means the request is not from the
// client at all); the statistical check is a softer second line that flags
// payloads which do not look like ciphertext.
package entropy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrEnvelopeInvalid covers parse failures and app id mismatches.
	ErrEnvelopeInvalid = errors.New("invalid payload envelope")
	// ErrSuspiciousPayload is returned when the entropy ratio falls outside
	// the acceptance interval.
	ErrSuspiciousPayload = errors.New("payload entropy outside accepted range")
)

// Envelope is the structured wrapper the client puts around its ciphertext.
type Envelope struct {
	AppID     string `json:"appId"`
	Encrypted string `json:"encrypted"`
}

// AnalysisResult reports what the detector saw. EntropyRatio is normalized
// Shannon entropy in [0,1]; it is 0 when the payload was too small to score.
type AnalysisResult struct {
	EntropyRatio float64
	Passed       bool
	PayloadSize  int
	Warning      string
}

// Config tunes the detector. MinRatio/MaxRatio bound the acceptance interval
// and MinSizeBytes is the smallest decoded payload worth scoring.
type Config struct {
	ExpectedAppID string
	MinRatio      float64
	MaxRatio      float64
	MinSizeBytes  int
}

// Detector is stateless and safe for concurrent use.
type Detector struct {
	conf Config
}

func NewDetector(conf Config) *Detector {
	return &Detector{conf: conf}
}

// Analyze parses rawPayload as an Envelope, verifies the app id, decodes the
// ciphertext and scores its byte distribution. Envelope problems return
// ErrEnvelopeInvalid; a ratio outside the acceptance interval returns
// ErrSuspiciousPayload together with the result that carries the warning.
func (d *Detector) Analyze(rawPayload string) (AnalysisResult, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(rawPayload), &env); err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}

	if env.AppID != d.conf.ExpectedAppID {
		return AnalysisResult{}, fmt.Errorf("%w: unexpected app id", ErrEnvelopeInvalid)
	}

	if env.Encrypted == "" {
		return AnalysisResult{}, fmt.Errorf("%w: empty ciphertext", ErrEnvelopeInvalid)
	}

	decoded, err := decodeBase64Lenient(env.Encrypted)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: ciphertext is not base64", ErrEnvelopeInvalid)
	}

	result := AnalysisResult{
		PayloadSize: len(decoded),
		Passed:      true,
	}

	// Too small a sample makes the entropy estimate meaningless.
	if len(decoded) < d.conf.MinSizeBytes {
		return result, nil
	}

	result.EntropyRatio = shannonRatio(decoded)

	if result.EntropyRatio < d.conf.MinRatio {
		result.Passed = false
		result.Warning = fmt.Sprintf("low entropy (%.3f < %.3f): payload does not look encrypted", result.EntropyRatio, d.conf.MinRatio)
		return result, ErrSuspiciousPayload
	}

	if d.conf.MaxRatio < 1.0 && result.EntropyRatio > d.conf.MaxRatio {
		result.Passed = false
		result.Warning = fmt.Sprintf("high entropy (%.3f > %.3f): payload looks like random padding", result.EntropyRatio, d.conf.MaxRatio)
		return result, ErrSuspiciousPayload
	}

	return result, nil
}

// decodeBase64Lenient accepts both the standard and URL-safe alphabets and
// repairs missing padding before decoding.
func decodeBase64Lenient(s string) ([]byte, error) {
	s = strings.TrimSpace(s)

	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}

	return base64.URLEncoding.DecodeString(s)
}

// shannonRatio computes -Σ p·log2(p) over a 256-bin byte histogram and
// normalizes by 8 bits.
func shannonRatio(data []byte) float64 {
	var histogram [256]int
	for _, b := range data {
		histogram[b]++
	}

	total := float64(len(data))
	var entropy float64
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	return entropy / 8.0
}
