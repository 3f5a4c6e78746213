// Package faceid verifies probe face embeddings against a user's enrolled
// embeddings. Verification is a per-user majority vote over every stored
// sample, not a single best-distance comparison, so one bad enrollment shot
// does not fail the whole user.
package faceid

import (
	"math"

	"github.com/hearthd/hearth/logging"
	"github.com/hearthd/hearth/types"
)

// Log is used to log messages for the faceid package. Logs are disabled by
// default; use hearth/logging.SetLevelStr() to set log levels for all
// packages.
var Log = logging.Log.New("pkg", "faceid")

// Default thresholds, tuned against the enrolled embedding space.
const (
	DefaultOptimalThreshold    = 1.2 // max Euclidean distance for a single sample to count as a match
	DefaultConfidenceThreshold = 0.6 // min fraction of matching samples for a positive verdict
)

// A Verdict is the outcome of verifying a probe against one user's stored
// embeddings.
type Verdict struct {
	UserID      string  `json:"is_signed_person,omitempty"`
	IsMatch     bool    `json:"-"`
	Confidence  float64 `json:"confidence_score"`
	MinDistance float64 `json:"min_distance_found"`
}

// A Verifier scores probe embeddings.
type Verifier struct {
	OptimalThreshold    float64
	ConfidenceThreshold float64
}

// NewVerifier returns a Verifier with the default thresholds.
func NewVerifier() *Verifier {
	return &Verifier{
		OptimalThreshold:    DefaultOptimalThreshold,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Verify compares the probe against every stored embedding for userID.
// confidence = (samples within OptimalThreshold) / (total samples); the
// verdict is a match iff confidence reaches ConfidenceThreshold. The stored
// slice must be non-empty; the caller is responsible for treating an
// unenrolled user as not-found before calling.
func (v *Verifier) Verify(userID string, probe types.Embedding, stored []types.Embedding) Verdict {
	matchCount := 0
	minDistance := math.Inf(1)
	for _, enrolled := range stored {
		d := euclideanDistance(probe, enrolled)
		if d < minDistance {
			minDistance = d
		}
		if d < v.OptimalThreshold {
			matchCount++
		}
	}

	confidence := 0.0
	if len(stored) > 0 {
		confidence = float64(matchCount) / float64(len(stored))
	}
	verdict := Verdict{
		IsMatch:     confidence >= v.ConfidenceThreshold,
		Confidence:  confidence,
		MinDistance: minDistance,
	}
	if verdict.IsMatch {
		verdict.UserID = userID
	}
	Log.Debug("verified probe", "user_id", userID, "match_count", matchCount,
		"total", len(stored), "confidence", confidence, "is_match", verdict.IsMatch)
	return verdict
}

func euclideanDistance(a, b types.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	// Dimensions present in only one vector count at full magnitude.
	for i := n; i < len(a); i++ {
		sum += a[i] * a[i]
	}
	for i := n; i < len(b); i++ {
		sum += b[i] * b[i]
	}
	return math.Sqrt(sum)
}
