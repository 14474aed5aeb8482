package types

import (
	"time"
)

// Verdict vocabulary for judgment records. Thresholds follow the judgment
// producer: q >= 82 HOWL, q >= 61.8 WAG, q >= 38.2 GROWL, else BARK.
const (
	VerdictHowl  = "HOWL"
	VerdictWag   = "WAG"
	VerdictGrowl = "GROWL"
	VerdictBark  = "BARK"
)

// Judgment is an externally produced, scored verdict. Immutable once queued.
type Judgment struct {
	JudgmentID string  `json:"judgment_id"`
	QScore     float64 `json:"q_score"`
	Verdict    string  `json:"verdict"`
	Timestamp  int64   `json:"timestamp"`
}

// VerdictForScore derives the verdict band for a q-score.
func VerdictForScore(q float64) string {
	switch {
	case q >= 82.0:
		return VerdictHowl
	case q >= 61.8:
		return VerdictWag
	case q >= 38.2:
		return VerdictGrowl
	default:
		return VerdictBark
	}
}

// Normalized returns a copy with the q-score clamped to [0,100], a verdict
// derived from the score when absent, and the timestamp defaulted to now.
func (j Judgment) Normalized() Judgment {
	if j.QScore < 0 {
		j.QScore = 0
	}
	if j.QScore > 100 {
		j.QScore = 100
	}
	if j.Verdict == "" {
		j.Verdict = VerdictForScore(j.QScore)
	}
	if j.Timestamp == 0 {
		j.Timestamp = time.Now().UnixMilli()
	}
	return j
}
