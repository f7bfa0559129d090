package roster

import (
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
)

// Tier is the urgency of a canvas lead that nobody has called back.
type Tier int

const (
	TierNone Tier = iota
	TierFresh
	TierWarning
	TierUrgent
)

func (t Tier) String() string {
	switch t {
	case TierFresh:
		return "fresh"
	case TierWarning:
		return "warning"
	case TierUrgent:
		return "urgent"
	default:
		return "none"
	}
}

// Hint is the row background the dashboard paints.
type Hint string

const (
	HintNone             Hint = ""
	HintYellow           Hint = "yellow"
	HintOrange           Hint = "orange"
	HintRed              Hint = "red"
	HintAutoTransitioned Hint = "neutral"
)

const (
	freshAfterDays   = 2
	warningAfterDays = 4
	urgentAfterDays  = 5
	antisaleAutoDays = 2
)

// Classification is the staleness verdict for one row.
type Classification struct {
	Tier Tier
	Hint Hint
}

// Classify computes the staleness of rec at now. It depends on now and must
// not be cached past the current render.
func Classify(rec domain.ClientRecord, now time.Time) Classification {
	switch rec.Status {
	case domain.StatusCanvas:
		return classifyCanvas(rec, now)
	case domain.StatusAntisale:
		if daysSince(rec.StatusChangedAt, now) >= antisaleAutoDays {
			return Classification{Tier: TierNone, Hint: HintAutoTransitioned}
		}
	}
	return Classification{}
}

func classifyCanvas(rec domain.ClientRecord, now time.Time) Classification {
	if rec.LastContactAt != nil && rec.LastContactAt.After(rec.StatusChangedAt) {
		return Classification{}
	}
	d := daysSince(rec.StatusChangedAt, now)
	switch {
	case d >= urgentAfterDays:
		return Classification{Tier: TierUrgent, Hint: HintRed}
	case d >= warningAfterDays:
		return Classification{Tier: TierWarning, Hint: HintOrange}
	case d >= freshAfterDays:
		return Classification{Tier: TierFresh, Hint: HintYellow}
	default:
		return Classification{}
	}
}

func daysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// EscalationCounts tallies canvas leads per tier.
type EscalationCounts struct {
	Fresh   int `json:"fresh"`
	Warning int `json:"warning"`
	Urgent  int `json:"urgent"`
}

// Total is the number of leads needing attention.
func (e EscalationCounts) Total() int {
	return e.Fresh + e.Warning + e.Urgent
}

// Escalations classifies records at now and counts the non-none tiers.
func Escalations(records []domain.ClientRecord, now time.Time) EscalationCounts {
	var out EscalationCounts
	for i := range records {
		switch Classify(records[i], now).Tier {
		case TierFresh:
			out.Fresh++
		case TierWarning:
			out.Warning++
		case TierUrgent:
			out.Urgent++
		}
	}
	return out
}
