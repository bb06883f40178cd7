package scoring

import (
	"github.com/JGDev1215/OpenPredict/internal/sessions"
)

// Position-in-session decay: a raid at the session open carries more
// intent than one limping into the close. Bands are fixed, not configurable.
const (
	earlySessionCut = 0.25
	lateSessionCut  = 0.75
	earlyDecay      = 1.00
	midDecay        = 0.95
	lateDecay       = 0.70

	// killZoneCap bounds the session x decay x day product before
	// normalization.
	killZoneCap = 3.0
)

// scoreKillZone grades the timing of the evaluation instant. Timing is
// direction-independent, so both hypotheses receive the same value,
// and there is always a clock, so this component is never missing.
func (e *DualScoreEngine) scoreKillZone(facts *MarketFacts) float64 {
	sessionWeight := e.config.Sessions.OffHours
	decay := 1.0

	if active, ok := sessions.Active(facts.Timestamp); ok {
		sessionWeight = e.config.Sessions.For(active.Name)
		switch {
		case active.Position < earlySessionCut:
			decay = earlyDecay
		case active.Position < lateSessionCut:
			decay = midDecay
		default:
			decay = lateDecay
		}
	}

	day := e.config.Days.For(facts.Timestamp.In(sessions.Eastern()).Weekday())

	adjusted := sessionWeight * decay * day
	if adjusted > killZoneCap {
		adjusted = killZoneCap
	}
	return adjusted / killZoneCap * e.config.MaxKillZone
}
