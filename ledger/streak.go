package ledger

// StreakState is the terminal streak transition of one request.
type StreakState string

const (
	StreakNoOp     StreakState = "no_op"
	StreakAdvanced StreakState = "advanced"
	StreakReset    StreakState = "reset"
	StreakRewarded StreakState = "rewarded"
)

// StreakStep is the outcome of evaluating one visit against a record.
type StreakStep struct {
	State             StreakState
	NextStreak        int
	NextTotalDays     int
	NextHistory       []Date
	DayAlreadyCounted bool
}

// EvaluateStreak computes the next streak state for a visit on today.
//
// A visit on the last recorded day is already counted. A gap of exactly one
// day extends the streak; any other gap, or no prior visit, restarts it at 1.
// A today earlier than the last visit can only come from a backdated request
// and is treated as already counted so history stays ordered.
func EvaluateStreak(today Date, rec Record, historyCap int) StreakStep {
	noop := StreakStep{
		State:             StreakNoOp,
		NextStreak:        max(rec.CurrentStreak, 0),
		NextTotalDays:     max(rec.TotalDays, 0),
		NextHistory:       rec.VisitHistory,
		DayAlreadyCounted: true,
	}
	if today.IsZero() {
		return noop
	}
	if !rec.LastVisit.IsZero() && !rec.LastVisit.Before(today) {
		return noop
	}

	step := StreakStep{
		State:         StreakReset,
		NextStreak:    1,
		NextTotalDays: max(rec.TotalDays, 0) + 1,
		NextHistory:   PushFrontUnique(rec.VisitHistory, today, historyCap),
	}
	if !rec.LastVisit.IsZero() && today.DaysSince(rec.LastVisit) == 1 {
		step.State = StreakAdvanced
		step.NextStreak = max(rec.CurrentStreak, 0) + 1
	}
	return step
}
