package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(ss ...string) []Date {
	out := make([]Date, 0, len(ss))
	for _, s := range ss {
		out = append(out, MustParseDate(s))
	}
	return out
}

func TestEvaluateStreak(t *testing.T) {
	tests := []struct {
		name       string
		rec        Record
		today      string
		wantState  StreakState
		wantStreak int
		wantTotal  int
		counted    bool
	}{
		{
			name:       "first visit starts at one",
			rec:        Record{},
			today:      "2024-01-01",
			wantState:  StreakReset,
			wantStreak: 1,
			wantTotal:  1,
		},
		{
			name:       "consecutive day extends",
			rec:        Record{LastVisit: MustParseDate("2024-01-01"), CurrentStreak: 5, TotalDays: 10},
			today:      "2024-01-02",
			wantState:  StreakAdvanced,
			wantStreak: 6,
			wantTotal:  11,
		},
		{
			name:       "gap of four resets",
			rec:        Record{LastVisit: MustParseDate("2024-01-01"), CurrentStreak: 5, TotalDays: 10},
			today:      "2024-01-05",
			wantState:  StreakReset,
			wantStreak: 1,
			wantTotal:  11,
		},
		{
			name:       "same day is already counted",
			rec:        Record{LastVisit: MustParseDate("2024-01-01"), CurrentStreak: 5, TotalDays: 10},
			today:      "2024-01-01",
			wantState:  StreakNoOp,
			wantStreak: 5,
			wantTotal:  10,
			counted:    true,
		},
		{
			name:       "backdated visit is already counted",
			rec:        Record{LastVisit: MustParseDate("2024-01-10"), CurrentStreak: 3, TotalDays: 4},
			today:      "2024-01-02",
			wantState:  StreakNoOp,
			wantStreak: 3,
			wantTotal:  4,
			counted:    true,
		},
		{
			name:       "month boundary is consecutive",
			rec:        Record{LastVisit: MustParseDate("2024-02-29"), CurrentStreak: 2, TotalDays: 2},
			today:      "2024-03-01",
			wantState:  StreakAdvanced,
			wantStreak: 3,
			wantTotal:  3,
		},
		{
			name:       "negative residue is clamped",
			rec:        Record{LastVisit: MustParseDate("2024-01-01"), CurrentStreak: -4, TotalDays: -1},
			today:      "2024-01-02",
			wantState:  StreakAdvanced,
			wantStreak: 1,
			wantTotal:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := EvaluateStreak(MustParseDate(tt.today), tt.rec, DefaultHistoryCap)
			assert.Equal(t, tt.wantState, step.State)
			assert.Equal(t, tt.wantStreak, step.NextStreak)
			assert.Equal(t, tt.wantTotal, step.NextTotalDays)
			assert.Equal(t, tt.counted, step.DayAlreadyCounted)
		})
	}
}

func TestEvaluateStreakHistory(t *testing.T) {
	rec := Record{
		LastVisit:    MustParseDate("2024-01-02"),
		VisitHistory: dates("2024-01-02", "2024-01-01"),
	}

	step := EvaluateStreak(MustParseDate("2024-01-03"), rec, 2)
	require.Len(t, step.NextHistory, 2)
	assert.Equal(t, "2024-01-03", step.NextHistory[0].String())
	assert.Equal(t, "2024-01-02", step.NextHistory[1].String())
	assert.Len(t, rec.VisitHistory, 2, "input history must not be modified")
	assert.Equal(t, "2024-01-02", rec.VisitHistory[0].String())
}

func TestEvaluateStreakHistoryNoDuplicateDay(t *testing.T) {
	// history already holds today though LastVisit lags behind it
	rec := Record{
		LastVisit:    MustParseDate("2024-01-01"),
		VisitHistory: dates("2024-01-02", "2024-01-01"),
	}

	step := EvaluateStreak(MustParseDate("2024-01-02"), rec, DefaultHistoryCap)
	assert.Equal(t, dates("2024-01-02", "2024-01-01"), step.NextHistory)
}

func TestEvaluateStreakZeroToday(t *testing.T) {
	step := EvaluateStreak(Date{}, Record{CurrentStreak: 2}, DefaultHistoryCap)
	assert.True(t, step.DayAlreadyCounted)
	assert.Equal(t, StreakNoOp, step.State)
}
