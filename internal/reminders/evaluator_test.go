package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickagent/callminder/internal/appointments"
)

func newTestEvaluator(t *testing.T, cfg EvaluatorConfig, poll time.Duration) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(cfg, poll)
	require.NoError(t, err)
	return ev
}

func apptAt(at time.Time, status appointments.Status) *appointments.Appointment {
	return &appointments.Appointment{At: at, Status: status}
}

func TestNewEvaluatorRejectsNarrowWindow(t *testing.T) {
	_, err := NewEvaluator(EvaluatorConfig{Window: 5 * time.Minute}, 15*time.Minute)
	assert.Error(t, err)
}

func TestNewEvaluatorDefaultsWindowToPollInterval(t *testing.T) {
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)
	assert.Equal(t, 15*time.Minute, ev.cfg.Window)
}

func TestDueWindows(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)

	tests := []struct {
		name  string
		until time.Duration
		want  []Kind
	}{
		{"far out", 48 * time.Hour, nil},
		{"day-before window opens", 24*time.Hour + 14*time.Minute, []Kind{KindDayBefore}},
		{"day-before boundary exact", 24 * time.Hour, []Kind{KindDayBefore}},
		{"just under a day", 23 * time.Hour, nil},
		{"thirty-min window opens", 44 * time.Minute, []Kind{KindThirtyMinBefore}},
		{"thirty-min boundary exact", 30 * time.Minute, []Kind{KindThirtyMinBefore}},
		{"too close", 29 * time.Minute, nil},
		{"already past", -10 * time.Minute, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt := apptAt(now.Add(tt.until), appointments.StatusScheduled)
			assert.Equal(t, tt.want, ev.Due(now, appt, nil))
		})
	}
}

// An appointment 24h05m out at the current tick must not fall between two
// windows: it is due now, because by the next tick (15m later) it would be
// 23h50m out and past the lead.
func TestDueNoGapBetweenTicks(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)

	appt := apptAt(now.Add(24*time.Hour+5*time.Minute), appointments.StatusScheduled)
	assert.Equal(t, []Kind{KindDayBefore}, ev.Due(now, appt, nil))

	// The next tick sees it outside the window; the ledger prevented the
	// double-send, not the evaluator.
	next := now.Add(15 * time.Minute)
	assert.Empty(t, ev.Due(next, appt, nil))
}

func TestDueSkipsInitiatedKinds(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)

	appt := apptAt(now.Add(24*time.Hour+5*time.Minute), appointments.StatusScheduled)
	assert.Empty(t, ev.Due(now, appt, map[Kind]bool{KindDayBefore: true}))
}

func TestDueSkipsCanceled(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)

	appt := apptAt(now.Add(24*time.Hour+5*time.Minute), appointments.StatusCanceled)
	assert.Empty(t, ev.Due(now, appt, nil))
}

func TestDueConfirmedStillGetsThirtyMinByDefault(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)

	appt := apptAt(now.Add(35*time.Minute), appointments.StatusConfirmed)
	assert.Equal(t, []Kind{KindThirtyMinBefore}, ev.Due(now, appt, nil))
}

func TestDueConfirmedSuppressionPolicy(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, EvaluatorConfig{ConfirmedSuppressesThirtyMin: true}, 15*time.Minute)

	confirmed := apptAt(now.Add(35*time.Minute), appointments.StatusConfirmed)
	assert.Empty(t, ev.Due(now, confirmed, nil))

	scheduled := apptAt(now.Add(35*time.Minute), appointments.StatusScheduled)
	assert.Equal(t, []Kind{KindThirtyMinBefore}, ev.Due(now, scheduled, nil))
}

func TestLookupHorizonCoversDayBeforeWindow(t *testing.T) {
	ev := newTestEvaluator(t, EvaluatorConfig{}, 15*time.Minute)
	assert.GreaterOrEqual(t, ev.LookupHorizon(), 24*time.Hour+15*time.Minute)
}
