package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func countByStatus(steps []Step, status StepStatus) int {
	n := 0
	for _, s := range steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

func TestProjectExactlyOneCurrentStep(t *testing.T) {
	cases := []struct {
		name        string
		status      Status
		stamped     []string
		wantCurrent string
	}{
		{name: "draft", status: StatusDraft, wantCurrent: "submitted"},
		{
			name: "submitted", status: StatusSubmitted,
			stamped: []string{TimeSubmitted}, wantCurrent: "under_review",
		},
		{
			name: "under review", status: StatusUnderReview,
			stamped: []string{TimeSubmitted}, wantCurrent: "under_review",
		},
		{
			name: "offer letter requested", status: StatusOfferLetterRequested,
			stamped:     []string{TimeSubmitted, TimeOfferLetterRequested},
			wantCurrent: "offer_letter_received",
		},
		{
			name: "interview pending", status: StatusInterviewScheduled,
			stamped: []string{TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived,
				TimeInterviewDocumentsConfigured, TimeInterviewRequested, TimeInterviewScheduled},
			wantCurrent: "interview",
		},
		{
			name: "accepted", status: StatusAccepted,
			stamped: []string{TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived,
				TimeInterviewResult},
			wantCurrent: "cas",
		},
		{
			name: "visa in progress", status: StatusVisaApplicationInProgress,
			stamped: []string{TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived,
				TimeInterviewResult, TimeCASApplied, TimeCASReceived, TimeVisaEnabled, TimeVisaApplied},
			wantCurrent: "visa",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApplication(tc.status)
			stampEvents(app, tc.stamped...)
			steps := Project(NewSnapshot(app))

			require.Len(t, steps, 7)
			require.Equal(t, 1, countByStatus(steps, StepCurrent))
			for _, step := range steps {
				if step.Status == StepCurrent {
					require.Equal(t, tc.wantCurrent, step.ID)
				}
			}
		})
	}
}

func TestProjectTerminalHasNoCurrentStep(t *testing.T) {
	rejected := newTestApplication(StatusRejected)
	stampEvents(rejected, TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived, TimeInterviewResult)
	steps := Project(NewSnapshot(rejected))
	require.Zero(t, countByStatus(steps, StepCurrent))
	require.Equal(t, StepCompleted, steps[4].Status) // interview outcome recorded
	require.Equal(t, StepUpcoming, steps[5].Status)  // cas never starts
	require.Equal(t, StepUpcoming, steps[6].Status)

	completed := newTestApplication(StatusCompleted)
	stampEvents(completed, TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived,
		TimeInterviewResult, TimeCASApplied, TimeCASReceived, TimeVisaEnabled, TimeVisaApplied, TimeVisaReceived)
	steps = Project(NewSnapshot(completed))
	require.Zero(t, countByStatus(steps, StepCurrent))
	require.Equal(t, 7, countByStatus(steps, StepCompleted))
}

func TestProjectIsDeterministic(t *testing.T) {
	app := newTestApplication(StatusOfferLetterRequested)
	stampEvents(app, TimeSubmitted, TimeOfferLetterRequested)
	snap := NewSnapshot(app)

	first := Project(snap)
	second := Project(snap)
	require.Equal(t, first, second)

	// Dates come from stored instants, never the wall clock.
	at, ok := snap.At(TimeOfferLetterRequested)
	require.True(t, ok)
	require.Equal(t, at, *first[2].Date)
}

func TestProjectDatesFollowStageProgress(t *testing.T) {
	app := newTestApplication(StatusCASApplicationInProgress)
	stampEvents(app, TimeSubmitted, TimeOfferLetterRequested, TimeOfferLetterReceived,
		TimeInterviewResult, TimeCASDocumentsConfigured, TimeCASApplied)
	steps := Project(NewSnapshot(app))

	cas := steps[5]
	require.Equal(t, "cas", cas.ID)
	require.Equal(t, StepCurrent, cas.Status)
	applied, _ := NewSnapshot(app).At(TimeCASApplied)
	require.Equal(t, applied, *cas.Date)
}
