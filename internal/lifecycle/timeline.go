package lifecycle

import (
	"time"
)

// StepStatus is the display state of one timeline step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCurrent   StepStatus = "current"
	StepUpcoming  StepStatus = "upcoming"
)

// Step is one display-ready entry of the application timeline.
type Step struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
	Date   *time.Time `json:"date,omitempty"`
}

// stepDef drives the projection. A step is completed when done() holds;
// dates lists stage-event names in display preference order.
type stepDef struct {
	id    string
	title string
	done  func(*Snapshot) bool
	dates []string
}

var timelineSteps = []stepDef{
	{
		id:    "submitted",
		title: "Application Submitted",
		done:  func(s *Snapshot) bool { return s.Has(TimeSubmitted) },
		dates: []string{TimeSubmitted},
	},
	{
		id:    "under_review",
		title: "Under Review",
		// No completing instant of its own: done once the pipeline has
		// moved strictly past review in table order.
		done: func(s *Snapshot) bool {
			return s.Status().After(StatusUnderReview) || s.Has(TimeOfferLetterRequested)
		},
	},
	{
		id:    "offer_letter_requested",
		title: "Offer Letter Requested",
		done:  func(s *Snapshot) bool { return s.Has(TimeOfferLetterRequested) },
		dates: []string{TimeOfferLetterRequested},
	},
	{
		id:    "offer_letter_received",
		title: "Offer Letter Received",
		done:  func(s *Snapshot) bool { return s.Has(TimeOfferLetterReceived) },
		dates: []string{TimeOfferLetterReceived},
	},
	{
		id:    "interview",
		title: "Interview",
		done:  func(s *Snapshot) bool { return s.Has(TimeInterviewResult) },
		dates: []string{TimeInterviewResult, TimeInterviewScheduled, TimeInterviewRequested, TimeInterviewDocumentsConfigured},
	},
	{
		id:    "cas",
		title: "CAS",
		done:  func(s *Snapshot) bool { return s.Has(TimeCASReceived) },
		dates: []string{TimeCASReceived, TimeCASApplied, TimeCASDocumentsConfigured},
	},
	{
		id:    "visa",
		title: "Visa",
		done:  func(s *Snapshot) bool { return s.Has(TimeVisaReceived) },
		dates: []string{TimeVisaReceived, TimeVisaApplied, TimeVisaDocumentsConfigured, TimeVisaEnabled},
	},
}

// Project derives the ordered timeline from the snapshot. It is a pure
// function of stored state: for any non-terminal status exactly one step
// is current; after a terminal status no step is.
func Project(snap *Snapshot) []Step {
	terminal := snap.Status().Terminal()
	steps := make([]Step, 0, len(timelineSteps))
	currentAssigned := false

	for _, def := range timelineSteps {
		step := Step{ID: def.id, Title: def.title, Status: StepUpcoming}

		for _, name := range def.dates {
			if at, ok := snap.At(name); ok {
				date := at
				step.Date = &date
				break
			}
		}

		switch {
		case def.done(snap):
			step.Status = StepCompleted
		case !terminal && !currentAssigned:
			step.Status = StepCurrent
			currentAssigned = true
		}

		steps = append(steps, step)
	}

	return steps
}
