// Package lifecycle implements the application lifecycle state machine:
// the closed status set, the transition table with its stage gates, the
// document-requirement bookkeeping and the timeline projection. Everything
// here is pure and operates on an in-memory snapshot; persistence and side
// effects belong to the services layer.
package lifecycle

// Status is the pipeline position of an application. It is a closed set;
// every transition target is checked against the table in engine.go.
type Status string

const (
	StatusDraft                      Status = "draft"
	StatusSubmitted                  Status = "submitted"
	StatusUnderReview                Status = "under_review"
	StatusOfferLetterRequested       Status = "offer_letter_requested"
	StatusOfferLetterReceived        Status = "offer_letter_received"
	StatusInterviewDocumentsRequired Status = "interview_documents_required"
	StatusInterviewRequested         Status = "interview_requested"
	StatusInterviewScheduled         Status = "interview_scheduled"
	StatusAccepted                   Status = "accepted"
	StatusRejected                   Status = "rejected"
	StatusCASDocumentsRequired       Status = "cas_documents_required"
	StatusCASApplicationInProgress   Status = "cas_application_in_progress"
	StatusVisaDocumentsRequired      Status = "visa_documents_required"
	StatusVisaApplicationReady       Status = "visa_application_ready"
	StatusVisaApplicationInProgress  Status = "visa_application_in_progress"
	StatusCompleted                  Status = "completed"
)

// statusRank orders statuses along the pipeline. A transition may never
// target a status with a lower rank than the current one (monotonicity).
// Rejected shares the rank of accepted: both are interview outcomes.
var statusRank = map[Status]int{
	StatusDraft:                      0,
	StatusSubmitted:                  1,
	StatusUnderReview:                2,
	StatusOfferLetterRequested:       3,
	StatusOfferLetterReceived:        4,
	StatusInterviewDocumentsRequired: 5,
	StatusInterviewRequested:         6,
	StatusInterviewScheduled:         7,
	StatusAccepted:                   8,
	StatusRejected:                   8,
	StatusCASDocumentsRequired:       9,
	StatusCASApplicationInProgress:   10,
	StatusVisaDocumentsRequired:      11,
	StatusVisaApplicationReady:       12,
	StatusVisaApplicationInProgress:  13,
	StatusCompleted:                  14,
}

// Known reports whether s is a member of the closed status set.
func (s Status) Known() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Rank returns the pipeline order of s. Unknown statuses rank as -1.
func (s Status) Rank() int {
	rank, ok := statusRank[s]
	if !ok {
		return -1
	}
	return rank
}

// After reports whether s sits strictly past other in pipeline order.
func (s Status) After(other Status) bool {
	return s.Rank() > other.Rank()
}

// maxStatus keeps the further-advanced of the two statuses. Used where a
// configuration event would otherwise move an already-advanced
// application backward.
func maxStatus(a, b Status) Status {
	if b.After(a) {
		return b
	}
	return a
}

// Stage is one gated phase of the pipeline with its own document set.
type Stage string

const (
	StageInterview Stage = "interview"
	StageCAS       Stage = "cas"
	StageVisa      Stage = "visa"
)

// Event is a caller-triggered lifecycle transition.
type Event string

const (
	EventSubmit                     Event = "submit"
	EventBeginReview                Event = "begin_review"
	EventRequestOfferLetter         Event = "request_offer_letter"
	EventUploadOfferLetter          Event = "upload_offer_letter"
	EventConfigureInterviewDocs     Event = "configure_interview_documents"
	EventRequestInterview           Event = "request_interview"
	EventScheduleInterview          Event = "schedule_interview"
	EventRecordInterviewResult      Event = "record_interview_result"
	EventApplyCAS                   Event = "apply_cas"
	EventConfigureCASDocs           Event = "configure_cas_documents"
	EventUploadCAS                  Event = "upload_cas"
	EventConfigureVisaDocs          Event = "configure_visa_documents"
	EventApplyVisa                  Event = "apply_visa"
	EventUploadVisa                 Event = "upload_visa"
)

// Events lists every lifecycle event in table order.
func Events() []Event {
	return []Event{
		EventSubmit,
		EventBeginReview,
		EventRequestOfferLetter,
		EventUploadOfferLetter,
		EventConfigureInterviewDocs,
		EventRequestInterview,
		EventScheduleInterview,
		EventRecordInterviewResult,
		EventApplyCAS,
		EventConfigureCASDocs,
		EventUploadCAS,
		EventConfigureVisaDocs,
		EventApplyVisa,
		EventUploadVisa,
	}
}

// Stage-event names: the append-only audit instants stamped by the engine.
const (
	TimeSubmitted                    = "submitted_at"
	TimeOfferLetterRequested         = "offer_letter_requested_at"
	TimeOfferLetterReceived          = "offer_letter_received_at"
	TimeInterviewDocumentsConfigured = "interview_documents_configured_at"
	TimeInterviewRequested           = "interview_requested_at"
	TimeInterviewScheduled           = "interview_scheduled_at"
	TimeInterviewResult              = "interview_result_date"
	TimeCASDocumentsConfigured       = "cas_documents_configured_at"
	TimeCASApplied                   = "cas_applied_at"
	TimeCASReceived                  = "cas_received_at"
	TimeVisaEnabled                  = "visa_application_enabled_at"
	TimeVisaDocumentsConfigured      = "visa_documents_configured_at"
	TimeVisaApplied                  = "visa_applied_at"
	TimeVisaReceived                 = "visa_received_at"
)

// Interview results
const (
	ResultPass = "pass"
	ResultFail = "fail"
)
