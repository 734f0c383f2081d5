package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"example.com/admissions/services/pipeline/internal/models"
)

// SideEffect is a request the engine emits for the caller to dispatch
// after the transition has been committed. Side effects are fired
// post-commit and their failure never rolls the transition back.
type SideEffect string

const (
	// EffectGenerateOfferLetterDraft asks the worker to produce an
	// offer-letter email draft for the application.
	EffectGenerateOfferLetterDraft SideEffect = "generate_offer_letter_draft"
)

// Stamp is one newly written stage-event instant.
type Stamp struct {
	Name string
	At   time.Time
}

// InterviewSchedule carries the details for scheduling an interview.
type InterviewSchedule struct {
	At          time.Time
	Location    string
	MeetingLink string
	Notes       string
}

// DocumentTypeSelection is one catalog entry chosen for a requirement
// set, resolved by the caller against the document-type catalog.
type DocumentTypeSelection struct {
	TypeID      uuid.UUID
	Name        string
	Description string
	Required    bool
}

// Command is one lifecycle event plus its parameters.
type Command struct {
	Event              Event
	DocumentTypes      []DocumentTypeSelection
	Notes              string
	UploadedDocumentID *uuid.UUID
	Schedule           *InterviewSchedule
	Result             string
	ResultNotes        string
}

// Outcome describes what a successfully applied command changed, so the
// caller can persist exactly those records and dispatch the effects.
type Outcome struct {
	Previous Status
	Status   Status
	Stamps   []Stamp
	Effects  []SideEffect

	// ReplacedSet is set when the command (re)configured a stage's
	// document requirements.
	ReplacedSet *models.RequiredDocumentSet
	// Interview is set when the command created the interview record or
	// wrote its result.
	Interview *models.Interview
}

func (o *Outcome) stamp(times map[string]time.Time, name string, at time.Time) {
	// Write-once: a stamped instant is immutable, re-stamping is a no-op.
	if _, ok := times[name]; ok {
		return
	}
	times[name] = at
	o.Stamps = append(o.Stamps, Stamp{Name: name, At: at})
}

// Apply validates and applies one command against the snapshot,
// all-or-nothing: on any error the snapshot is untouched. On success the
// snapshot reflects the new state and the outcome lists every change.
func Apply(snap *Snapshot, cmd Command, now time.Time) (*Outcome, error) {
	if err := guard(snap, cmd.Event); err != nil {
		return nil, err
	}
	if err := validateParams(snap, cmd); err != nil {
		return nil, err
	}

	out := &Outcome{Previous: snap.Status(), Status: snap.Status()}
	now = now.UTC()

	switch cmd.Event {
	case EventSubmit:
		out.stamp(snap.Times, TimeSubmitted, now)
		out.Status = StatusSubmitted

	case EventBeginReview:
		out.Status = StatusUnderReview

	case EventRequestOfferLetter:
		out.stamp(snap.Times, TimeOfferLetterRequested, now)
		out.Effects = append(out.Effects, EffectGenerateOfferLetterDraft)
		out.Status = StatusOfferLetterRequested

	case EventUploadOfferLetter:
		snap.Application.OfferLetterDocumentID = cmd.UploadedDocumentID
		out.stamp(snap.Times, TimeOfferLetterReceived, now)
		out.Status = StatusOfferLetterReceived

	case EventConfigureInterviewDocs:
		out.ReplacedSet = replaceSet(snap, StageInterview, cmd, now)
		out.stamp(snap.Times, TimeInterviewDocumentsConfigured, now)
		out.Status = maxStatus(snap.Status(), StatusInterviewDocumentsRequired)

	case EventRequestInterview:
		out.stamp(snap.Times, TimeInterviewRequested, now)
		out.Status = StatusInterviewRequested

	case EventScheduleInterview:
		iv := &models.Interview{
			ID:            uuid.New(),
			ApplicationID: snap.Application.ID,
			ScheduledAt:   cmd.Schedule.At,
			Location:      cmd.Schedule.Location,
			MeetingLink:   cmd.Schedule.MeetingLink,
			Notes:         cmd.Schedule.Notes,
		}
		snap.Application.Interview = iv
		out.Interview = iv
		out.stamp(snap.Times, TimeInterviewScheduled, now)
		out.Status = StatusInterviewScheduled

	case EventRecordInterviewResult:
		iv := snap.Application.Interview
		result := cmd.Result
		iv.Result = &result
		iv.ResultNotes = cmd.ResultNotes
		resultDate := now
		iv.ResultDate = &resultDate
		out.Interview = iv
		out.stamp(snap.Times, TimeInterviewResult, now)
		if cmd.Result == ResultPass {
			out.Status = StatusAccepted
		} else {
			out.Status = StatusRejected
		}

	case EventApplyCAS:
		out.stamp(snap.Times, TimeCASApplied, now)
		out.Status = StatusCASApplicationInProgress

	case EventConfigureCASDocs:
		out.ReplacedSet = replaceSet(snap, StageCAS, cmd, now)
		out.stamp(snap.Times, TimeCASDocumentsConfigured, now)
		out.Status = maxStatus(snap.Status(), StatusCASDocumentsRequired)

	case EventUploadCAS:
		snap.Application.CASDocumentID = cmd.UploadedDocumentID
		// Receiving the CAS unlocks the visa stage in the same commit.
		out.stamp(snap.Times, TimeCASReceived, now)
		out.stamp(snap.Times, TimeVisaEnabled, now)

	case EventConfigureVisaDocs:
		out.ReplacedSet = replaceSet(snap, StageVisa, cmd, now)
		out.stamp(snap.Times, TimeVisaDocumentsConfigured, now)
		out.Status = maxStatus(snap.Status(), StatusVisaDocumentsRequired)

	case EventApplyVisa:
		out.stamp(snap.Times, TimeVisaApplied, now)
		out.Status = StatusVisaApplicationInProgress

	case EventUploadVisa:
		snap.Application.VisaDocumentID = cmd.UploadedDocumentID
		out.stamp(snap.Times, TimeVisaReceived, now)
		out.Status = StatusCompleted

	default:
		return nil, invalidTransition(cmd.Event, snap.Status(), "unknown event")
	}

	snap.Application.Status = string(out.Status)
	return out, nil
}

// validateParams checks the request-level preconditions of a command:
// required files, dates and selections.
func validateParams(snap *Snapshot, cmd Command) error {
	switch cmd.Event {
	case EventUploadOfferLetter, EventUploadCAS, EventUploadVisa:
		if cmd.UploadedDocumentID == nil || *cmd.UploadedDocumentID == uuid.Nil {
			return guardFailed(cmd.Event, "an uploaded document is required")
		}

	case EventConfigureInterviewDocs, EventConfigureCASDocs, EventConfigureVisaDocs:
		if len(cmd.DocumentTypes) == 0 {
			return guardFailed(cmd.Event, "at least one document type must be selected")
		}

	case EventScheduleInterview:
		if cmd.Schedule == nil || cmd.Schedule.At.IsZero() {
			return guardFailed(cmd.Event, "an interview date is required")
		}

	case EventRecordInterviewResult:
		if cmd.Result != ResultPass && cmd.Result != ResultFail {
			return guardFailed(cmd.Event, "result must be %q or %q", ResultPass, ResultFail)
		}
		if snap.Application.Interview == nil {
			return guardFailed(cmd.Event, "interview has not been scheduled")
		}
	}
	return nil
}

// replaceSet builds the stage's new requirement set from the selections,
// carrying over the upload state of document types retained from the
// previous configuration, and swaps it into the aggregate.
func replaceSet(snap *Snapshot, stage Stage, cmd Command, now time.Time) *models.RequiredDocumentSet {
	previous := snap.DocumentSet(stage)

	set := &models.RequiredDocumentSet{
		ID:            uuid.New(),
		ApplicationID: snap.Application.ID,
		Stage:         string(stage),
		ConfiguredAt:  now,
		Notes:         cmd.Notes,
	}
	for _, sel := range cmd.DocumentTypes {
		item := models.RequiredDocumentItem{
			ID:             uuid.New(),
			SetID:          set.ID,
			DocumentTypeID: sel.TypeID,
			DocumentName:   sel.Name,
			Description:    sel.Description,
			IsRequired:     sel.Required,
		}
		if previous != nil {
			if prev := previous.Item(sel.TypeID); prev != nil && prev.IsUploaded {
				item.IsUploaded = true
				item.UploadedDocumentID = prev.UploadedDocumentID
			}
		}
		set.Items = append(set.Items, item)
	}

	sets := snap.Application.DocumentSets[:0]
	for _, existing := range snap.Application.DocumentSets {
		if existing.Stage != string(stage) {
			sets = append(sets, existing)
		}
	}
	snap.Application.DocumentSets = append(sets, *set)
	return set
}
