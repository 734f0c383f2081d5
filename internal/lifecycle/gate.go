package lifecycle

import (
	"strings"
)

// Decision is the outcome of a gate check. Reason is human-readable and
// intended for direct display next to a disabled action.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Check evaluates whether ev is currently permitted for the snapshot. It
// is pure and shares its guard logic with Apply, so pre-validating a
// button and applying the event can never disagree.
func Check(snap *Snapshot, ev Event) Decision {
	if err := guard(snap, ev); err != nil {
		return Decision{Allowed: false, Reason: err.Error()}
	}
	return Decision{Allowed: true}
}

// guard validates the snapshot-derivable preconditions of ev and returns
// a typed error on failure. Parameter-level checks (a file or date being
// present in the request) live in Apply.
func guard(snap *Snapshot, ev Event) error {
	status := snap.Status()

	if !status.Known() {
		return invalidTransition(ev, status, "unknown status")
	}
	if status.Terminal() {
		return invalidTransition(ev, status, "application is in a terminal state")
	}

	switch ev {
	case EventSubmit:
		return requireStatus(ev, status, StatusDraft)

	case EventBeginReview:
		return requireStatus(ev, status, StatusSubmitted)

	case EventRequestOfferLetter:
		return requireStatus(ev, status, StatusSubmitted, StatusUnderReview)

	case EventUploadOfferLetter:
		return requireStatus(ev, status, StatusOfferLetterRequested)

	case EventConfigureInterviewDocs:
		if err := requireStatus(ev, status, StatusOfferLetterReceived, StatusInterviewDocumentsRequired); err != nil {
			return err
		}
		if snap.Has(TimeInterviewRequested) {
			return &AlreadyConfiguredError{Stage: StageInterview}
		}
		return nil

	case EventRequestInterview:
		if err := requireStatus(ev, status, StatusInterviewDocumentsRequired); err != nil {
			return err
		}
		return requireSatisfiedSet(snap, ev, StageInterview)

	case EventScheduleInterview:
		return requireStatus(ev, status, StatusInterviewRequested)

	case EventRecordInterviewResult:
		// A recorded result moves the status on, so the finalized check
		// must come first or a re-record would report a status mismatch
		// instead of the write-once violation.
		if snap.Has(TimeInterviewResult) {
			return &AlreadyFinalizedError{Field: "interview result"}
		}
		if iv := snap.Application.Interview; iv != nil && iv.Result != nil {
			return &AlreadyFinalizedError{Field: "interview result"}
		}
		return requireStatus(ev, status, StatusInterviewScheduled)

	case EventApplyCAS:
		if err := requireStatus(ev, status, StatusAccepted, StatusCASDocumentsRequired); err != nil {
			return err
		}
		if snap.Has(TimeCASApplied) {
			return guardFailed(ev, "CAS application already submitted")
		}
		if set := snap.DocumentSet(StageCAS); set != nil && !set.AllRequiredSatisfied() {
			return guardFailed(ev, "missing required CAS documents: %s", strings.Join(set.MissingRequired(), ", "))
		}
		return nil

	case EventConfigureCASDocs:
		if err := requireStatus(ev, status, StatusAccepted, StatusCASDocumentsRequired, StatusCASApplicationInProgress); err != nil {
			return err
		}
		if snap.Has(TimeCASReceived) {
			return &AlreadyConfiguredError{Stage: StageCAS}
		}
		return nil

	case EventUploadCAS:
		if !snap.Has(TimeCASApplied) {
			return guardFailed(ev, "CAS has not been applied for")
		}
		if snap.Has(TimeCASReceived) {
			return guardFailed(ev, "CAS has already been received")
		}
		return nil

	case EventConfigureVisaDocs:
		if !snap.Has(TimeVisaEnabled) {
			return guardFailed(ev, "visa stage is not enabled yet")
		}
		if snap.Has(TimeVisaApplied) {
			return &AlreadyConfiguredError{Stage: StageVisa}
		}
		return nil

	case EventApplyVisa:
		if !snap.Has(TimeVisaEnabled) {
			return guardFailed(ev, "visa stage is not enabled yet")
		}
		if snap.Has(TimeVisaApplied) {
			return guardFailed(ev, "visa application already submitted")
		}
		if set := snap.DocumentSet(StageVisa); set != nil && !set.AllRequiredSatisfied() {
			return guardFailed(ev, "missing required visa documents: %s", strings.Join(set.MissingRequired(), ", "))
		}
		return nil

	case EventUploadVisa:
		if !snap.Has(TimeVisaApplied) {
			return guardFailed(ev, "visa has not been applied for")
		}
		if snap.Has(TimeVisaReceived) {
			return guardFailed(ev, "visa has already been received")
		}
		return nil
	}

	return invalidTransition(ev, status, "unknown event")
}

func requireStatus(ev Event, current Status, allowed ...Status) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	parts := make([]string, len(allowed))
	for i, s := range allowed {
		parts[i] = string(s)
	}
	return invalidTransition(ev, current, "requires status "+strings.Join(parts, " or "))
}

func requireSatisfiedSet(snap *Snapshot, ev Event, stage Stage) error {
	set := snap.DocumentSet(stage)
	if set == nil {
		return guardFailed(ev, "%s document requirements have not been configured", stage)
	}
	if !set.AllRequiredSatisfied() {
		return guardFailed(ev, "missing required %s documents: %s", stage, strings.Join(set.MissingRequired(), ", "))
	}
	return nil
}
