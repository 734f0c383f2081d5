package lifecycle

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/admissions/services/pipeline/internal/models"
)

// MarkResult describes the effect of marking a requirement item uploaded.
type MarkResult struct {
	Item *models.RequiredDocumentItem
	// Changed is false when the item was already uploaded; marking is
	// idempotent and the existing reference is returned unchanged.
	Changed bool
	// PromotedTo is non-nil when satisfying the set advanced the
	// application (visa_documents_required -> visa_application_ready).
	PromotedTo *Status
}

// MarkUploaded links an uploaded document to the stage's requirement item
// for the given document type. Marking an already-uploaded item again is
// a no-op returning the existing reference, never an error.
func MarkUploaded(snap *Snapshot, stage Stage, documentTypeID, uploadedDocumentID uuid.UUID) (*MarkResult, error) {
	set := snap.DocumentSet(stage)
	if set == nil {
		return nil, errors.Wrapf(ErrNotFound, "no %s document set configured", stage)
	}
	item := set.Item(documentTypeID)
	if item == nil {
		return nil, errors.Wrapf(ErrNotFound, "document type %s is not part of the %s set", documentTypeID, stage)
	}

	if item.IsUploaded {
		return &MarkResult{Item: item, Changed: false}, nil
	}

	item.IsUploaded = true
	docID := uploadedDocumentID
	item.UploadedDocumentID = &docID

	result := &MarkResult{Item: item, Changed: true}

	// Completing the visa set readies the visa application; the other
	// stages advance through their explicit request/apply events.
	if stage == StageVisa && snap.Status() == StatusVisaDocumentsRequired && set.AllRequiredSatisfied() {
		promoted := StatusVisaApplicationReady
		snap.Application.Status = string(promoted)
		result.PromotedTo = &promoted
	}

	return result, nil
}
