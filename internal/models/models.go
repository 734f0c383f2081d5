package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Stage identifiers for document requirement sets
const (
	StageInterview = "interview"
	StageCAS       = "cas"
	StageVisa      = "visa"
)

// Program represents an academic program an application points at.
// Applications reference a program but do not own it.
type Program struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	Name       string         `gorm:"not null" json:"name"`
	University string         `json:"university"`
	Level      string         `json:"level"`
	IsActive   bool           `gorm:"not null;default:true" json:"is_active"`
}

// Application is the root aggregate of the admissions pipeline. Status is
// the single source of truth for pipeline position; the audit trail of
// stage instants lives in StageEvent rows.
type Application struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
	StudentID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	ProgramID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"program_id"`
	Status                string         `gorm:"not null;default:'draft'" json:"status"`
	Version               int            `gorm:"not null;default:0" json:"version"`
	OfferLetterDocumentID *uuid.UUID     `gorm:"type:uuid" json:"offer_letter_document_id"`
	CASDocumentID         *uuid.UUID     `gorm:"type:uuid" json:"cas_document_id"`
	VisaDocumentID        *uuid.UUID     `gorm:"type:uuid" json:"visa_document_id"`
	SearchIndexedAt       *time.Time     `json:"-"`

	Program      Program               `gorm:"foreignKey:ProgramID" json:"-"`
	Interview    *Interview            `gorm:"foreignKey:ApplicationID" json:"interview,omitempty"`
	StageEvents  []StageEvent          `gorm:"foreignKey:ApplicationID" json:"stage_events,omitempty"`
	DocumentSets []RequiredDocumentSet `gorm:"foreignKey:ApplicationID" json:"document_sets,omitempty"`
	Draft        *OfferLetterDraft     `gorm:"foreignKey:ApplicationID" json:"draft,omitempty"`
}

// EventTimes folds the stage-event rows into a name -> instant lookup.
func (a *Application) EventTimes() map[string]time.Time {
	times := make(map[string]time.Time, len(a.StageEvents))
	for _, ev := range a.StageEvents {
		times[ev.Name] = ev.OccurredAt
	}
	return times
}

// DocumentSet returns the requirement set for a stage, or nil if the
// stage has not been configured yet.
func (a *Application) DocumentSet(stage string) *RequiredDocumentSet {
	for i := range a.DocumentSets {
		if a.DocumentSets[i].Stage == stage {
			return &a.DocumentSets[i]
		}
	}
	return nil
}

// StageEvent is one append-only audit entry: a named pipeline instant.
// Rows are insert-only and unique per (application, name), so a stamped
// instant can never be altered or stamped twice.
type StageEvent struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ApplicationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_application_event" json:"application_id"`
	Name          string     `gorm:"not null;uniqueIndex:idx_application_event" json:"name"`
	OccurredAt    time.Time  `gorm:"not null" json:"occurred_at"`
	ActorID       *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
}

// Interview holds the scheduling and result details for an application's
// interview stage. Created only when the interview is scheduled; the
// result fields are written at most once.
type Interview struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	ApplicationID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"application_id"`
	ScheduledAt   time.Time      `gorm:"not null" json:"scheduled_at"`
	Location      string         `json:"location"`
	MeetingLink   string         `json:"meeting_link"`
	Notes         string         `gorm:"type:text" json:"notes"`
	Result        *string        `json:"result"`
	ResultNotes   string         `gorm:"type:text" json:"result_notes"`
	ResultDate    *time.Time     `json:"result_date"`
}

// RequiredDocumentSet is the admin-configured list of documents gating one
// stage of one application. Reconfiguration replaces the whole item list
// and resets ConfiguredAt.
type RequiredDocumentSet struct {
	ID            uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
	ApplicationID uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_application_stage" json:"application_id"`
	Stage         string                 `gorm:"not null;uniqueIndex:idx_application_stage" json:"stage"`
	ConfiguredAt  time.Time              `gorm:"not null" json:"configured_at"`
	Notes         string                 `gorm:"type:text" json:"notes"`
	Items         []RequiredDocumentItem `gorm:"foreignKey:SetID;constraint:OnDelete:CASCADE" json:"items"`
}

// AllRequiredSatisfied reports whether every required item has an upload.
func (s *RequiredDocumentSet) AllRequiredSatisfied() bool {
	for _, item := range s.Items {
		if item.IsRequired && !item.IsUploaded {
			return false
		}
	}
	return true
}

// MissingRequired lists the names of required items still awaiting upload.
func (s *RequiredDocumentSet) MissingRequired() []string {
	var missing []string
	for _, item := range s.Items {
		if item.IsRequired && !item.IsUploaded {
			missing = append(missing, item.DocumentName)
		}
	}
	return missing
}

// Item returns the item for a document type, or nil.
func (s *RequiredDocumentSet) Item(documentTypeID uuid.UUID) *RequiredDocumentItem {
	for i := range s.Items {
		if s.Items[i].DocumentTypeID == documentTypeID {
			return &s.Items[i]
		}
	}
	return nil
}

// RequiredDocumentItem is one document type an admin declared mandatory
// (or optional) for a stage of an application.
type RequiredDocumentItem struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SetID              uuid.UUID  `gorm:"type:uuid;not null;index" json:"set_id"`
	DocumentTypeID     uuid.UUID  `gorm:"type:uuid;not null" json:"document_type_id"`
	DocumentName       string     `gorm:"not null" json:"document_name"`
	Description        string     `json:"description"`
	IsRequired         bool       `gorm:"not null;default:true" json:"is_required"`
	IsUploaded         bool       `gorm:"not null;default:false" json:"is_uploaded"`
	UploadedDocumentID *uuid.UUID `gorm:"type:uuid" json:"uploaded_document_id"`
}

// DocumentType is one entry of the admin-managed document catalog.
type DocumentType struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	Description string         `json:"description"`
	IsCommon    bool           `gorm:"not null;default:false" json:"is_common"`
}

// UploadedDocument is the metadata of a blob held in the external store.
// The pipeline only tracks the reference; bytes live behind BlobKey.
type UploadedDocument struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ApplicationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"application_id"`
	FileName      string     `gorm:"not null" json:"file_name"`
	FileSize      int64      `gorm:"not null" json:"file_size"`
	ContentType   string     `json:"content_type"`
	BlobKey       string     `gorm:"not null" json:"-"`
	UploadedBy    *uuid.UUID `gorm:"type:uuid" json:"uploaded_by,omitempty"`
}

// OfferLetterDraft stores the generated offer-letter email text verbatim.
// The content is opaque to the lifecycle.
type OfferLetterDraft struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ApplicationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"application_id"`
	Body          string     `gorm:"type:text" json:"body"`
	GeneratedAt   *time.Time `json:"generated_at"`
	EditedByAdmin bool       `gorm:"not null;default:false" json:"edited_by_admin"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Program{},
		&Application{},
		&StageEvent{},
		&Interview{},
		&RequiredDocumentSet{},
		&RequiredDocumentItem{},
		&DocumentType{},
		&UploadedDocument{},
		&OfferLetterDraft{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
