package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/admissions/services/pipeline/internal/models"
)

func translateNotFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// ApplicationRepository provides access to application aggregates
type ApplicationRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

func preloadAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("StageEvents").
		Preload("Interview").
		Preload("DocumentSets.Items").
		Preload("Draft")
}

// Create inserts a new application row
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return errors.Wrap(err, "failed to create application")
	}
	return nil
}

// GetByID loads the full aggregate from the read-only database
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := preloadAggregate(r.readOnlyDB.WithContext(ctx)).First(&app, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get application by ID")
	}
	return &app, nil
}

// GetForUpdate loads the full aggregate inside the caller's write
// transaction. The snapshot it returns is what the optimistic version
// check in UpdateWithVersion protects.
func (r *ApplicationRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := preloadAggregate(tx.WithContext(ctx)).First(&app, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to load application for update")
	}
	return &app, nil
}

// UpdateWithVersion commits the aggregate row using the version column as
// a compare-and-swap, so two concurrent events on the same application
// can never both apply.
func (r *ApplicationRepository) UpdateWithVersion(ctx context.Context, tx *gorm.DB, app *models.Application, prevVersion int) error {
	result := tx.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND version = ?", app.ID, prevVersion).
		Updates(map[string]interface{}{
			"status":                   app.Status,
			"version":                  prevVersion + 1,
			"offer_letter_document_id": app.OfferLetterDocumentID,
			"cas_document_id":          app.CASDocumentID,
			"visa_document_id":         app.VisaDocumentID,
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update application")
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	app.Version = prevVersion + 1
	return nil
}

// AppendStageEvents inserts the freshly stamped audit rows. Rows are
// insert-only; the unique (application, name) index backs the write-once
// guarantee at the storage level too.
func (r *ApplicationRepository) AppendStageEvents(ctx context.Context, tx *gorm.DB, events []models.StageEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&events).Error; err != nil {
		return errors.Wrap(err, "failed to append stage events")
	}
	return nil
}

// ListByStudent lists a student's applications, newest first
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Application, error) {
	var apps []models.Application
	err := preloadAggregate(r.readOnlyDB.WithContext(ctx)).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications by student")
	}
	return apps, nil
}

// ListUnindexed returns applications whose last committed transition has
// not reached the search index yet.
func (r *ApplicationRepository) ListUnindexed(ctx context.Context, limit int) ([]models.Application, error) {
	var apps []models.Application
	err := preloadAggregate(r.readOnlyDB.WithContext(ctx)).
		Where("search_indexed_at IS NULL OR search_indexed_at < updated_at").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unindexed applications")
	}
	return apps, nil
}

// MarkIndexed records that the application's current state is indexed
func (r *ApplicationRepository) MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Update("search_indexed_at", at).Error
	return errors.Wrap(err, "failed to mark application as indexed")
}

// DocumentSetRepository provides access to stage requirement sets
type DocumentSetRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDocumentSetRepository creates a new repository
func NewDocumentSetRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DocumentSetRepository {
	return &DocumentSetRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Replace swaps the stage's requirement set for the given application:
// the previous set and its items are removed and the new set inserted in
// the caller's transaction.
func (r *DocumentSetRepository) Replace(ctx context.Context, tx *gorm.DB, set *models.RequiredDocumentSet) error {
	var previous models.RequiredDocumentSet
	err := tx.WithContext(ctx).
		Where("application_id = ? AND stage = ?", set.ApplicationID, set.Stage).
		First(&previous).Error
	if err == nil {
		if err := tx.WithContext(ctx).Where("set_id = ?", previous.ID).Delete(&models.RequiredDocumentItem{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete previous requirement items")
		}
		if err := tx.WithContext(ctx).Delete(&previous).Error; err != nil {
			return errors.Wrap(err, "failed to delete previous requirement set")
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(err, "failed to look up previous requirement set")
	}

	if err := tx.WithContext(ctx).Create(set).Error; err != nil {
		return errors.Wrap(err, "failed to create requirement set")
	}
	return nil
}

// UpdateItem persists an item's upload state
func (r *DocumentSetRepository) UpdateItem(ctx context.Context, tx *gorm.DB, item *models.RequiredDocumentItem) error {
	err := tx.WithContext(ctx).
		Model(&models.RequiredDocumentItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"is_uploaded":          item.IsUploaded,
			"uploaded_document_id": item.UploadedDocumentID,
		}).Error
	return errors.Wrap(err, "failed to update requirement item")
}

// InterviewRepository provides access to interview records
type InterviewRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewInterviewRepository creates a new repository
func NewInterviewRepository(db *gorm.DB, readOnlyDB *gorm.DB) *InterviewRepository {
	return &InterviewRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create inserts the interview record in the caller's transaction
func (r *InterviewRepository) Create(ctx context.Context, tx *gorm.DB, iv *models.Interview) error {
	if err := tx.WithContext(ctx).Create(iv).Error; err != nil {
		return errors.Wrap(err, "failed to create interview")
	}
	return nil
}

// SaveResult writes the result fields inside the caller's transaction.
// The guard in the lifecycle engine has already ensured they are unset.
func (r *InterviewRepository) SaveResult(ctx context.Context, tx *gorm.DB, iv *models.Interview) error {
	err := tx.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ?", iv.ID).
		Updates(map[string]interface{}{
			"result":       iv.Result,
			"result_notes": iv.ResultNotes,
			"result_date":  iv.ResultDate,
		}).Error
	return errors.Wrap(err, "failed to save interview result")
}

// UploadedDocumentRepository provides access to blob metadata rows
type UploadedDocumentRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewUploadedDocumentRepository creates a new repository
func NewUploadedDocumentRepository(db *gorm.DB, readOnlyDB *gorm.DB) *UploadedDocumentRepository {
	return &UploadedDocumentRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create inserts a new uploaded-document record
func (r *UploadedDocumentRepository) Create(ctx context.Context, doc *models.UploadedDocument) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return errors.Wrap(err, "failed to create uploaded document")
	}
	return nil
}

// GetByID fetches an uploaded document scoped to its application
func (r *UploadedDocumentRepository) GetByID(ctx context.Context, applicationID, id uuid.UUID) (*models.UploadedDocument, error) {
	var doc models.UploadedDocument
	err := r.readOnlyDB.WithContext(ctx).
		Where("id = ? AND application_id = ?", id, applicationID).
		First(&doc).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get uploaded document")
	}
	return &doc, nil
}

// DocumentTypeRepository provides access to the document-type catalog
type DocumentTypeRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDocumentTypeRepository creates a new repository
func NewDocumentTypeRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DocumentTypeRepository {
	return &DocumentTypeRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// List returns the catalog, common types first
func (r *DocumentTypeRepository) List(ctx context.Context) ([]models.DocumentType, error) {
	var types []models.DocumentType
	err := r.readOnlyDB.WithContext(ctx).
		Order("is_common DESC, name ASC").
		Find(&types).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list document types")
	}
	return types, nil
}

// GetByIDs resolves catalog entries; missing ids surface as ErrNotFound
func (r *DocumentTypeRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DocumentType, error) {
	var types []models.DocumentType
	err := r.readOnlyDB.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&types).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve document types")
	}
	if len(types) != len(ids) {
		return nil, ErrNotFound
	}
	return types, nil
}

// ProgramRepository provides access to program records
type ProgramRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProgramRepository creates a new repository
func NewProgramRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProgramRepository {
	return &ProgramRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a program by ID
func (r *ProgramRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	var program models.Program
	err := r.readOnlyDB.WithContext(ctx).First(&program, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get program by ID")
	}
	return &program, nil
}

// List returns active programs
func (r *ProgramRepository) List(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program
	err := r.readOnlyDB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&programs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list programs")
	}
	return programs, nil
}

// DraftRepository provides access to offer-letter draft rows
type DraftRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDraftRepository creates a new repository
func NewDraftRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DraftRepository {
	return &DraftRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByApplication fetches the draft for an application
func (r *DraftRepository) GetByApplication(ctx context.Context, applicationID uuid.UUID) (*models.OfferLetterDraft, error) {
	var draft models.OfferLetterDraft
	err := r.readOnlyDB.WithContext(ctx).
		Where("application_id = ?", applicationID).
		First(&draft).Error
	if err != nil {
		return nil, translateNotFound(err, "failed to get offer letter draft")
	}
	return &draft, nil
}

// Save upserts the draft row keyed by application
func (r *DraftRepository) Save(ctx context.Context, draft *models.OfferLetterDraft) error {
	var existing models.OfferLetterDraft
	err := r.db.WithContext(ctx).
		Where("application_id = ?", draft.ApplicationID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if draft.ID == uuid.Nil {
			draft.ID = uuid.New()
		}
		return errors.Wrap(r.db.WithContext(ctx).Create(draft).Error, "failed to create offer letter draft")
	}
	if err != nil {
		return errors.Wrap(err, "failed to look up offer letter draft")
	}

	err = r.db.WithContext(ctx).
		Model(&existing).
		Updates(map[string]interface{}{
			"body":            draft.Body,
			"generated_at":    draft.GeneratedAt,
			"edited_by_admin": draft.EditedByAdmin,
		}).Error
	return errors.Wrap(err, "failed to update offer letter draft")
}

// ListApplicationsMissingDraft returns applications where an offer letter
// was requested but no draft has been stored yet. Used by the fallback
// reconciliation job.
func (r *DraftRepository) ListApplicationsMissingDraft(ctx context.Context, limit int) ([]models.Application, error) {
	var apps []models.Application
	err := r.readOnlyDB.WithContext(ctx).
		Joins("JOIN stage_events ON stage_events.application_id = applications.id AND stage_events.name = ?", "offer_letter_requested_at").
		Joins("LEFT JOIN offer_letter_drafts ON offer_letter_drafts.application_id = applications.id").
		Where("offer_letter_drafts.id IS NULL").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applications missing a draft")
	}
	return apps, nil
}
