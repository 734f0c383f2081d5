package services

import (
	"context"
	"time"

	"example.com/admissions/services/pipeline/internal/blob"
	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/repositories"
	"example.com/admissions/services/pipeline/internal/search"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type uploadStore interface {
	Create(ctx context.Context, doc *models.UploadedDocument) error
	GetByID(ctx context.Context, applicationID, id uuid.UUID) (*models.UploadedDocument, error)
}

// DocumentService handles document blobs and requirement bookkeeping
type DocumentService struct {
	db            *gorm.DB
	readOnlyDB    *gorm.DB
	appRepo       applicationStore
	setRepo       documentSetStore
	uploadRepo    uploadStore
	blobStore     blob.Store
	keyPrefix     string
	elasticClient searchIndex
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewDocumentService creates a new document service
func NewDocumentService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	blobStore blob.Store,
	keyPrefix string,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *DocumentService {
	svc := &DocumentService{
		db:         db,
		readOnlyDB: readOnlyDB,
		appRepo:    repositories.NewApplicationRepository(db, readOnlyDB),
		setRepo:    repositories.NewDocumentSetRepository(db, readOnlyDB),
		uploadRepo: repositories.NewUploadedDocumentRepository(db, readOnlyDB),
		blobStore:  blobStore,
		keyPrefix:  keyPrefix,
		metrics:    metricsCollector,
		tracer:     tracer,
	}

	if elasticClient != nil {
		svc.elasticClient = elasticClient
	}

	return svc
}

// Upload stores the document bytes in the blob store and records the
// metadata row. The returned reference is what lifecycle events and
// requirement items link against.
func (s *DocumentService) Upload(ctx context.Context, applicationID uuid.UUID, actor *uuid.UUID, fileName, contentType string, body []byte) (*models.UploadedDocument, error) {
	txn := s.tracer.StartTransaction("upload-document")
	defer s.tracer.EndTransaction(txn)

	if len(body) == 0 {
		return nil, errors.New("uploaded file is empty")
	}

	// The application must exist before we accept bytes for it
	if _, err := s.appRepo.GetByID(ctx, applicationID); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	doc := &models.UploadedDocument{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		FileName:      fileName,
		FileSize:      int64(len(body)),
		ContentType:   contentType,
		UploadedBy:    actor,
	}
	doc.BlobKey = blob.DocumentKey(s.keyPrefix, applicationID, doc.ID)

	if err := s.blobStore.Put(ctx, doc.BlobKey, contentType, body); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if err := s.uploadRepo.Create(ctx, doc); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.IncrementCounter("documents_uploaded")

	log.Info().
		Str("application_id", applicationID.String()).
		Str("document_id", doc.ID.String()).
		Str("file_name", fileName).
		Int64("size", doc.FileSize).
		Msg("Document uploaded")

	return doc, nil
}

// MarkUploaded links an uploaded document to the stage's requirement item
// for the given document type. Idempotent on redelivery; satisfying the
// visa set readies the visa application in the same commit.
func (s *DocumentService) MarkUploaded(ctx context.Context, applicationID uuid.UUID, stage lifecycle.Stage, documentTypeID, uploadedDocumentID uuid.UUID) (*models.Application, *lifecycle.MarkResult, error) {
	txn := s.tracer.StartTransaction("mark-document-uploaded")
	defer s.tracer.EndTransaction(txn)

	// The referenced upload must belong to this application
	if _, err := s.uploadRepo.GetByID(ctx, applicationID, uploadedDocumentID); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, nil, err
	}

	var app *models.Application
	var result *lifecycle.MarkResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.appRepo.GetForUpdate(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		app = loaded
		prevVersion := app.Version

		snap := lifecycle.NewSnapshot(app)
		result, err = lifecycle.MarkUploaded(snap, stage, documentTypeID, uploadedDocumentID)
		if err != nil {
			return err
		}
		if !result.Changed {
			return nil
		}

		if err := s.setRepo.UpdateItem(ctx, tx, result.Item); err != nil {
			return err
		}

		// Bump the version even without a status change so stale
		// timeline cache entries roll over.
		return s.appRepo.UpdateWithVersion(ctx, tx, app, prevVersion)
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, nil, err
	}

	if result.Changed {
		log.Info().
			Str("application_id", applicationID.String()).
			Str("stage", string(stage)).
			Str("document_type_id", documentTypeID.String()).
			Msg("Requirement item satisfied")

		if result.PromotedTo != nil {
			s.metrics.IncrementCounter("visa_set_promotions")
			log.Info().
				Str("application_id", applicationID.String()).
				Str("to", string(*result.PromotedTo)).
				Msg("Application promoted by satisfied document set")
		}

		s.indexApplication(ctx, app)
	}

	return app, result, nil
}

// DownloadURL returns a time-limited URL for a stored document
func (s *DocumentService) DownloadURL(ctx context.Context, applicationID, documentID uuid.UUID) (string, error) {
	doc, err := s.uploadRepo.GetByID(ctx, applicationID, documentID)
	if err != nil {
		return "", err
	}

	return s.blobStore.PresignGet(ctx, doc.BlobKey)
}

// Download fetches the document bytes through the service, for callers
// that cannot follow a presigned URL to the bucket.
func (s *DocumentService) Download(ctx context.Context, applicationID, documentID uuid.UUID) (*models.UploadedDocument, []byte, error) {
	doc, err := s.uploadRepo.GetByID(ctx, applicationID, documentID)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.blobStore.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to fetch document from blob store")
	}

	return doc, body, nil
}

func (s *DocumentService) indexApplication(ctx context.Context, app *models.Application) {
	if s.elasticClient == nil {
		return
	}

	if err := s.elasticClient.IndexApplication(ctx, app); err != nil {
		log.Warn().
			Err(err).
			Str("application_id", app.ID.String()).
			Msg("Failed to index application, reindex job will retry")
		return
	}

	if err := s.appRepo.MarkIndexed(ctx, app.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("Failed to record index high-water mark")
	}
}
