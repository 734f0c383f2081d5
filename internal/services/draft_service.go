package services

import (
	"context"
	"time"

	"example.com/admissions/services/pipeline/internal/generator"
	"example.com/admissions/services/pipeline/internal/messaging"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/repositories"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type draftStore interface {
	GetByApplication(ctx context.Context, applicationID uuid.UUID) (*models.OfferLetterDraft, error)
	Save(ctx context.Context, draft *models.OfferLetterDraft) error
	ListApplicationsMissingDraft(ctx context.Context, limit int) ([]models.Application, error)
}

// DraftService produces and maintains offer letter drafts
type DraftService struct {
	db          *gorm.DB
	readOnlyDB  *gorm.DB
	appRepo     applicationStore
	draftRepo   draftStore
	programRepo programStore
	generator   generator.Client
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewDraftService creates a new draft service
func NewDraftService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	generatorClient generator.Client,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *DraftService {
	return &DraftService{
		db:          db,
		readOnlyDB:  readOnlyDB,
		appRepo:     repositories.NewApplicationRepository(db, readOnlyDB),
		draftRepo:   repositories.NewDraftRepository(db, readOnlyDB),
		programRepo: repositories.NewProgramRepository(db, readOnlyDB),
		generator:   generatorClient,
		metrics:     metricsCollector,
		tracer:      tracer,
	}
}

// ProcessDraftMessage handles one draft request from the queue
func (s *DraftService) ProcessDraftMessage(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error {
	req, err := messaging.ExtractDraftRequest(message)
	if err != nil {
		return errors.Wrap(err, "failed to extract draft request")
	}

	span := s.tracer.StartSpan("generate-draft", txn)
	err = s.GenerateDraft(ctx, req.ApplicationID)
	span.End()

	if err != nil {
		return errors.Wrap(err, "failed to generate draft")
	}

	log.Info().
		Str("application_id", req.ApplicationID.String()).
		Msg("Draft request processed")

	return nil
}

// GenerateDraft renders and stores the offer letter draft for an
// application. Redeliveries and an admin's manual edits are both
// preserved: an existing body is never overwritten.
func (s *DraftService) GenerateDraft(ctx context.Context, applicationID uuid.UUID) error {
	app, err := s.appRepo.GetByID(ctx, applicationID)
	if err != nil {
		return errors.Wrap(err, "failed to load application")
	}

	existing, err := s.draftRepo.GetByApplication(ctx, applicationID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Body != "" {
		log.Info().
			Str("application_id", applicationID.String()).
			Msg("Draft already present, skipping generation")
		return nil
	}

	program, err := s.programRepo.GetByID(ctx, app.ProgramID)
	if err != nil {
		return errors.Wrap(err, "failed to load program")
	}

	body, err := s.generator.GenerateDraft(ctx, generator.DraftInput{
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		ProgramID:     program.ID,
		ProgramName:   program.Name,
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	draft := &models.OfferLetterDraft{
		ApplicationID: app.ID,
		Body:          body,
		GeneratedAt:   &now,
	}
	if existing != nil {
		draft.ID = existing.ID
	}

	if err := s.draftRepo.Save(ctx, draft); err != nil {
		return err
	}

	s.metrics.IncrementCounter("drafts_generated")

	log.Info().
		Str("application_id", app.ID.String()).
		Msg("Offer letter draft generated")

	return nil
}

// GetDraft returns the stored draft for an application
func (s *DraftService) GetDraft(ctx context.Context, applicationID uuid.UUID) (*models.OfferLetterDraft, error) {
	return s.draftRepo.GetByApplication(ctx, applicationID)
}

// SaveAdminEdit stores an admin's edited draft body
func (s *DraftService) SaveAdminEdit(ctx context.Context, applicationID uuid.UUID, body string) (*models.OfferLetterDraft, error) {
	if body == "" {
		return nil, errors.New("draft body must not be empty")
	}

	draft, err := s.draftRepo.GetByApplication(ctx, applicationID)
	if errors.Is(err, repositories.ErrNotFound) {
		draft = &models.OfferLetterDraft{
			ID:            uuid.New(),
			ApplicationID: applicationID,
		}
	} else if err != nil {
		return nil, err
	}

	draft.Body = body
	draft.EditedByAdmin = true

	if err := s.draftRepo.Save(ctx, draft); err != nil {
		return nil, err
	}

	log.Info().
		Str("application_id", applicationID.String()).
		Msg("Offer letter draft edited by admin")

	return draft, nil
}

// GenerateMissingDrafts renders drafts for applications whose queued
// request never got processed. Runs from the worker as a fallback.
func (s *DraftService) GenerateMissingDrafts(ctx context.Context) error {
	txn := s.tracer.StartTransaction("generate-missing-drafts")
	defer s.tracer.EndTransaction(txn)

	apps, err := s.draftRepo.ListApplicationsMissingDraft(ctx, 100)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to list applications missing drafts")
	}

	log.Info().Msgf("Found %d applications missing an offer letter draft", len(apps))

	for _, app := range apps {
		if err := s.GenerateDraft(ctx, app.ID); err != nil {
			log.Error().
				Err(err).
				Str("application_id", app.ID.String()).
				Msg("Failed to generate draft during fallback job")
			s.tracer.RecordError(txn, err)
		}
	}

	return nil
}
