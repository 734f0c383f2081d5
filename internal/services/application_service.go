package services

import (
	"context"
	"time"

	"example.com/admissions/services/pipeline/internal/cache"
	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/messaging"
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

// Store interfaces cover the persistence surface the service touches.
// The concrete repositories satisfy them; tests substitute mocks.

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Application, error)
	UpdateWithVersion(ctx context.Context, tx *gorm.DB, app *models.Application, prevVersion int) error
	AppendStageEvents(ctx context.Context, tx *gorm.DB, events []models.StageEvent) error
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Application, error)
	ListUnindexed(ctx context.Context, limit int) ([]models.Application, error)
	MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type documentSetStore interface {
	Replace(ctx context.Context, tx *gorm.DB, set *models.RequiredDocumentSet) error
	UpdateItem(ctx context.Context, tx *gorm.DB, item *models.RequiredDocumentItem) error
}

type interviewStore interface {
	Create(ctx context.Context, tx *gorm.DB, iv *models.Interview) error
	SaveResult(ctx context.Context, tx *gorm.DB, iv *models.Interview) error
}

type documentTypeStore interface {
	List(ctx context.Context) ([]models.DocumentType, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DocumentType, error)
}

type programStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Program, error)
	List(ctx context.Context) ([]models.Program, error)
}

type timelineCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type searchIndex interface {
	IndexApplication(ctx context.Context, app *models.Application) error
	SearchApplications(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// DocumentTypeRequest is one catalog entry chosen when configuring a
// stage's requirement set.
type DocumentTypeRequest struct {
	TypeID   uuid.UUID `json:"type_id"`
	Required bool      `json:"required"`
}

// ApplicationService drives applications through the admissions pipeline
type ApplicationService struct {
	db            *gorm.DB // Write database
	readOnlyDB    *gorm.DB // Read-only database
	appRepo       applicationStore
	setRepo       documentSetStore
	interviewRepo interviewStore
	typeRepo      documentTypeStore
	programRepo   programStore
	cache         timelineCache
	elasticClient searchIndex
	publisher     messaging.Publisher
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewApplicationService creates a new application service
func NewApplicationService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	publisher messaging.Publisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *ApplicationService {
	svc := &ApplicationService{
		db:            db,
		readOnlyDB:    readOnlyDB,
		appRepo:       repositories.NewApplicationRepository(db, readOnlyDB),
		setRepo:       repositories.NewDocumentSetRepository(db, readOnlyDB),
		interviewRepo: repositories.NewInterviewRepository(db, readOnlyDB),
		typeRepo:      repositories.NewDocumentTypeRepository(db, readOnlyDB),
		programRepo:   repositories.NewProgramRepository(db, readOnlyDB),
		publisher:     publisher,
		metrics:       metricsCollector,
		tracer:        tracer,
	}

	// Optional collaborators stay nil when unavailable so a degraded
	// deployment still commits transitions.
	if redisCache != nil {
		svc.cache = redisCache
	}
	if elasticClient != nil {
		svc.elasticClient = elasticClient
	}

	return svc
}

// CreateApplication opens a new draft application for a student
func (s *ApplicationService) CreateApplication(ctx context.Context, studentID, programID uuid.UUID) (*models.Application, error) {
	txn := s.tracer.StartTransaction("create-application")
	defer s.tracer.EndTransaction(txn)

	program, err := s.programRepo.GetByID(ctx, programID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to resolve program")
	}

	app := &models.Application{
		ID:        uuid.New(),
		StudentID: studentID,
		ProgramID: program.ID,
		Status:    string(lifecycle.StatusDraft),
		Version:   1,
	}

	if err := s.appRepo.Create(ctx, app); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("application_id", app.ID.String()).
		Str("student_id", studentID.String()).
		Str("program_id", program.ID.String()).
		Msg("Application created")

	return app, nil
}

// GetApplication loads the full application aggregate
func (s *ApplicationService) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return s.appRepo.GetByID(ctx, id)
}

// ListStudentApplications lists a student's applications
func (s *ApplicationService) ListStudentApplications(ctx context.Context, studentID uuid.UUID) ([]models.Application, error) {
	return s.appRepo.ListByStudent(ctx, studentID)
}

// SearchApplications runs an admin query against the search index.
func (s *ApplicationService) SearchApplications(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	if s.elasticClient == nil {
		return nil, errors.New("search is not configured")
	}
	return s.elasticClient.SearchApplications(ctx, query)
}

// ListPrograms lists the active programs
func (s *ApplicationService) ListPrograms(ctx context.Context) ([]models.Program, error) {
	return s.programRepo.List(ctx)
}

// ListDocumentTypes returns the document type catalog
func (s *ApplicationService) ListDocumentTypes(ctx context.Context) ([]models.DocumentType, error) {
	if s.cache != nil {
		var cached []models.DocumentType
		if err := s.cache.Get(ctx, cache.DocumentTypesKey(), &cached); err == nil {
			return cached, nil
		}
	}

	types, err := s.typeRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.DocumentTypesKey(), types, cache.DocumentTypesTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache document type catalog")
		}
	}

	return types, nil
}

// CheckEvent reports whether an event would currently be accepted,
// without changing anything.
func (s *ApplicationService) CheckEvent(ctx context.Context, id uuid.UUID, event lifecycle.Event) (lifecycle.Decision, error) {
	app, err := s.appRepo.GetByID(ctx, id)
	if err != nil {
		return lifecycle.Decision{}, err
	}

	return lifecycle.Check(lifecycle.NewSnapshot(app), event), nil
}

// Timeline projects the application's progress view. Projections are
// cached per (id, version) so any committed transition starts a fresh
// cache entry.
func (s *ApplicationService) Timeline(ctx context.Context, id uuid.UUID) ([]lifecycle.Step, error) {
	app, err := s.appRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key := cache.TimelineKey(app.ID, app.Version)
	if s.cache != nil {
		var cached []lifecycle.Step
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	steps := lifecycle.Project(lifecycle.NewSnapshot(app))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, steps, cache.TimelineTTL); err != nil {
			log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("Failed to cache timeline")
		}
	}

	return steps, nil
}

// Submit submits a draft application for review
func (s *ApplicationService) Submit(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventSubmit})
}

// BeginReview moves a submitted application into review
func (s *ApplicationService) BeginReview(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventBeginReview})
}

// RequestOfferLetter requests an offer letter for the application
func (s *ApplicationService) RequestOfferLetter(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventRequestOfferLetter})
}

// UploadOfferLetter records the received offer letter document
func (s *ApplicationService) UploadOfferLetter(ctx context.Context, id uuid.UUID, actor *uuid.UUID, documentID uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:              lifecycle.EventUploadOfferLetter,
		UploadedDocumentID: &documentID,
	})
}

// ConfigureStageDocuments (re)configures the document requirement set for
// a stage. Selections are resolved against the catalog.
func (s *ApplicationService) ConfigureStageDocuments(ctx context.Context, id uuid.UUID, actor *uuid.UUID, stage lifecycle.Stage, requests []DocumentTypeRequest, notes string) (*models.Application, error) {
	event, err := configureEventFor(stage)
	if err != nil {
		return nil, err
	}

	selections, err := s.resolveSelections(ctx, requests)
	if err != nil {
		return nil, err
	}

	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:         event,
		DocumentTypes: selections,
		Notes:         notes,
	})
}

// RequestInterview requests an interview once the interview documents are in
func (s *ApplicationService) RequestInterview(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventRequestInterview})
}

// ScheduleInterview schedules the requested interview
func (s *ApplicationService) ScheduleInterview(ctx context.Context, id uuid.UUID, actor *uuid.UUID, schedule lifecycle.InterviewSchedule) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:    lifecycle.EventScheduleInterview,
		Schedule: &schedule,
	})
}

// RecordInterviewResult records the pass or fail outcome of the interview
func (s *ApplicationService) RecordInterviewResult(ctx context.Context, id uuid.UUID, actor *uuid.UUID, result, notes string) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:       lifecycle.EventRecordInterviewResult,
		Result:      result,
		ResultNotes: notes,
	})
}

// ApplyCAS marks the CAS application as started
func (s *ApplicationService) ApplyCAS(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventApplyCAS})
}

// UploadCAS records the received CAS document
func (s *ApplicationService) UploadCAS(ctx context.Context, id uuid.UUID, actor *uuid.UUID, documentID uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:              lifecycle.EventUploadCAS,
		UploadedDocumentID: &documentID,
	})
}

// ApplyVisa marks the visa application as started
func (s *ApplicationService) ApplyVisa(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{Event: lifecycle.EventApplyVisa})
}

// UploadVisa records the received visa document and completes the pipeline
func (s *ApplicationService) UploadVisa(ctx context.Context, id uuid.UUID, actor *uuid.UUID, documentID uuid.UUID) (*models.Application, error) {
	return s.applyEvent(ctx, id, actor, lifecycle.Command{
		Event:              lifecycle.EventUploadVisa,
		UploadedDocumentID: &documentID,
	})
}

// applyEvent runs one lifecycle command against the current aggregate:
// guard, mutate and persist in a single transaction with an optimistic
// version check, then dispatch side effects post-commit.
func (s *ApplicationService) applyEvent(ctx context.Context, id uuid.UUID, actor *uuid.UUID, cmd lifecycle.Command) (*models.Application, error) {
	txn := s.tracer.StartTransaction("apply-" + string(cmd.Event))
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "application_id", id.String())

	start := time.Now()
	var app *models.Application
	var outcome *lifecycle.Outcome

	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.appRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		app = loaded
		prevVersion := app.Version

		snap := lifecycle.NewSnapshot(app)
		outcome, err = lifecycle.Apply(snap, cmd, time.Now())
		if err != nil {
			s.metrics.RecordRejectedEvent(string(cmd.Event))
			return err
		}

		events := make([]models.StageEvent, 0, len(outcome.Stamps))
		for _, stamp := range outcome.Stamps {
			events = append(events, models.StageEvent{
				ApplicationID: app.ID,
				Name:          stamp.Name,
				OccurredAt:    stamp.At,
				ActorID:       actor,
			})
		}
		if err := s.appRepo.AppendStageEvents(ctx, tx, events); err != nil {
			return err
		}

		if outcome.ReplacedSet != nil {
			if err := s.setRepo.Replace(ctx, tx, outcome.ReplacedSet); err != nil {
				return err
			}
		}

		if outcome.Interview != nil {
			if cmd.Event == lifecycle.EventScheduleInterview {
				if err := s.interviewRepo.Create(ctx, tx, outcome.Interview); err != nil {
					return err
				}
			} else {
				if err := s.interviewRepo.SaveResult(ctx, tx, outcome.Interview); err != nil {
					return err
				}
			}
		}

		return s.appRepo.UpdateWithVersion(ctx, tx, app, prevVersion)
	})

	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.RecordTransition(string(cmd.Event))
	s.metrics.RecordTimer("apply_event_ms", time.Since(start).Milliseconds())

	log.Info().
		Str("application_id", app.ID.String()).
		Str("event", string(cmd.Event)).
		Str("from", string(outcome.Previous)).
		Str("to", string(outcome.Status)).
		Str("actor", actorString(actor)).
		Msg("Transition committed")

	s.dispatchSideEffects(ctx, app, outcome, actor)
	s.indexApplication(ctx, app)

	return app, nil
}

// dispatchSideEffects fires the outcome's post-commit effects. The
// transition is already durable; failures here are logged and left to the
// worker's reconciliation job.
func (s *ApplicationService) dispatchSideEffects(ctx context.Context, app *models.Application, outcome *lifecycle.Outcome, actor *uuid.UUID) {
	for _, effect := range outcome.Effects {
		switch effect {
		case lifecycle.EffectGenerateOfferLetterDraft:
			if s.publisher == nil {
				log.Warn().
					Str("application_id", app.ID.String()).
					Msg("No queue configured, draft generation left to reconciliation")
				continue
			}
			req := messaging.DraftRequest{
				ApplicationID: app.ID,
				StudentID:     app.StudentID,
				ProgramID:     app.ProgramID,
				RequestedAt:   time.Now().UTC(),
				ActorID:       actor,
			}
			if err := s.publisher.SendDraftRequest(ctx, req); err != nil {
				log.Warn().
					Err(err).
					Str("application_id", app.ID.String()).
					Msg("Failed to enqueue draft request, reconciliation will retry")
			}
		}
	}
}

// indexApplication pushes the committed state into the search index and
// records the high-water mark. Failures leave the row for ReindexPending.
func (s *ApplicationService) indexApplication(ctx context.Context, app *models.Application) {
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

// ReindexPending pushes applications whose committed state never reached
// the search index. Runs from the worker as a fallback.
func (s *ApplicationService) ReindexPending(ctx context.Context) error {
	if s.elasticClient == nil {
		return nil
	}

	txn := s.tracer.StartTransaction("reindex-pending")
	defer s.tracer.EndTransaction(txn)

	apps, err := s.appRepo.ListUnindexed(ctx, 100)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to list unindexed applications")
	}

	log.Info().Msgf("Found %d applications pending reindex", len(apps))

	for i := range apps {
		app := &apps[i]
		if err := s.elasticClient.IndexApplication(ctx, app); err != nil {
			log.Error().Err(err).Str("application_id", app.ID.String()).Msg("Failed to reindex application")
			s.tracer.RecordError(txn, err)
			continue
		}
		if err := s.appRepo.MarkIndexed(ctx, app.ID, time.Now().UTC()); err != nil {
			log.Error().Err(err).Str("application_id", app.ID.String()).Msg("Failed to record index high-water mark")
		}
	}

	return nil
}

// resolveSelections validates the requested type ids against the catalog
// and fills in the descriptive fields.
func (s *ApplicationService) resolveSelections(ctx context.Context, requests []DocumentTypeRequest) ([]lifecycle.DocumentTypeSelection, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.TypeID)
	}

	types, err := s.typeRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve document types")
	}

	byID := make(map[uuid.UUID]models.DocumentType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	selections := make([]lifecycle.DocumentTypeSelection, 0, len(requests))
	for _, req := range requests {
		t, ok := byID[req.TypeID]
		if !ok {
			return nil, repositories.ErrNotFound
		}
		selections = append(selections, lifecycle.DocumentTypeSelection{
			TypeID:      t.ID,
			Name:        t.Name,
			Description: t.Description,
			Required:    req.Required,
		})
	}

	return selections, nil
}

func actorString(actor *uuid.UUID) string {
	if actor == nil {
		return ""
	}
	return actor.String()
}

func configureEventFor(stage lifecycle.Stage) (lifecycle.Event, error) {
	switch stage {
	case lifecycle.StageInterview:
		return lifecycle.EventConfigureInterviewDocs, nil
	case lifecycle.StageCAS:
		return lifecycle.EventConfigureCASDocs, nil
	case lifecycle.StageVisa:
		return lifecycle.EventConfigureVisaDocs, nil
	default:
		return "", errors.Errorf("unknown document stage %q", stage)
	}
}
