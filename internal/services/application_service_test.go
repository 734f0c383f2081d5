package services

import (
	"context"
	"testing"
	"time"

	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/messaging"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/repositories"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Mock stores for testing

type MockApplicationStore struct {
	mock.Mock
}

func (m *MockApplicationStore) Create(ctx context.Context, app *models.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockApplicationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockApplicationStore) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Application, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockApplicationStore) UpdateWithVersion(ctx context.Context, tx *gorm.DB, app *models.Application, prevVersion int) error {
	args := m.Called(ctx, tx, app, prevVersion)
	return args.Error(0)
}

func (m *MockApplicationStore) AppendStageEvents(ctx context.Context, tx *gorm.DB, events []models.StageEvent) error {
	args := m.Called(ctx, tx, events)
	return args.Error(0)
}

func (m *MockApplicationStore) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Application, error) {
	args := m.Called(ctx, studentID)
	return args.Get(0).([]models.Application), args.Error(1)
}

func (m *MockApplicationStore) ListUnindexed(ctx context.Context, limit int) ([]models.Application, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Application), args.Error(1)
}

func (m *MockApplicationStore) MarkIndexed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockDocumentTypeStore struct {
	mock.Mock
}

func (m *MockDocumentTypeStore) List(ctx context.Context) ([]models.DocumentType, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.DocumentType), args.Error(1)
}

func (m *MockDocumentTypeStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DocumentType, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DocumentType), args.Error(1)
}

type MockTimelineCache struct {
	mock.Mock
}

func (m *MockTimelineCache) Get(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockTimelineCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) SendDraftRequest(ctx context.Context, req messaging.DraftRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockSearchIndex struct {
	mock.Mock
}

func (m *MockSearchIndex) IndexApplication(ctx context.Context, app *models.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockSearchIndex) SearchApplications(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}

// noopTracer satisfies tracing.Tracer for tests
type noopTracer struct{}

func (noopTracer) StartTransaction(name string) *newrelic.Transaction { return nil }
func (noopTracer) StartSpan(name string, txn *newrelic.Transaction) *newrelic.Segment {
	return &newrelic.Segment{}
}
func (noopTracer) EndTransaction(txn *newrelic.Transaction)                          {}
func (noopTracer) RecordError(txn *newrelic.Transaction, err error)                  {}
func (noopTracer) AddAttribute(txn *newrelic.Transaction, key string, v interface{}) {}
func (noopTracer) Application() *newrelic.Application                                { return nil }
func (noopTracer) Close()                                                            {}

func newDraftApplication() *models.Application {
	return &models.Application{
		ID:        uuid.New(),
		StudentID: uuid.New(),
		ProgramID: uuid.New(),
		Status:    string(lifecycle.StatusDraft),
		Version:   1,
	}
}

func TestCheckEventAllowsSubmitFromDraft(t *testing.T) {
	mockApps := new(MockApplicationStore)
	app := newDraftApplication()
	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)

	service := &ApplicationService{
		appRepo: mockApps,
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	decision, err := service.CheckEvent(context.Background(), app.ID, lifecycle.EventSubmit)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = service.CheckEvent(context.Background(), app.ID, lifecycle.EventApplyVisa)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.NotEmpty(t, decision.Reason)

	mockApps.AssertExpectations(t)
}

func TestCheckEventUnknownApplication(t *testing.T) {
	mockApps := new(MockApplicationStore)
	id := uuid.New()
	mockApps.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	service := &ApplicationService{
		appRepo: mockApps,
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	_, err := service.CheckEvent(context.Background(), id, lifecycle.EventSubmit)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTimelineCachesPerVersion(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockCache := new(MockTimelineCache)

	app := newDraftApplication()
	app.Version = 3
	expectedKey := "timeline:" + app.ID.String() + ":3"

	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	mockCache.On("Get", mock.Anything, expectedKey, mock.Anything).Return(errors.New("cache miss"))
	mockCache.On("Set", mock.Anything, expectedKey, mock.Anything, mock.Anything).Return(nil)

	service := &ApplicationService{
		appRepo: mockApps,
		cache:   mockCache,
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	steps, err := service.Timeline(context.Background(), app.ID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)

	mockApps.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestTimelineWorksWithoutCache(t *testing.T) {
	mockApps := new(MockApplicationStore)
	app := newDraftApplication()
	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)

	service := &ApplicationService{
		appRepo: mockApps,
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	steps, err := service.Timeline(context.Background(), app.ID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
}

func TestResolveSelectionsFillsCatalogFields(t *testing.T) {
	mockTypes := new(MockDocumentTypeStore)

	passport := models.DocumentType{ID: uuid.New(), Name: "Passport", Description: "Valid passport"}
	transcript := models.DocumentType{ID: uuid.New(), Name: "Transcript"}

	mockTypes.On("GetByIDs", mock.Anything, mock.Anything).
		Return([]models.DocumentType{passport, transcript}, nil)

	service := &ApplicationService{
		typeRepo: mockTypes,
		metrics:  metrics.NewMetrics(),
		tracer:   noopTracer{},
	}

	selections, err := service.resolveSelections(context.Background(), []DocumentTypeRequest{
		{TypeID: passport.ID, Required: true},
		{TypeID: transcript.ID, Required: false},
	})
	require.NoError(t, err)
	require.Len(t, selections, 2)
	require.Equal(t, "Passport", selections[0].Name)
	require.Equal(t, "Valid passport", selections[0].Description)
	require.True(t, selections[0].Required)
	require.False(t, selections[1].Required)
}

func TestResolveSelectionsRejectsUnknownType(t *testing.T) {
	mockTypes := new(MockDocumentTypeStore)
	mockTypes.On("GetByIDs", mock.Anything, mock.Anything).Return(nil, repositories.ErrNotFound)

	service := &ApplicationService{
		typeRepo: mockTypes,
		metrics:  metrics.NewMetrics(),
		tracer:   noopTracer{},
	}

	_, err := service.resolveSelections(context.Background(), []DocumentTypeRequest{
		{TypeID: uuid.New(), Required: true},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDispatchSideEffectsSendsDraftRequest(t *testing.T) {
	mockPublisher := new(MockPublisher)

	app := newDraftApplication()
	actor := uuid.New()

	mockPublisher.On("SendDraftRequest", mock.Anything, mock.MatchedBy(func(req messaging.DraftRequest) bool {
		return req.ApplicationID == app.ID && req.StudentID == app.StudentID
	})).Return(nil)

	service := &ApplicationService{
		publisher: mockPublisher,
		metrics:   metrics.NewMetrics(),
		tracer:    noopTracer{},
	}

	outcome := &lifecycle.Outcome{
		Effects: []lifecycle.SideEffect{lifecycle.EffectGenerateOfferLetterDraft},
	}
	service.dispatchSideEffects(context.Background(), app, outcome, &actor)

	mockPublisher.AssertExpectations(t)
}

func TestDispatchSideEffectsToleratesPublishFailure(t *testing.T) {
	mockPublisher := new(MockPublisher)
	mockPublisher.On("SendDraftRequest", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	service := &ApplicationService{
		publisher: mockPublisher,
		metrics:   metrics.NewMetrics(),
		tracer:    noopTracer{},
	}

	outcome := &lifecycle.Outcome{
		Effects: []lifecycle.SideEffect{lifecycle.EffectGenerateOfferLetterDraft},
	}

	// Transition is already committed; a failed enqueue must not panic or
	// surface an error.
	service.dispatchSideEffects(context.Background(), newDraftApplication(), outcome, nil)

	mockPublisher.AssertExpectations(t)
}

func TestReindexPendingMarksHighWaterMark(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockIndex := new(MockSearchIndex)

	app := newDraftApplication()
	mockApps.On("ListUnindexed", mock.Anything, 100).Return([]models.Application{*app}, nil)
	mockIndex.On("IndexApplication", mock.Anything, mock.Anything).Return(nil)
	mockApps.On("MarkIndexed", mock.Anything, app.ID, mock.Anything).Return(nil)

	service := &ApplicationService{
		appRepo:       mockApps,
		elasticClient: mockIndex,
		metrics:       metrics.NewMetrics(),
		tracer:        noopTracer{},
	}

	require.NoError(t, service.ReindexPending(context.Background()))

	mockApps.AssertExpectations(t)
	mockIndex.AssertExpectations(t)
}

func TestReindexPendingSkipsWithoutSearch(t *testing.T) {
	service := &ApplicationService{
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	require.NoError(t, service.ReindexPending(context.Background()))
}

func TestConfigureEventForStage(t *testing.T) {
	event, err := configureEventFor(lifecycle.StageInterview)
	require.NoError(t, err)
	require.Equal(t, lifecycle.EventConfigureInterviewDocs, event)

	event, err = configureEventFor(lifecycle.StageCAS)
	require.NoError(t, err)
	require.Equal(t, lifecycle.EventConfigureCASDocs, event)

	event, err = configureEventFor(lifecycle.StageVisa)
	require.NoError(t, err)
	require.Equal(t, lifecycle.EventConfigureVisaDocs, event)

	_, err = configureEventFor(lifecycle.Stage("passport"))
	require.Error(t, err)
}
