package services

import (
	"context"
	"testing"
	"time"

	"example.com/admissions/services/pipeline/internal/generator"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDraftStore struct {
	mock.Mock
}

func (m *MockDraftStore) GetByApplication(ctx context.Context, applicationID uuid.UUID) (*models.OfferLetterDraft, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OfferLetterDraft), args.Error(1)
}

func (m *MockDraftStore) Save(ctx context.Context, draft *models.OfferLetterDraft) error {
	args := m.Called(ctx, draft)
	return args.Error(0)
}

func (m *MockDraftStore) ListApplicationsMissingDraft(ctx context.Context, limit int) ([]models.Application, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Application), args.Error(1)
}

type MockProgramStore struct {
	mock.Mock
}

func (m *MockProgramStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Program), args.Error(1)
}

func (m *MockProgramStore) List(ctx context.Context) ([]models.Program, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Program), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateDraft(ctx context.Context, input generator.DraftInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func TestGenerateDraftStoresRenderedBody(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockDrafts := new(MockDraftStore)
	mockPrograms := new(MockProgramStore)
	mockGen := new(MockGenerator)

	app := newDraftApplication()
	program := &models.Program{ID: app.ProgramID, Name: "MSc Computer Science"}

	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	mockDrafts.On("GetByApplication", mock.Anything, app.ID).Return(nil, repositories.ErrNotFound)
	mockPrograms.On("GetByID", mock.Anything, app.ProgramID).Return(program, nil)
	mockGen.On("GenerateDraft", mock.Anything, mock.MatchedBy(func(input generator.DraftInput) bool {
		return input.ApplicationID == app.ID && input.ProgramName == "MSc Computer Science"
	})).Return("Dear applicant, congratulations...", nil)
	mockDrafts.On("Save", mock.Anything, mock.MatchedBy(func(draft *models.OfferLetterDraft) bool {
		return draft.ApplicationID == app.ID &&
			draft.Body == "Dear applicant, congratulations..." &&
			draft.GeneratedAt != nil
	})).Return(nil)

	service := &DraftService{
		appRepo:     mockApps,
		draftRepo:   mockDrafts,
		programRepo: mockPrograms,
		generator:   mockGen,
		metrics:     metrics.NewMetrics(),
		tracer:      noopTracer{},
	}

	require.NoError(t, service.GenerateDraft(context.Background(), app.ID))

	mockApps.AssertExpectations(t)
	mockDrafts.AssertExpectations(t)
	mockGen.AssertExpectations(t)
}

func TestGenerateDraftSkipsExistingBody(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockDrafts := new(MockDraftStore)

	app := newDraftApplication()
	generatedAt := time.Now().UTC()
	existing := &models.OfferLetterDraft{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		Body:          "Already generated",
		GeneratedAt:   &generatedAt,
	}

	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	mockDrafts.On("GetByApplication", mock.Anything, app.ID).Return(existing, nil)

	service := &DraftService{
		appRepo:   mockApps,
		draftRepo: mockDrafts,
		metrics:   metrics.NewMetrics(),
		tracer:    noopTracer{},
	}

	// Queue redelivery must not regenerate or overwrite the draft
	require.NoError(t, service.GenerateDraft(context.Background(), app.ID))

	mockDrafts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestGenerateDraftPropagatesGeneratorFailure(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockDrafts := new(MockDraftStore)
	mockPrograms := new(MockProgramStore)
	mockGen := new(MockGenerator)

	app := newDraftApplication()

	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	mockDrafts.On("GetByApplication", mock.Anything, app.ID).Return(nil, repositories.ErrNotFound)
	mockPrograms.On("GetByID", mock.Anything, app.ProgramID).Return(&models.Program{ID: app.ProgramID}, nil)
	mockGen.On("GenerateDraft", mock.Anything, mock.Anything).Return("", errors.New("renderer unavailable"))

	service := &DraftService{
		appRepo:     mockApps,
		draftRepo:   mockDrafts,
		programRepo: mockPrograms,
		generator:   mockGen,
		metrics:     metrics.NewMetrics(),
		tracer:      noopTracer{},
	}

	require.Error(t, service.GenerateDraft(context.Background(), app.ID))
	mockDrafts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSaveAdminEditCreatesDraftWhenMissing(t *testing.T) {
	mockDrafts := new(MockDraftStore)
	applicationID := uuid.New()

	mockDrafts.On("GetByApplication", mock.Anything, applicationID).Return(nil, repositories.ErrNotFound)
	mockDrafts.On("Save", mock.Anything, mock.MatchedBy(func(draft *models.OfferLetterDraft) bool {
		return draft.ApplicationID == applicationID && draft.EditedByAdmin && draft.Body == "Edited body"
	})).Return(nil)

	service := &DraftService{
		draftRepo: mockDrafts,
		metrics:   metrics.NewMetrics(),
		tracer:    noopTracer{},
	}

	draft, err := service.SaveAdminEdit(context.Background(), applicationID, "Edited body")
	require.NoError(t, err)
	require.True(t, draft.EditedByAdmin)

	mockDrafts.AssertExpectations(t)
}

func TestSaveAdminEditRejectsEmptyBody(t *testing.T) {
	service := &DraftService{
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	_, err := service.SaveAdminEdit(context.Background(), uuid.New(), "")
	require.Error(t, err)
}

func TestGenerateMissingDraftsContinuesOnFailure(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockDrafts := new(MockDraftStore)
	mockPrograms := new(MockProgramStore)
	mockGen := new(MockGenerator)

	first := newDraftApplication()
	second := newDraftApplication()

	mockDrafts.On("ListApplicationsMissingDraft", mock.Anything, 100).
		Return([]models.Application{*first, *second}, nil)

	mockApps.On("GetByID", mock.Anything, first.ID).Return(nil, errors.New("db hiccup"))

	mockApps.On("GetByID", mock.Anything, second.ID).Return(second, nil)
	mockDrafts.On("GetByApplication", mock.Anything, second.ID).Return(nil, repositories.ErrNotFound)
	mockPrograms.On("GetByID", mock.Anything, second.ProgramID).Return(&models.Program{ID: second.ProgramID, Name: "LLM Law"}, nil)
	mockGen.On("GenerateDraft", mock.Anything, mock.Anything).Return("Draft body", nil)
	mockDrafts.On("Save", mock.Anything, mock.Anything).Return(nil)

	service := &DraftService{
		appRepo:     mockApps,
		draftRepo:   mockDrafts,
		programRepo: mockPrograms,
		generator:   mockGen,
		metrics:     metrics.NewMetrics(),
		tracer:      noopTracer{},
	}

	// One bad application must not starve the rest of the batch
	require.NoError(t, service.GenerateMissingDrafts(context.Background()))

	mockDrafts.AssertExpectations(t)
	mockGen.AssertNumberOfCalls(t, "GenerateDraft", 1)
}
