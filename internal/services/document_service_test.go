package services

import (
	"context"
	"testing"

	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/metrics"
	"example.com/admissions/services/pipeline/internal/models"
	"example.com/admissions/services/pipeline/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploadStore struct {
	mock.Mock
}

func (m *MockUploadStore) Create(ctx context.Context, doc *models.UploadedDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockUploadStore) GetByID(ctx context.Context, applicationID, id uuid.UUID) (*models.UploadedDocument, error) {
	args := m.Called(ctx, applicationID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UploadedDocument), args.Error(1)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func TestUploadStoresBlobAndMetadata(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockUploads := new(MockUploadStore)
	mockBlobs := new(MockBlobStore)

	app := newDraftApplication()
	actor := uuid.New()
	body := []byte("%PDF-1.7 fake offer letter")

	mockApps.On("GetByID", mock.Anything, app.ID).Return(app, nil)
	mockBlobs.On("Put", mock.Anything, mock.Anything, "application/pdf", body).Return(nil)
	mockUploads.On("Create", mock.Anything, mock.MatchedBy(func(doc *models.UploadedDocument) bool {
		return doc.ApplicationID == app.ID &&
			doc.FileName == "offer.pdf" &&
			doc.FileSize == int64(len(body)) &&
			doc.BlobKey != ""
	})).Return(nil)

	service := &DocumentService{
		appRepo:    mockApps,
		uploadRepo: mockUploads,
		blobStore:  mockBlobs,
		keyPrefix:  "applications",
		metrics:    metrics.NewMetrics(),
		tracer:     noopTracer{},
	}

	doc, err := service.Upload(context.Background(), app.ID, &actor, "offer.pdf", "application/pdf", body)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Equal(t, &actor, doc.UploadedBy)

	mockApps.AssertExpectations(t)
	mockBlobs.AssertExpectations(t)
	mockUploads.AssertExpectations(t)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	service := &DocumentService{
		metrics: metrics.NewMetrics(),
		tracer:  noopTracer{},
	}

	_, err := service.Upload(context.Background(), uuid.New(), nil, "empty.pdf", "application/pdf", nil)
	require.Error(t, err)
}

func TestUploadRejectsUnknownApplication(t *testing.T) {
	mockApps := new(MockApplicationStore)
	mockBlobs := new(MockBlobStore)
	id := uuid.New()
	mockApps.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	service := &DocumentService{
		appRepo:   mockApps,
		blobStore: mockBlobs,
		metrics:   metrics.NewMetrics(),
		tracer:    noopTracer{},
	}

	_, err := service.Upload(context.Background(), id, nil, "offer.pdf", "application/pdf", []byte("x"))
	require.ErrorIs(t, err, repositories.ErrNotFound)

	// No bytes may land in the store for a rejected upload
	mockBlobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkUploadedRejectsForeignDocument(t *testing.T) {
	mockUploads := new(MockUploadStore)
	applicationID := uuid.New()
	documentID := uuid.New()

	mockUploads.On("GetByID", mock.Anything, applicationID, documentID).
		Return(nil, repositories.ErrNotFound)

	service := &DocumentService{
		uploadRepo: mockUploads,
		metrics:    metrics.NewMetrics(),
		tracer:     noopTracer{},
	}

	_, _, err := service.MarkUploaded(context.Background(), applicationID, lifecycle.StageInterview, uuid.New(), documentID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDownloadURLPresignsBlobKey(t *testing.T) {
	mockUploads := new(MockUploadStore)
	mockBlobs := new(MockBlobStore)

	applicationID := uuid.New()
	doc := &models.UploadedDocument{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		BlobKey:       "applications/abc/def",
	}

	mockUploads.On("GetByID", mock.Anything, applicationID, doc.ID).Return(doc, nil)
	mockBlobs.On("PresignGet", mock.Anything, doc.BlobKey).Return("https://signed.example/url", nil)

	service := &DocumentService{
		uploadRepo: mockUploads,
		blobStore:  mockBlobs,
		metrics:    metrics.NewMetrics(),
		tracer:     noopTracer{},
	}

	url, err := service.DownloadURL(context.Background(), applicationID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "https://signed.example/url", url)
}

func TestDownloadFetchesBlobBytes(t *testing.T) {
	mockUploads := new(MockUploadStore)
	mockBlobs := new(MockBlobStore)

	applicationID := uuid.New()
	doc := &models.UploadedDocument{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		FileName:      "offer-letter.pdf",
		ContentType:   "application/pdf",
		BlobKey:       "applications/abc/def",
	}
	body := []byte("%PDF-1.7 stored offer letter")

	mockUploads.On("GetByID", mock.Anything, applicationID, doc.ID).Return(doc, nil)
	mockBlobs.On("Get", mock.Anything, doc.BlobKey).Return(body, nil)

	service := &DocumentService{
		uploadRepo: mockUploads,
		blobStore:  mockBlobs,
		metrics:    metrics.NewMetrics(),
		tracer:     noopTracer{},
	}

	got, gotBody, err := service.Download(context.Background(), applicationID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.FileName, got.FileName)
	require.Equal(t, body, gotBody)
}

func TestDownloadRejectsUnknownDocument(t *testing.T) {
	mockUploads := new(MockUploadStore)
	mockBlobs := new(MockBlobStore)

	applicationID := uuid.New()
	documentID := uuid.New()
	mockUploads.On("GetByID", mock.Anything, applicationID, documentID).
		Return(nil, repositories.ErrNotFound)

	service := &DocumentService{
		uploadRepo: mockUploads,
		blobStore:  mockBlobs,
		metrics:    metrics.NewMetrics(),
		tracer:     noopTracer{},
	}

	_, _, err := service.Download(context.Background(), applicationID, documentID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	mockBlobs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
