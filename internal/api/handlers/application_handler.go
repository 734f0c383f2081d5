package handlers

import (
	"net/http"
	"time"

	"example.com/admissions/services/pipeline/internal/api/middleware"
	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/services"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ApplicationHandler handles application lifecycle HTTP requests
type ApplicationHandler struct {
	appService *services.ApplicationService
	tracer     tracing.Tracer
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(appService *services.ApplicationService, tracer tracing.Tracer) *ApplicationHandler {
	return &ApplicationHandler{
		appService: appService,
		tracer:     tracer,
	}
}

// CreateApplicationRequest opens a new draft application
type CreateApplicationRequest struct {
	StudentID uuid.UUID `json:"student_id" binding:"required"`
	ProgramID uuid.UUID `json:"program_id" binding:"required"`
}

// EventRequest carries the optional parameters of a lifecycle event.
// Which fields matter depends on the event in the path.
type EventRequest struct {
	DocumentID    *uuid.UUID                     `json:"document_id"`
	DocumentTypes []services.DocumentTypeRequest `json:"document_types"`
	Notes         string                         `json:"notes"`
	ScheduledAt   *time.Time                     `json:"scheduled_at"`
	Location      string                         `json:"location"`
	MeetingLink   string                         `json:"meeting_link"`
	Result        string                         `json:"result"`
	ResultNotes   string                         `json:"result_notes"`
}

// HandleCreateApplication opens a new draft application
func (h *ApplicationHandler) HandleCreateApplication(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-application")
	defer h.tracer.EndTransaction(txn)

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.appService.CreateApplication(c, req.StudentID, req.ProgramID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, app)
}

// HandleGetApplication returns the full application aggregate
func (h *ApplicationHandler) HandleGetApplication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	app, err := h.appService.GetApplication(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// HandleListStudentApplications lists a student's applications
func (h *ApplicationHandler) HandleListStudentApplications(c *gin.Context) {
	studentID, ok := parseID(c, "studentId")
	if !ok {
		return
	}

	apps, err := h.appService.ListStudentApplications(c, studentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// HandleGetTimeline returns the projected progress timeline
func (h *ApplicationHandler) HandleGetTimeline(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	steps, err := h.appService.Timeline(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// HandleCheckEvent reports whether an event would currently be accepted
func (h *ApplicationHandler) HandleCheckEvent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	event := lifecycle.Event(c.Param("event"))
	decision, err := h.appService.CheckEvent(c, id, event)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event":   string(event),
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	})
}

// HandleApplyEvent applies one lifecycle event to an application
func (h *ApplicationHandler) HandleApplyEvent(c *gin.Context) {
	event := lifecycle.Event(c.Param("event"))

	txn := h.tracer.StartTransaction("api-apply-" + string(event))
	defer h.tracer.EndTransaction(txn)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	h.tracer.AddAttribute(txn, "application_id", id.String())

	var req EventRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	actor := middleware.ActorFrom(c)

	app, err := h.dispatch(c, event, id, actor, req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("application_id", id.String()).
			Str("event", string(event)).
			Msg("Event rejected")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *ApplicationHandler) dispatch(c *gin.Context, event lifecycle.Event, id uuid.UUID, actor *uuid.UUID, req EventRequest) (interface{}, error) {
	switch event {
	case lifecycle.EventSubmit:
		return h.appService.Submit(c, id, actor)
	case lifecycle.EventBeginReview:
		return h.appService.BeginReview(c, id, actor)
	case lifecycle.EventRequestOfferLetter:
		return h.appService.RequestOfferLetter(c, id, actor)
	case lifecycle.EventUploadOfferLetter:
		return h.appService.UploadOfferLetter(c, id, actor, deref(req.DocumentID))
	case lifecycle.EventConfigureInterviewDocs:
		return h.appService.ConfigureStageDocuments(c, id, actor, lifecycle.StageInterview, req.DocumentTypes, req.Notes)
	case lifecycle.EventRequestInterview:
		return h.appService.RequestInterview(c, id, actor)
	case lifecycle.EventScheduleInterview:
		schedule := lifecycle.InterviewSchedule{
			Location:    req.Location,
			MeetingLink: req.MeetingLink,
			Notes:       req.Notes,
		}
		if req.ScheduledAt != nil {
			schedule.At = *req.ScheduledAt
		}
		return h.appService.ScheduleInterview(c, id, actor, schedule)
	case lifecycle.EventRecordInterviewResult:
		return h.appService.RecordInterviewResult(c, id, actor, req.Result, req.ResultNotes)
	case lifecycle.EventApplyCAS:
		return h.appService.ApplyCAS(c, id, actor)
	case lifecycle.EventConfigureCASDocs:
		return h.appService.ConfigureStageDocuments(c, id, actor, lifecycle.StageCAS, req.DocumentTypes, req.Notes)
	case lifecycle.EventUploadCAS:
		return h.appService.UploadCAS(c, id, actor, deref(req.DocumentID))
	case lifecycle.EventConfigureVisaDocs:
		return h.appService.ConfigureStageDocuments(c, id, actor, lifecycle.StageVisa, req.DocumentTypes, req.Notes)
	case lifecycle.EventApplyVisa:
		return h.appService.ApplyVisa(c, id, actor)
	case lifecycle.EventUploadVisa:
		return h.appService.UploadVisa(c, id, actor, deref(req.DocumentID))
	default:
		return nil, &lifecycle.InvalidTransitionError{Event: event, Reason: "unknown event"}
	}
}

// HandleSearchApplications runs an admin query against the search index
func (h *ApplicationHandler) HandleSearchApplications(c *gin.Context) {
	var query map[string]interface{}
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search query"})
		return
	}

	results, err := h.appService.SearchApplications(c, query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": results})
}

// HandleListPrograms lists the active programs
func (h *ApplicationHandler) HandleListPrograms(c *gin.Context) {
	programs, err := h.appService.ListPrograms(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"programs": programs})
}

// HandleListDocumentTypes returns the document type catalog
func (h *ApplicationHandler) HandleListDocumentTypes(c *gin.Context) {
	types, err := h.appService.ListDocumentTypes(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"document_types": types})
}

// RegisterRoutes registers the handler's routes
func (h *ApplicationHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/applications", h.HandleCreateApplication)
	router.POST("/applications/search", h.HandleSearchApplications)
	router.GET("/applications/:id", h.HandleGetApplication)
	router.GET("/applications/:id/timeline", h.HandleGetTimeline)
	router.GET("/applications/:id/events/:event/check", h.HandleCheckEvent)
	router.POST("/applications/:id/events/:event", h.HandleApplyEvent)
	router.GET("/students/:studentId/applications", h.HandleListStudentApplications)
	router.GET("/programs", h.HandleListPrograms)
	router.GET("/document-types", h.HandleListDocumentTypes)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
