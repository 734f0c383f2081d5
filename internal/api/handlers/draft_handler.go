package handlers

import (
	"net/http"

	"example.com/admissions/services/pipeline/internal/services"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/gin-gonic/gin"
)

// DraftHandler handles offer letter draft HTTP requests
type DraftHandler struct {
	draftService *services.DraftService
	tracer       tracing.Tracer
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(draftService *services.DraftService, tracer tracing.Tracer) *DraftHandler {
	return &DraftHandler{
		draftService: draftService,
		tracer:       tracer,
	}
}

// HandleGetDraft returns the stored offer letter draft
func (h *DraftHandler) HandleGetDraft(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	draft, err := h.draftService.GetDraft(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// UpdateDraftRequest carries an admin's edited draft body
type UpdateDraftRequest struct {
	Body string `json:"body" binding:"required"`
}

// HandleUpdateDraft stores an admin's edit of the draft body
func (h *DraftHandler) HandleUpdateDraft(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-draft")
	defer h.tracer.EndTransaction(txn)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.draftService.SaveAdminEdit(c, id, req.Body)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, draft)
}

// RegisterRoutes registers the handler's routes
func (h *DraftHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/applications/:id/draft", h.HandleGetDraft)
	router.PUT("/applications/:id/draft", h.HandleUpdateDraft)
}
