package handlers

import (
	"io"
	"net/http"

	"example.com/admissions/services/pipeline/internal/api/middleware"
	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/services"
	"example.com/admissions/services/pipeline/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Uploads above this size are rejected before touching the blob store.
const maxUploadBytes = 25 << 20

// DocumentHandler handles document upload and requirement HTTP requests
type DocumentHandler struct {
	docService *services.DocumentService
	tracer     tracing.Tracer
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService *services.DocumentService, tracer tracing.Tracer) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		tracer:     tracer,
	}
}

// HandleUpload accepts a multipart file upload for an application
func (h *DocumentHandler) HandleUpload(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-upload-document")
	defer h.tracer.EndTransaction(txn)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a file form field is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload size limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	actor := middleware.ActorFrom(c)

	doc, err := h.docService.Upload(c, id, actor, fileHeader.Filename, contentType, body)
	if err != nil {
		log.Error().Err(err).Str("application_id", id.String()).Msg("Document upload failed")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// MarkUploadedRequest links an uploaded document to a requirement item
type MarkUploadedRequest struct {
	DocumentID uuid.UUID `json:"document_id" binding:"required"`
}

// HandleMarkUploaded satisfies a stage requirement item with an uploaded
// document
func (h *DocumentHandler) HandleMarkUploaded(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-mark-document-uploaded")
	defer h.tracer.EndTransaction(txn)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	typeID, ok := parseID(c, "typeId")
	if !ok {
		return
	}
	stage := lifecycle.Stage(c.Param("stage"))

	var req MarkUploadedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, result, err := h.docService.MarkUploaded(c, id, stage, typeID, req.DocumentID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	resp := gin.H{
		"status":  app.Status,
		"changed": result.Changed,
	}
	if result.PromotedTo != nil {
		resp["promoted_to"] = string(*result.PromotedTo)
	}

	c.JSON(http.StatusOK, resp)
}

// HandleDownloadURL returns a time-limited download URL for a document
func (h *DocumentHandler) HandleDownloadURL(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	documentID, ok := parseID(c, "documentId")
	if !ok {
		return
	}

	url, err := h.docService.DownloadURL(c, id, documentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// HandleDownload streams the stored document bytes back to the caller
func (h *DocumentHandler) HandleDownload(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-download-document")
	defer h.tracer.EndTransaction(txn)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	documentID, ok := parseID(c, "documentId")
	if !ok {
		return
	}

	doc, body, err := h.docService.Download(c, id, documentID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.Data(http.StatusOK, doc.ContentType, body)
}

// RegisterRoutes registers the handler's routes
func (h *DocumentHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/applications/:id/documents", h.HandleUpload)
	router.GET("/applications/:id/documents/:documentId/url", h.HandleDownloadURL)
	router.GET("/applications/:id/documents/:documentId/content", h.HandleDownload)
	router.POST("/applications/:id/stages/:stage/documents/:typeId/uploaded", h.HandleMarkUploaded)
}
