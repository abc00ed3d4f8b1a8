package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/src/core/chat"
	"docchat/src/core/chunk"
	"docchat/src/core/extract"
	"docchat/src/core/index"
	"docchat/src/core/ingest"
	"docchat/src/core/session"
	"docchat/src/infrastructure/job"
)

type Handler struct {
	ingester *ingest.Service
	idx      *index.Index
	sessions *session.Service
	chats    *chat.Service

	// Async staging is optional; both are nil when the job queue is not
	// configured and every upload is ingested inline.
	jobs           *job.JobService
	asyncThreshold int64
}

func NewHandler(ingester *ingest.Service, idx *index.Index, sessions *session.Service, chats *chat.Service) *Handler {
	return &Handler{
		ingester: ingester,
		idx:      idx,
		sessions: sessions,
		chats:    chats,
	}
}

// EnableAsyncIngestion routes uploads larger than threshold bytes through
// the job queue instead of ingesting them inline.
func (h *Handler) EnableAsyncIngestion(jobs *job.JobService, threshold int64) {
	h.jobs = jobs
	h.asyncThreshold = threshold
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Document routes
	v1.POST("/documents", h.UploadDocument)
	v1.GET("/documents", h.ListDocuments)
	v1.DELETE("/documents", h.ClearDocuments)

	// Chat routes
	v1.POST("/chat", h.Chat)

	// Session routes
	v1.GET("/sessions", h.ListSessions)
	v1.GET("/sessions/:id", h.GetSession)
	v1.DELETE("/sessions/:id", h.DeleteSession)
	v1.DELETE("/sessions", h.ClearSessions)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	var retryable bool
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, extract.ErrUnsupportedFormat):
		code = "UNSUPPORTED_FORMAT"
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrEmptyDocument):
		code = "EMPTY_DOCUMENT"
		status = http.StatusBadRequest
	case errors.Is(err, chunk.ErrInvalidConfig):
		code = "INVALID_CONFIG"
		status = http.StatusBadRequest
	case errors.Is(err, index.ErrDimensionMismatch):
		code = "DIMENSION_MISMATCH"
		status = http.StatusUnprocessableEntity
	case errors.Is(err, index.ErrEmbedding):
		code = "EMBEDDING_FAILED"
		status = http.StatusBadGateway
		retryable = true
	case errors.Is(err, chat.ErrGeneration):
		code = "GENERATION_FAILED"
		status = http.StatusBadGateway
		retryable = true
	case errors.Is(err, session.ErrPersistence):
		code = "PERSISTENCE_FAILED"
		status = http.StatusInternalServerError
		retryable = true
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:      code,
		Message:   err.Error(),
		Retryable: retryable,
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
