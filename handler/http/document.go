package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type uploadResponse struct {
	DocID      string `json:"docId"`
	SourceName string `json:"sourceName"`
	ChunkCount int    `json:"chunkCount"`
}

type asyncUploadResponse struct {
	JobID      string `json:"jobId"`
	SourceName string `json:"sourceName"`
	Status     string `json:"status"`
}

type documentResponse struct {
	DocID      string    `json:"docId"`
	SourceName string    `json:"sourceName"`
	ChunkCount int       `json:"chunkCount"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// UploadDocument godoc
// @Summary Upload a document and index it for retrieval
// @Tags documents
// @Accept multipart/form-data
// @Param file formData file true "Document file"
// @Produce json
// @Success 201 {object} uploadResponse
// @Success 202 {object} asyncUploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Router /documents [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("file upload required: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to read file: %w", err))
		return
	}

	if h.jobs != nil && int64(len(data)) > h.asyncThreshold {
		job, err := h.jobs.StageIngest(c.Request.Context(), header.Filename, data)
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		sendJSON(c, http.StatusAccepted, asyncUploadResponse{
			JobID:      strconv.FormatInt(job.ID, 10),
			SourceName: header.Filename,
			Status:     string(job.Status),
		})
		return
	}

	receipt, err := h.ingester.Ingest(c.Request.Context(), header.Filename, data)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, uploadResponse{
		DocID:      receipt.DocID,
		SourceName: receipt.SourceName,
		ChunkCount: receipt.ChunkCount,
	})
}

// ListDocuments godoc
// @Summary List indexed documents
// @Tags documents
// @Produce json
// @Success 200 {array} documentResponse
// @Router /documents [get]
func (h *Handler) ListDocuments(c *gin.Context) {
	docs := h.idx.ListDocuments()
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{
			DocID:      d.DocID,
			SourceName: d.SourceName,
			ChunkCount: d.ChunkCount,
			IngestedAt: d.IngestedAt,
		})
	}
	sendJSON(c, http.StatusOK, out)
}

// ClearDocuments godoc
// @Summary Remove every indexed document
// @Tags documents
// @Success 204 "No Content"
// @Router /documents [delete]
func (h *Handler) ClearDocuments(c *gin.Context) {
	h.idx.Reset()
	c.Status(http.StatusNoContent)
}
