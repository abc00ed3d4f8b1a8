package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status        string `json:"status"`
	DocumentCount int    `json:"documentCount"`
	ChunkCount    int    `json:"chunkCount"`
	SessionCount  int    `json:"sessionCount"`
}

// CheckHealth godoc
// @Summary Check system health status
// @Tags system
// @Produce json
// @Success 200 {object} healthResponse
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	summaries, err := h.sessions.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, healthResponse{
		Status:        "ok",
		DocumentCount: len(h.idx.ListDocuments()),
		ChunkCount:    h.idx.Len(),
		SessionCount:  len(summaries),
	})
}
