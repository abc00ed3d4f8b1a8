package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/src/core/session"
)

// ListSessions godoc
// @Summary List chat session summaries, most recently active first
// @Tags sessions
// @Produce json
// @Success 200 {array} session.Summary
// @Router /sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	summaries, err := h.sessions.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, summaries)
}

// GetSession godoc
// @Summary Get the full message history of a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Produce json
// @Success 200 {object} session.Record
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	record, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, record)
}

// DeleteSession godoc
// @Summary Delete a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *Handler) DeleteSession(c *gin.Context) {
	existed, err := h.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if !existed {
		sendError(c, http.StatusNotFound, session.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearSessions godoc
// @Summary Delete every session
// @Tags sessions
// @Success 204 "No Content"
// @Router /sessions [delete]
func (h *Handler) ClearSessions(c *gin.Context) {
	if err := h.sessions.ClearAll(c.Request.Context()); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
