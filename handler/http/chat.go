package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/src/core/chat"
	"docchat/src/infrastructure/log"
)

type chatRequest struct {
	Query        string `json:"query" binding:"required"`
	SessionID    string `json:"sessionId"`
	UseRetrieval *bool  `json:"useRetrieval"`
	TopK         int    `json:"topK"`
}

type chatResponse struct {
	ResponseText     string   `json:"responseText"`
	Sources          []string `json:"sources"`
	SessionID        string   `json:"sessionId"`
	HistoryPersisted bool     `json:"historyPersisted"`
}

// Chat godoc
// @Summary Ask a question, optionally grounded in the indexed documents
// @Tags chat
// @Accept json
// @Produce json
// @Param body body chatRequest true "Chat parameters"
// @Success 200 {object} chatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	useRetrieval := true
	if req.UseRetrieval != nil {
		useRetrieval = *req.UseRetrieval
	}

	answer, err := h.chats.Respond(c.Request.Context(), chat.Ask{
		Query:        req.Query,
		SessionID:    req.SessionID,
		UseRetrieval: useRetrieval,
		TopK:         req.TopK,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if answer.PersistErr != nil {
		log.Error(answer.PersistErr, "failed to persist chat history", "session_id", answer.SessionID)
	}

	sendJSON(c, http.StatusOK, chatResponse{
		ResponseText:     answer.Text,
		Sources:          answer.Sources,
		SessionID:        answer.SessionID,
		HistoryPersisted: answer.PersistErr == nil,
	})
}
