package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/0x0BSoD/medhum/internal/model"
)

type chatRequest struct {
	History []model.ChatMessage `json:"history"`
	Message string              `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		abortWithError(c, http.StatusBadRequest, "message is required")
		return
	}

	reply := s.assistant.Reply(c.Request.Context(), req.History, strings.TrimSpace(req.Message))
	if s.metrics != nil {
		s.metrics.ChatReply(reply)
	}
	c.JSON(http.StatusOK, chatResponse{Reply: reply})
}
