package controller

import (
	"errors"
	"mcq_tutor_backend/internal/service"
	"mcq_tutor_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	chat *service.ChatService
}

func NewChatController(chat *service.ChatService) *ChatController {
	return &ChatController{chat: chat}
}

// ChatRequest 聊天请求
type ChatRequest struct {
	SessionID  string `json:"session_id" binding:"required" example:"7"`
	Message    string `json:"message" binding:"required" example:"question ID is 7, I selected B"`
	UserID     string `json:"user_id" example:"student_1"`
	UseOffline bool   `json:"use_offline" example:"false"`
}

// ChatResponse 聊天回复
type ChatResponse struct {
	Response string `json:"response"`
}

// Chat 处理一条学生消息
// @Summary 学生消息入口
// @Description 判题类消息直接走答案解析引擎；其余消息注入讲义上下文后转给导师模型
// @Tags chat
// @Accept json
// @Produce json
// @Param request body ChatRequest true "聊天请求"
// @Success 200 {object} ChatResponse
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /api/chat [post]
func (ctl *ChatController) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, "session_id and message are required")
		return
	}
	if req.UserID == "" {
		req.UserID = "student_1"
	}

	reply, err := ctl.chat.Respond(c.Request.Context(), req.UserID, req.SessionID, req.Message, req.UseOffline)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ChatResponse{Response: reply})
	case errors.Is(err, util.ErrQuestionNotFound):
		util.Error(c, http.StatusNotFound, "question not found")
	case errors.Is(err, util.ErrMalformedQuestion):
		util.Error(c, http.StatusUnprocessableEntity, "question has no options or no usable answer key")
	default:
		util.LogInternalError(c, err)
	}
}
