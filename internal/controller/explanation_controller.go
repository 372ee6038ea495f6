package controller

import (
	"errors"
	"mcq_tutor_backend/internal/service"
	"mcq_tutor_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ExplanationController struct {
	explainer *service.ExplanationService
}

func NewExplanationController(explainer *service.ExplanationService) *ExplanationController {
	return &ExplanationController{explainer: explainer}
}

// ExplainRequest 判题请求
type ExplainRequest struct {
	QuestionID         uint   `json:"question_id" binding:"required" example:"7"`
	StudentAnswerLabel string `json:"student_answer_label" binding:"required" example:"B"`
	IncludeEvidence    bool   `json:"include_evidence" example:"true"`
}

// Explain 判定学生答案并返回解析
// @Summary 判定选择题答案并生成解析
// @Description 对指定题目判定学生选项是否正确，返回模板化解析、关键概念与复习建议
// @Tags xai
// @Accept json
// @Produce json
// @Param request body ExplainRequest true "判题请求"
// @Success 200 {object} service.ExplainResult
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /api/explain [post]
func (ctl *ExplanationController) Explain(c *gin.Context) {
	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, "question_id and student_answer_label are required")
		return
	}

	result, err := ctl.explainer.Explain(c.Request.Context(), req.QuestionID, req.StudentAnswerLabel, req.IncludeEvidence)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, util.ErrQuestionNotFound):
		util.Error(c, http.StatusNotFound, "question not found")
	case errors.Is(err, util.ErrMalformedQuestion):
		util.Error(c, http.StatusUnprocessableEntity, "question has no options or no usable answer key")
	case errors.Is(err, util.ErrOptionNotFound):
		util.BadRequest(c, "selected option does not exist for this question")
	default:
		util.LogInternalError(c, err)
	}
}
