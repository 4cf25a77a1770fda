package controller

import (
	"strconv"

	"tutorhub_backend/internal/service"
	"tutorhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// QuizController 教师端：测验管理、成绩统计与人工评分
type QuizController struct {
	QuizService    *service.QuizService
	AttemptService *service.AttemptService
	StatsService   *service.StatsService
}

func NewQuizController(quizService *service.QuizService, attemptService *service.AttemptService, statsService *service.StatsService) *QuizController {
	return &QuizController{
		QuizService:    quizService,
		AttemptService: attemptService,
		StatsService:   statsService,
	}
}

// CreateQuiz godoc
// @Summary 创建测验
// @Description 创建测验及其题目，总分按题目分值合计
// @Tags 测验管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.QuizReq true "测验内容"
// @Success 201 {object} util.Response{data=model.Quiz} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/teacher/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req service.QuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.QuizService.CreateQuiz(ctx, claims.UserID, req)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, quiz)
}

// UpdateQuiz godoc
// @Summary 更新测验
// @Description 更新测验字段；携带 questions 时整体替换题目并重算总分（已发布或有进行中尝试时题目集锁定）
// @Tags 测验管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Param   body body service.QuizReq true "更新内容"
// @Success 200 {object} util.Response{data=model.Quiz} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Failure 409 {object} util.Response "题目集已锁定"
// @Router /api/teacher/quizzes/{id} [put]
func (c *QuizController) UpdateQuiz(ctx *gin.Context) {
	var req service.QuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.QuizService.UpdateQuiz(ctx, ctx.Param("id"), req)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	util.Success(ctx, quiz)
}

type publishRequest struct {
	Publish bool `json:"publish"`
}

// PublishQuiz godoc
// @Summary 发布/下线测验
// @Tags 测验管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Param   body body publishRequest true "发布状态"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/teacher/quizzes/{id}/publish [post]
func (c *QuizController) PublishQuiz(ctx *gin.Context) {
	var req publishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.QuizService.PublishQuiz(ctx, ctx.Param("id"), req.Publish); err != nil {
		util.FromError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"published": req.Publish})
}

// DeleteQuiz godoc
// @Summary 删除测验
// @Description 软删除测验，历史尝试保留
// @Tags 测验管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/quizzes/{id} [delete]
func (c *QuizController) DeleteQuiz(ctx *gin.Context) {
	if err := c.QuizService.DeleteQuiz(ctx, ctx.Param("id")); err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// GetQuiz godoc
// @Summary 查看测验（教师视角，含答案）
// @Tags 测验管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Success 200 {object} util.Response{data=model.Quiz} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/teacher/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	quiz, err := c.QuizService.GetQuiz(ctx.Param("id"))
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// ListGroupQuizzes godoc
// @Summary 班级测验列表
// @Tags 测验管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "班级ID"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/teacher/groups/{id}/quizzes [get]
func (c *QuizController) ListGroupQuizzes(ctx *gin.Context) {
	groupID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid group id")
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	rows, total, err := c.QuizService.ListQuizzes(uint(groupID), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// GetQuizSummary godoc
// @Summary 测验统计汇总
// @Description 尝试数、完成数、平均分、平均百分比与通过率
// @Tags 测验管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.QuizSummary} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/teacher/quizzes/{id}/summary [get]
func (c *QuizController) GetQuizSummary(ctx *gin.Context) {
	summary, err := c.StatsService.Summary(ctx.Param("id"))
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// ListQuizAttempts godoc
// @Summary 测验的尝试列表
// @Tags 测验管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/teacher/quizzes/{id}/attempts [get]
func (c *QuizController) ListQuizAttempts(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	rows, total, err := c.AttemptService.AttemptRepo.ListByQuiz(ctx.Param("id"), page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

type manualGradeRequest struct {
	Scores []service.ManualScore `json:"scores" binding:"required,min=1,dive"`
}

// GradeAttempt godoc
// @Summary 人工评分
// @Description 为简答/作文题录入分数并重算尝试总分
// @Tags 测验管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Param   body body manualGradeRequest true "评分列表"
// @Success 200 {object} util.Response{data=model.QuizAttempt} "成功"
// @Failure 422 {object} util.Response "尝试尚未结束"
// @Router /api/teacher/attempts/{id}/grades [post]
func (c *QuizController) GradeAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req manualGradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AttemptService.ApplyManualGrades(ctx, claims.UserID, ctx.Param("id"), req.Scores)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	util.Success(ctx, attempt)
}
