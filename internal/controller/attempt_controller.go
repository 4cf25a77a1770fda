package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/service"
	"tutorhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AttemptController 学生端答题接口
type AttemptController struct {
	AttemptService *service.AttemptService
	QuizService    *service.QuizService
	QuizRepo       *repository.QuizRepository
	GroupRepo      *repository.GroupRepository
}

func NewAttemptController(attemptService *service.AttemptService, quizService *service.QuizService, quizRepo *repository.QuizRepository, groupRepo *repository.GroupRepository) *AttemptController {
	return &AttemptController{
		AttemptService: attemptService,
		QuizService:    quizService,
		QuizRepo:       quizRepo,
		GroupRepo:      groupRepo,
	}
}

// PaperOption 学生视角的选项，不暴露正确答案
type PaperOption struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	IsCorrect *bool  `json:"isCorrect,omitempty"`
}

// PaperQuestion 按尝试固化顺序排列的题目
type PaperQuestion struct {
	ID               string             `json:"id"`
	QuestionType     model.QuestionType `json:"questionType"`
	Content          string             `json:"content"`
	Marks            float64            `json:"marks"`
	Options          []PaperOption      `json:"options,omitempty"`
	Explanation      string             `json:"explanation,omitempty"`
	SelectedOptionID *string            `json:"selectedOptionId,omitempty"`
	AnswerText       *string            `json:"answerText,omitempty"`
	IsCorrect        *bool              `json:"isCorrect,omitempty"`
	MarksObtained    *float64           `json:"marksObtained,omitempty"`
}

// AttemptView 尝试详情 + 试卷
type AttemptView struct {
	ID               string              `json:"id"`
	QuizID           string              `json:"quizId"`
	QuizTitle        string              `json:"quizTitle"`
	AttemptNumber    int                 `json:"attemptNumber"`
	Status           model.AttemptStatus `json:"status"`
	StartedAt        time.Time           `json:"startedAt"`
	Deadline         time.Time           `json:"deadline"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
	Score            *float64            `json:"score,omitempty"`
	TotalMarks       float64             `json:"totalMarks"`
	Percentage       *float64            `json:"percentage,omitempty"`
	IsPassed         *bool               `json:"isPassed,omitempty"`
	PendingManual    bool                `json:"pendingManual"`
	FlaggedForReview bool                `json:"flaggedForReview"`
	Questions        []PaperQuestion     `json:"questions"`
}

// buildView 按尝试固化的顺序拼出试卷。
// withResults 控制是否带每题得分；withKey 额外暴露正确选项与解析。
func buildView(quiz *model.Quiz, attempt *model.QuizAttempt, withResults, withKey bool) *AttemptView {
	var questionOrder []string
	var optionOrder map[string][]string
	json.Unmarshal([]byte(attempt.QuestionOrder), &questionOrder)
	json.Unmarshal([]byte(attempt.OptionOrder), &optionOrder)

	questionsByID := make(map[string]*model.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		questionsByID[quiz.Questions[i].ID] = &quiz.Questions[i]
	}
	answersByQuestion := make(map[string]*model.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		answersByQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	// 固化顺序缺失（旧数据）时退回作者顺序
	if len(questionOrder) == 0 {
		for _, question := range quiz.Questions {
			questionOrder = append(questionOrder, question.ID)
		}
	}

	questions := make([]PaperQuestion, 0, len(questionOrder))
	for _, questionID := range questionOrder {
		question, ok := questionsByID[questionID]
		if !ok {
			continue
		}

		pq := PaperQuestion{
			ID:           question.ID,
			QuestionType: question.QuestionType,
			Content:      question.Content,
			Marks:        question.Marks,
		}
		if withKey {
			pq.Explanation = question.Explanation
		}

		optionsByID := make(map[string]*model.QuestionOption, len(question.Options))
		for i := range question.Options {
			optionsByID[question.Options[i].ID] = &question.Options[i]
		}
		ids := optionOrder[question.ID]
		if len(ids) == 0 {
			for _, option := range question.Options {
				ids = append(ids, option.ID)
			}
		}
		for _, optionID := range ids {
			option, ok := optionsByID[optionID]
			if !ok {
				continue
			}
			po := PaperOption{ID: option.ID, Content: option.Content}
			if withKey {
				correct := option.IsCorrect
				po.IsCorrect = &correct
			}
			pq.Options = append(pq.Options, po)
		}

		if answer, ok := answersByQuestion[question.ID]; ok {
			pq.SelectedOptionID = answer.SelectedOptionID
			pq.AnswerText = answer.AnswerText
			if withResults {
				pq.IsCorrect = answer.IsCorrect
				marks := answer.MarksObtained
				pq.MarksObtained = &marks
			}
		}
		questions = append(questions, pq)
	}

	view := &AttemptView{
		ID:               attempt.ID,
		QuizID:           attempt.QuizID,
		QuizTitle:        quiz.Title,
		AttemptNumber:    attempt.AttemptNumber,
		Status:           attempt.Status,
		StartedAt:        attempt.StartedAt,
		Deadline:         attempt.Deadline(quiz.DurationMinutes),
		CompletedAt:      attempt.CompletedAt,
		TotalMarks:       quiz.TotalMarks,
		PendingManual:    attempt.PendingManual,
		FlaggedForReview: attempt.FlaggedForReview,
		Questions:        questions,
	}
	if withResults {
		view.Score = attempt.Score
		view.Percentage = attempt.Percentage
		view.IsPassed = attempt.IsPassed
	}
	return view
}

func (c *AttemptController) requireEnrollment(ctx *gin.Context, quizID string, studentID uint) bool {
	quiz, err := c.QuizRepo.Snapshot(ctx, quizID)
	if err != nil {
		util.FromError(ctx, util.ErrQuizNotFound)
		return false
	}
	member, err := c.GroupRepo.IsMember(quiz.GroupID, studentID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return false
	}
	if !member {
		util.FromError(ctx, util.ErrNotEnrolled)
		return false
	}
	return true
}

// StartAttempt godoc
// @Summary 开始答题
// @Description 为当前学生在指定测验上开启一次新的限时尝试
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "测验ID"
// @Success 201 {object} util.Response{data=AttemptView} "创建成功"
// @Failure 403 {object} util.Response "未加入班级"
// @Failure 409 {object} util.Response "已有进行中的尝试"
// @Failure 422 {object} util.Response "测验不可用或次数超限"
// @Router /api/quizzes/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	quizID := ctx.Param("id")

	if !c.requireEnrollment(ctx, quizID, claims.UserID) {
		return
	}

	attempt, err := c.AttemptService.Start(ctx, claims.UserID, quizID)
	if err != nil {
		// 已有进行中的尝试时把它的ID带回去，客户端可以直接续作
		if errors.Is(err, util.ErrAttemptAlreadyInProgress) {
			if active, findErr := c.AttemptService.ActiveAttempt(quizID, claims.UserID); findErr == nil && active != nil {
				ctx.JSON(http.StatusConflict, util.Response{
					Code:    http.StatusConflict,
					Message: err.Error(),
					Data:    gin.H{"attemptId": active.ID},
				})
				return
			}
		}
		util.FromError(ctx, err)
		return
	}

	quiz, err := c.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, buildView(quiz, attempt, false, false))
}

// GetAttempt godoc
// @Summary 查看尝试
// @Description 取回尝试当前状态；进行中返回试卷与已答内容，顺序与开始时一致
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Success 200 {object} util.Response{data=AttemptView} "成功"
// @Failure 404 {object} util.Response "尝试不存在"
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	attempt, err := c.AttemptService.GetAttempt(ctx, claims.UserID, attemptID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	quiz, err := c.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	withResults := attempt.Status.Counted()
	util.Success(ctx, buildView(quiz, attempt, withResults, false))
}

// SaveAnswer godoc
// @Summary 保存单题作答
// @Description 记录或覆盖指定题目的作答，截止后拒绝
// @Tags 答题
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Param   questionId path string true "题目ID"
// @Param   body body service.AnswerRequest true "作答内容"
// @Success 200 {object} util.Response{data=model.AttemptAnswer} "成功"
// @Failure 422 {object} util.Response "尝试已结束或已超时"
// @Router /api/attempts/{id}/answers/{questionId} [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")
	questionID := ctx.Param("questionId")

	var req service.AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	answer, err := c.AttemptService.RecordAnswer(ctx, claims.UserID, attemptID, questionID, req)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	util.Success(ctx, answer)
}

// SubmitAttempt godoc
// @Summary 提交尝试
// @Description 结算并评分；重复提交幂等地返回既有结果
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Success 200 {object} util.Response{data=AttemptView} "成功"
// @Failure 422 {object} util.Response "尝试已放弃"
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	attempt, err := c.AttemptService.Submit(ctx, claims.UserID, attemptID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	quiz, err := c.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, buildView(quiz, attempt, true, false))
}

// AbandonAttempt godoc
// @Summary 放弃尝试
// @Description 放弃进行中的尝试，不评分且不计入次数限制
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt} "成功"
// @Failure 422 {object} util.Response "尝试已结束"
// @Router /api/attempts/{id}/abandon [post]
func (c *AttemptController) AbandonAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	attempt, err := c.AttemptService.Abandon(claims.UserID, attemptID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}

	util.Success(ctx, attempt)
}

// GetResult godoc
// @Summary 查看成绩
// @Description 查看已结束尝试的成绩单；测验开启“显示正确答案”时附带答案与解析
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "尝试ID"
// @Success 200 {object} util.Response{data=AttemptView} "成功"
// @Failure 422 {object} util.Response "尝试尚未结束"
// @Router /api/attempts/{id}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	attemptID := ctx.Param("id")

	attempt, err := c.AttemptService.GetAttempt(ctx, claims.UserID, attemptID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	if !attempt.Status.Counted() {
		util.FromError(ctx, util.ErrAttemptNotFinished)
		return
	}

	quiz, err := c.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, buildView(quiz, attempt, true, quiz.ShowCorrectAnswers))
}

// ListQuizzes godoc
// @Summary 可参加的测验列表
// @Description 列出学生所在班级已发布的测验
// @Tags 答题
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.StudentQuizView} "成功"
// @Router /api/quizzes [get]
func (c *AttemptController) ListQuizzes(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	views, err := c.QuizService.ListPublishedForStudent(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, views)
}
