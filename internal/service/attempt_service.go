package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/util"
	"tutorhub_backend/pkg/clock"
	"tutorhub_backend/pkg/logger"
	"tutorhub_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService 持有答题生命周期状态机。
// in_progress 是唯一可变状态：按时提交进 completed，截止后提交或被读取发现
// 超时进 timed_out，学生主动放弃进 abandoned；三者皆为终态。
// 超时不依赖后台调度：每次读取/提交先做惰性检测（DetectTimeout）。
type AttemptService struct {
	AttemptRepo *repository.AttemptRepository
	QuizRepo    *repository.QuizRepository
	Clock       clock.Clock
	Grader      Grader
	Shuffler    Shuffler
}

func NewAttemptService(attemptRepo *repository.AttemptRepository, quizRepo *repository.QuizRepository, clk clock.Clock) *AttemptService {
	return &AttemptService{
		AttemptRepo: attemptRepo,
		QuizRepo:    quizRepo,
		Clock:       clk,
	}
}

// Start 开始一次尝试。
// 活跃尝试唯一性交给数据层的 active_key 唯一索引，绝不做 check-then-insert；
// 尝试先落库再返回，避免调用方拿到未持久化的计时。
func (s *AttemptService) Start(ctx context.Context, studentID uint, quizID string) (*model.QuizAttempt, error) {
	quiz, err := s.QuizRepo.Snapshot(ctx, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}

	now := s.Clock.Now()
	if !quiz.AvailableAt(now) {
		return nil, util.ErrQuizNotAvailable
	}

	counted, err := s.AttemptRepo.CountCounted(quizID, studentID)
	if err != nil {
		return nil, err
	}
	if quiz.MaxAttempts > 0 && counted >= int64(quiz.MaxAttempts) {
		return nil, util.ErrAttemptLimitExceeded
	}

	attemptID := model.GenerateUUID()
	questionOrder, optionOrder := s.presentationOrder(attemptID, quiz)
	questionOrderJSON, _ := json.Marshal(questionOrder)
	optionOrderJSON, _ := json.Marshal(optionOrder)

	activeKey := model.ActiveKeyFor(quizID, studentID)
	attempt := &model.QuizAttempt{
		UUIDBase:      model.UUIDBase{ID: attemptID},
		QuizID:        quizID,
		StudentID:     studentID,
		AttemptNumber: int(counted) + 1,
		Status:        model.AttemptInProgress,
		ActiveKey:     &activeKey,
		StartedAt:     now,
		QuestionOrder: string(questionOrderJSON),
		OptionOrder:   string(optionOrderJSON),
	}

	answers := make([]model.AttemptAnswer, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		answers = append(answers, model.AttemptAnswer{QuestionID: question.ID})
	}

	if err := s.AttemptRepo.CreateWithAnswers(attempt, answers); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrAttemptAlreadyInProgress
		}
		return nil, err
	}

	monitoring.AttemptStarted.Inc()
	logger.Log.Info("quiz attempt started",
		zap.String("attemptId", attempt.ID),
		zap.String("quizId", quizID),
		zap.Uint("studentId", studentID),
		zap.Int("attemptNumber", attempt.AttemptNumber))

	attempt.Answers = answers
	return attempt, nil
}

// presentationOrder 计算固化到尝试上的出题/选项顺序。
// 种子由尝试ID派生，关闭对应乱序开关的轴保持作者顺序。
func (s *AttemptService) presentationOrder(attemptID string, quiz *model.Quiz) ([]string, map[string][]string) {
	seed := SeedFromAttemptID(attemptID)

	questionOrder := make([]string, 0, len(quiz.Questions))
	for _, i := range s.Shuffler.Order(seed, len(quiz.Questions), quiz.ShuffleQuestions) {
		questionOrder = append(questionOrder, quiz.Questions[i].ID)
	}

	optionOrder := make(map[string][]string, len(quiz.Questions))
	for _, question := range quiz.Questions {
		if !question.QuestionType.HasOptions() {
			continue
		}
		ids := make([]string, 0, len(question.Options))
		for _, i := range s.Shuffler.Order(PerQuestionSeed(seed, question.ID), len(question.Options), quiz.ShuffleAnswers) {
			ids = append(ids, question.Options[i].ID)
		}
		optionOrder[question.ID] = ids
	}

	return questionOrder, optionOrder
}

// ActiveAttempt 返回学生在该测验上进行中的尝试，没有则返回 nil。
// Start 撞上唯一索引时由调用方用它把既有尝试带回给客户端续作。
func (s *AttemptService) ActiveAttempt(quizID string, studentID uint) (*model.QuizAttempt, error) {
	return s.AttemptRepo.FindActive(quizID, studentID)
}

// AnswerRequest 单题作答载荷；选择题带选项ID，简答/作文题带文本
type AnswerRequest struct {
	SelectedOptionID *string `json:"selectedOptionId"`
	AnswerText       *string `json:"answerText"`
}

// RecordAnswer 记录/覆盖一题的作答。幂等：同一题重复提交后写覆盖先写。
// 截止后拒绝写入，调用方应转而 Submit（由其判定超时）。
func (s *AttemptService) RecordAnswer(ctx context.Context, studentID uint, attemptID, questionID string, req AnswerRequest) (*model.AttemptAnswer, error) {
	attempt, err := s.ownedAttempt(studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotActive
	}

	quiz, err := s.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if now.After(attempt.Deadline(quiz.DurationMinutes)) {
		return nil, util.ErrDeadlineExceeded
	}

	question := findQuestion(quiz, questionID)
	if question == nil {
		return nil, util.ErrQuestionNotFound
	}

	selected, text := req.SelectedOptionID, req.AnswerText
	if question.QuestionType.HasOptions() {
		text = nil
		if selected != nil && *selected != "" && findOption(question, *selected) == nil {
			return nil, util.ErrQuestionNotFound
		}
	} else {
		selected = nil
	}

	// RowsAffected 在重复提交同样内容时为 0（MySQL 只报变更行数），不可据此判存在性
	if _, err := s.AttemptRepo.UpdateAnswer(attemptID, questionID, selected, text); err != nil {
		return nil, err
	}

	answer, err := s.AttemptRepo.GetAnswer(attemptID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	return answer, nil
}

// Submit 结算尝试。截止前提交记为 completed；截止后提交按超时处理，
// completed_at 封顶在截止时刻。对已结束的尝试重复提交幂等地返回既有结果。
func (s *AttemptService) Submit(ctx context.Context, studentID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.ownedAttempt(studentID, attemptID)
	if err != nil {
		return nil, err
	}

	if attempt.Status.Counted() {
		return s.AttemptRepo.FindByIDWithAnswers(attemptID)
	}
	if attempt.Status == model.AttemptAbandoned {
		return nil, util.ErrAttemptNotActive
	}

	quiz, err := s.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	deadline := attempt.Deadline(quiz.DurationMinutes)

	status := model.AttemptCompleted
	completedAt := now
	if now.After(deadline) {
		status = model.AttemptTimedOut
		completedAt = deadline
	}

	return s.finalize(attempt, quiz, status, completedAt)
}

// DetectTimeout 惰性超时检测：任何读路径都可调用。
// 进行中且已越过截止时刻的尝试按“学生在截止时刻提交”处理，评分路径与 Submit 相同。
func (s *AttemptService) DetectTimeout(ctx context.Context, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return attempt, nil
	}

	quiz, err := s.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	deadline := attempt.Deadline(quiz.DurationMinutes)
	if !s.Clock.Now().After(deadline) {
		return attempt, nil
	}

	return s.finalize(attempt, quiz, model.AttemptTimedOut, deadline)
}

// finalize 评分并在一个事务内落终态。竞争输了就读赢家写下的结果。
func (s *AttemptService) finalize(attempt *model.QuizAttempt, quiz *model.Quiz, status model.AttemptStatus, completedAt time.Time) (*model.QuizAttempt, error) {
	answers, err := s.AttemptRepo.ListAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}

	gradeStart := time.Now()
	result := s.Grader.Grade(quiz, answers)
	monitoring.GradingDuration.Observe(time.Since(gradeStart).Seconds())

	attempt.Status = status
	attempt.CompletedAt = &completedAt
	attempt.Score = &result.Score
	attempt.Percentage = &result.Percentage
	attempt.IsPassed = &result.Passed
	attempt.PendingManual = result.PendingManual
	attempt.FlaggedForReview = result.Flagged

	transitioned, err := s.AttemptRepo.FinalizeGraded(attempt, result.Answers)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return s.AttemptRepo.FindByIDWithAnswers(attempt.ID)
	}

	monitoring.AttemptFinalized.WithLabelValues(string(status)).Inc()
	logger.Log.Info("quiz attempt finalized",
		zap.String("attemptId", attempt.ID),
		zap.String("status", string(status)),
		zap.Float64("score", result.Score),
		zap.Float64("percentage", result.Percentage),
		zap.Bool("passed", result.Passed),
		zap.Bool("pendingManual", result.PendingManual))

	return s.AttemptRepo.FindByIDWithAnswers(attempt.ID)
}

// Abandon 放弃尝试：不评分、不计入次数限制
func (s *AttemptService) Abandon(studentID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.ownedAttempt(studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotActive
	}

	transitioned, err := s.AttemptRepo.TransitionAbandoned(attemptID, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if transitioned {
		monitoring.AttemptFinalized.WithLabelValues(string(model.AttemptAbandoned)).Inc()
		logger.Log.Info("quiz attempt abandoned",
			zap.String("attemptId", attemptID),
			zap.Uint("studentId", studentID))
	}

	return s.AttemptRepo.FindByID(attemptID)
}

// GetAttempt 读取尝试当前状态，读之前先跑惰性超时检测
func (s *AttemptService) GetAttempt(ctx context.Context, studentID uint, attemptID string) (*model.QuizAttempt, error) {
	if _, err := s.ownedAttempt(studentID, attemptID); err != nil {
		return nil, err
	}
	if _, err := s.DetectTimeout(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.AttemptRepo.FindByIDWithAnswers(attemptID)
}

func (s *AttemptService) ownedAttempt(studentID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// ManualScore 人工评分输入（简答/作文题）
type ManualScore struct {
	QuestionID string  `json:"questionId" binding:"required"`
	Marks      float64 `json:"marks"`
	IsCorrect  *bool   `json:"isCorrect"`
}

// ApplyManualGrades 录入人工评分并重跑汇总（只动聚合，不重判自动题）
func (s *AttemptService) ApplyManualGrades(ctx context.Context, graderID uint, attemptID string, scores []ManualScore) (*model.QuizAttempt, error) {
	attempt, err := s.AttemptRepo.FindByIDWithAnswers(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if !attempt.Status.Counted() {
		return nil, util.ErrAttemptNotFinished
	}

	quiz, err := s.QuizRepo.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	byQuestion := make(map[string]*model.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		byQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	graded := make([]model.AttemptAnswer, 0, len(scores))
	for _, score := range scores {
		question := findQuestion(quiz, score.QuestionID)
		if question == nil {
			return nil, util.ErrQuestionNotFound
		}
		if question.QuestionType.AutoGradable() {
			// 自动题不允许人工改分
			return nil, util.ErrPermissionDenied
		}
		answer, ok := byQuestion[score.QuestionID]
		if !ok {
			return nil, util.ErrQuestionNotFound
		}

		answer.MarksObtained = score.Marks
		isCorrect := score.IsCorrect
		if isCorrect == nil {
			v := score.Marks >= question.Marks
			isCorrect = &v
		}
		answer.IsCorrect = isCorrect
		answer.GradedBy = &graderID
		answer.GradedAt = &now
		graded = append(graded, *answer)
	}

	// 重跑聚合：人工分已写入 answers 副本
	score, percentage, passed, _ := s.Grader.Aggregate(quiz, attempt.Answers)
	attempt.Score = &score
	attempt.Percentage = &percentage
	attempt.IsPassed = &passed
	attempt.PendingManual = stillPending(quiz, attempt.Answers)

	if err := s.AttemptRepo.ApplyManualGrades(attempt, graded); err != nil {
		return nil, err
	}

	logger.Log.Info("manual grades applied",
		zap.String("attemptId", attemptID),
		zap.Uint("graderId", graderID),
		zap.Float64("score", score))

	return s.AttemptRepo.FindByIDWithAnswers(attemptID)
}

// stillPending 仍有未人工评分的主观题答案时保持临时分标记
func stillPending(quiz *model.Quiz, answers []model.AttemptAnswer) bool {
	for _, answer := range answers {
		question := findQuestion(quiz, answer.QuestionID)
		if question == nil || question.QuestionType.AutoGradable() {
			continue
		}
		if answer.GradedAt == nil {
			return true
		}
	}
	return false
}

func findQuestion(quiz *model.Quiz, questionID string) *model.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

func findOption(question *model.Question, optionID string) *model.QuestionOption {
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			return &question.Options[i]
		}
	}
	return nil
}
