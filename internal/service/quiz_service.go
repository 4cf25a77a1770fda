package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/util"
	"tutorhub_backend/pkg/clock"

	"gorm.io/gorm"
)

// QuizService 题库作者端：测验与题目的增删改查。
// 答题引擎不经过这里，只通过 QuizRepository.Snapshot 读取。
type QuizService struct {
	QuizRepo    *repository.QuizRepository
	GroupRepo   *repository.GroupRepository
	AttemptRepo *repository.AttemptRepository
	Clock       clock.Clock
}

func NewQuizService(quizRepo *repository.QuizRepository, groupRepo *repository.GroupRepository, attemptRepo *repository.AttemptRepository, clk clock.Clock) *QuizService {
	return &QuizService{QuizRepo: quizRepo, GroupRepo: groupRepo, AttemptRepo: attemptRepo, Clock: clk}
}

type OptionReq struct {
	Content   string `json:"content" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

type QuestionReq struct {
	QuestionType model.QuestionType `json:"questionType" binding:"required"`
	Content      string             `json:"content" binding:"required"`
	Marks        float64            `json:"marks"`
	Explanation  string             `json:"explanation"`
	Order        int                `json:"order"`
	Options      []OptionReq        `json:"options"`
}

type QuizReq struct {
	GroupID            *uint          `json:"groupId"`
	Title              *string        `json:"title"`
	Description        *string        `json:"description"`
	DurationMinutes    *int           `json:"durationMinutes"`
	PassPercentage     *float64       `json:"passPercentage"`
	MaxAttempts        *int           `json:"maxAttempts"`
	ShuffleQuestions   *bool          `json:"shuffleQuestions"`
	ShuffleAnswers     *bool          `json:"shuffleAnswers"`
	ShowCorrectAnswers *bool          `json:"showCorrectAnswers"`
	AvailableFrom      *time.Time     `json:"availableFrom"`
	AvailableTo        *time.Time     `json:"availableTo"`
	IsPublished        *bool          `json:"isPublished"`
	Questions          *[]QuestionReq `json:"questions"`
}

func buildQuestions(reqs []QuestionReq) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(reqs))
	for _, qReq := range reqs {
		if !qReq.QuestionType.Valid() {
			return nil, fmt.Errorf("%w: unknown question type", util.ErrInvalidQuiz)
		}
		if qReq.Marks <= 0 {
			return nil, fmt.Errorf("%w: question marks must be positive", util.ErrInvalidQuiz)
		}
		question := model.Question{
			QuestionType: qReq.QuestionType,
			Content:      qReq.Content,
			Marks:        qReq.Marks,
			Explanation:  qReq.Explanation,
			Order:        qReq.Order,
		}
		if qReq.QuestionType.HasOptions() {
			if len(qReq.Options) < 2 {
				return nil, fmt.Errorf("%w: choice questions need at least two options", util.ErrInvalidQuiz)
			}
			correct := 0
			for _, oReq := range qReq.Options {
				if oReq.IsCorrect {
					correct++
				}
				question.Options = append(question.Options, model.QuestionOption{
					Content:   oReq.Content,
					IsCorrect: oReq.IsCorrect,
					Order:     oReq.Order,
				})
			}
			if correct != 1 {
				return nil, fmt.Errorf("%w: choice questions need exactly one correct option", util.ErrInvalidQuiz)
			}
		} else if len(qReq.Options) > 0 {
			return nil, fmt.Errorf("%w: free-text questions must not carry options", util.ErrInvalidQuiz)
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func (s *QuizService) CreateQuiz(ctx context.Context, creatorID uint, req QuizReq) (*model.Quiz, error) {
	if req.Title == nil || *req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrInvalidQuiz)
	}
	if req.GroupID == nil {
		return nil, fmt.Errorf("%w: groupId is required", util.ErrInvalidQuiz)
	}
	if _, err := s.GroupRepo.FindByID(*req.GroupID); err != nil {
		return nil, fmt.Errorf("%w: group not found", util.ErrInvalidQuiz)
	}

	// 默认值在这里给而不是挂 gorm default 标签：带 default 的零值字段在插入时
	// 会被改写成默认值，显式传 0（全员及格、不限次数）就存不进去了
	quiz := &model.Quiz{
		GroupID:        *req.GroupID,
		CreatorID:      creatorID,
		Title:          *req.Title,
		PassPercentage: 60,
		MaxAttempts:    1,
	}
	if err := applyQuizFields(quiz, req); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		questions, err := buildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
		quiz.Questions = questions
	}
	quiz.TotalMarks = quiz.QuestionMarksSum()

	if quiz.IsPublished {
		if err := publishable(quiz); err != nil {
			return nil, err
		}
		now := s.Clock.Now()
		quiz.PublishedAt = &now
	}

	if err := s.QuizRepo.Create(quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

func applyQuizFields(quiz *model.Quiz, req QuizReq) error {
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return fmt.Errorf("%w: durationMinutes must be positive", util.ErrInvalidQuiz)
		}
		quiz.DurationMinutes = *req.DurationMinutes
	}
	if req.PassPercentage != nil {
		if *req.PassPercentage < 0 || *req.PassPercentage > 100 {
			return fmt.Errorf("%w: passPercentage must be between 0 and 100", util.ErrInvalidQuiz)
		}
		quiz.PassPercentage = *req.PassPercentage
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.ShuffleQuestions != nil {
		quiz.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleAnswers != nil {
		quiz.ShuffleAnswers = *req.ShuffleAnswers
	}
	if req.ShowCorrectAnswers != nil {
		quiz.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.AvailableFrom != nil {
		quiz.AvailableFrom = req.AvailableFrom
	}
	if req.AvailableTo != nil {
		quiz.AvailableTo = req.AvailableTo
	}
	if req.IsPublished != nil {
		quiz.IsPublished = *req.IsPublished
	}
	return nil
}

// publishable 发布前的完整性检查：没有正的限时，尝试一开始就越过截止时刻
func publishable(quiz *model.Quiz) error {
	if quiz.DurationMinutes <= 0 {
		return fmt.Errorf("%w: a positive duration is required before publishing", util.ErrInvalidQuiz)
	}
	return nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, quizID string, req QuizReq) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByIDWithQuestions(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}

	wasPublished := quiz.IsPublished

	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if err := applyQuizFields(quiz, req); err != nil {
		return nil, err
	}
	if quiz.IsPublished && !wasPublished {
		if err := publishable(quiz); err != nil {
			return nil, err
		}
		now := s.Clock.Now()
		quiz.PublishedAt = &now
	}

	if req.Questions != nil {
		if err := s.questionsMutable(quiz.ID, wasPublished); err != nil {
			return nil, err
		}
		questions, err := buildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
		if err := s.QuizRepo.ReplaceQuestions(quizID, questions); err != nil {
			return nil, err
		}
		quiz.Questions = questions
	}

	quiz.TotalMarks = quiz.QuestionMarksSum()
	if err := s.QuizRepo.Update(quiz); err != nil {
		return nil, err
	}

	s.QuizRepo.InvalidateSnapshot(ctx, quizID)
	return quiz, nil
}

// questionsMutable 题目集在发布后、或仍有进行中尝试时锁定。
// 学生在一次尝试内看到的题目必须与开始时一致，中途整组替换会让提交按
// 学生从未见过的题评分。
func (s *QuizService) questionsMutable(quizID string, published bool) error {
	if published {
		return util.ErrQuizLocked
	}
	active, err := s.AttemptRepo.CountInProgress(quizID)
	if err != nil {
		return err
	}
	if active > 0 {
		return util.ErrQuizLocked
	}
	return nil
}

func (s *QuizService) PublishQuiz(ctx context.Context, quizID string, publish bool) error {
	quiz, err := s.QuizRepo.FindByID(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrQuizNotFound
		}
		return err
	}

	var at *time.Time
	if publish {
		if err := publishable(quiz); err != nil {
			return err
		}
		now := s.Clock.Now()
		at = &now
	}
	if err := s.QuizRepo.SetPublished(quizID, publish, at); err != nil {
		return err
	}
	s.QuizRepo.InvalidateSnapshot(ctx, quizID)
	return nil
}

func (s *QuizService) DeleteQuiz(ctx context.Context, quizID string) error {
	if err := s.QuizRepo.Delete(quizID); err != nil {
		return err
	}
	s.QuizRepo.InvalidateSnapshot(ctx, quizID)
	return nil
}

func (s *QuizService) GetQuiz(quizID string) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByIDWithQuestions(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}
	return quiz, nil
}

func (s *QuizService) ListQuizzes(groupID uint, page, limit int) ([]repository.QuizListRow, int64, error) {
	return s.QuizRepo.ListByGroup(groupID, page, limit)
}

// StudentQuizView 学生可见的测验信息，不含正确答案
type StudentQuizView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"durationMinutes"`
	TotalMarks      float64    `json:"totalMarks"`
	PassPercentage  float64    `json:"passPercentage"`
	MaxAttempts     int        `json:"maxAttempts"`
	QuestionCount   int        `json:"questionCount"`
	AvailableFrom   *time.Time `json:"availableFrom,omitempty"`
	AvailableTo     *time.Time `json:"availableTo,omitempty"`
}

func (s *QuizService) ListPublishedForStudent(studentID uint) ([]StudentQuizView, error) {
	quizzes, err := s.QuizRepo.ListPublishedForStudent(studentID)
	if err != nil {
		return nil, err
	}
	views := make([]StudentQuizView, 0, len(quizzes))
	for _, quiz := range quizzes {
		views = append(views, StudentQuizView{
			ID:              quiz.ID,
			Title:           quiz.Title,
			Description:     quiz.Description,
			DurationMinutes: quiz.DurationMinutes,
			TotalMarks:      quiz.TotalMarks,
			PassPercentage:  quiz.PassPercentage,
			MaxAttempts:     quiz.MaxAttempts,
			AvailableFrom:   quiz.AvailableFrom,
			AvailableTo:     quiz.AvailableTo,
		})
	}
	return views, nil
}
