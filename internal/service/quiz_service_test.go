package service

import (
	"context"
	"testing"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uintPtr(u uint) *uint      { return &u }
func intPtr(i int) *int         { return &i }
func f64Ptr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool      { return &b }

func sampleQuestions() []QuestionReq {
	return []QuestionReq{
		{
			QuestionType: model.QuestionTrueFalse,
			Content:      "1 是质数",
			Marks:        1,
			Order:        1,
			Options: []OptionReq{
				{Content: "正确", Order: 1},
				{Content: "错误", IsCorrect: true, Order: 2},
			},
		},
	}
}

func TestCreateQuizAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	group := seedGroup(t, env.db)

	quiz, err := env.quizzes.CreateQuiz(context.Background(), 1, QuizReq{
		GroupID:         uintPtr(group.ID),
		Title:           strPtr("默认配置测验"),
		DurationMinutes: intPtr(20),
	})
	require.NoError(t, err)

	assert.Equal(t, 60.0, quiz.PassPercentage)
	assert.Equal(t, 1, quiz.MaxAttempts)
}

func TestCreateQuizExplicitZeroSurvivesInsert(t *testing.T) {
	env := newTestEnv(t)
	group := seedGroup(t, env.db)

	quiz, err := env.quizzes.CreateQuiz(context.Background(), 1, QuizReq{
		GroupID:         uintPtr(group.ID),
		Title:           strPtr("零及格线测验"),
		DurationMinutes: intPtr(20),
		PassPercentage:  f64Ptr(0),
		MaxAttempts:     intPtr(0),
	})
	require.NoError(t, err)

	// 读库侧验证：显式的 0 不能在插入时被改写成默认值
	stored, err := env.quizRepo.FindByID(quiz.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.PassPercentage)
	assert.Zero(t, stored.MaxAttempts)
}

func TestCreateQuizRejectsNonPositiveDuration(t *testing.T) {
	env := newTestEnv(t)
	group := seedGroup(t, env.db)

	_, err := env.quizzes.CreateQuiz(context.Background(), 1, QuizReq{
		GroupID:         uintPtr(group.ID),
		Title:           strPtr("没有限时的测验"),
		DurationMinutes: intPtr(0),
	})
	assert.ErrorIs(t, err, util.ErrInvalidQuiz)
	assert.ErrorContains(t, err, "durationMinutes")
}

func TestCreateQuizPublishRequiresDuration(t *testing.T) {
	env := newTestEnv(t)
	group := seedGroup(t, env.db)

	// 不带 durationMinutes 直接发布：每次尝试一开始就越过截止时刻
	_, err := env.quizzes.CreateQuiz(context.Background(), 1, QuizReq{
		GroupID:     uintPtr(group.ID),
		Title:       strPtr("仓促发布的测验"),
		IsPublished: boolPtr(true),
		Questions:   &[]QuestionReq{sampleQuestions()[0]},
	})
	assert.ErrorIs(t, err, util.ErrInvalidQuiz)
	assert.ErrorContains(t, err, "duration")
}

func TestPublishQuizRequiresDuration(t *testing.T) {
	env := newTestEnv(t)
	group := seedGroup(t, env.db)
	ctx := context.Background()

	quiz, err := env.quizzes.CreateQuiz(ctx, 1, QuizReq{
		GroupID: uintPtr(group.ID),
		Title:   strPtr("草稿测验"),
	})
	require.NoError(t, err)

	err = env.quizzes.PublishQuiz(ctx, quiz.ID, true)
	assert.ErrorIs(t, err, util.ErrInvalidQuiz)
	assert.ErrorContains(t, err, "duration")
}

func TestUpdateQuizRejectsQuestionReplacementWhenPublished(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)

	questions := sampleQuestions()
	_, err := env.quizzes.UpdateQuiz(context.Background(), quiz.ID, QuizReq{
		Questions: &questions,
	})
	assert.ErrorIs(t, err, util.ErrQuizLocked)
}

func TestUpdateQuizRejectsQuestionReplacementWithActiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	// 撤下发布也救不了换题：学生手里还有进行中的试卷
	require.NoError(t, env.quizRepo.SetPublished(quiz.ID, false, nil))

	questions := sampleQuestions()
	_, err = env.quizzes.UpdateQuiz(ctx, quiz.ID, QuizReq{Questions: &questions})
	assert.ErrorIs(t, err, util.ErrQuizLocked)

	// 尝试收尾后题目集解锁
	_, err = env.attempts.Abandon(studentID, attempt.ID)
	require.NoError(t, err)

	updated, err := env.quizzes.UpdateQuiz(ctx, quiz.ID, QuizReq{Questions: &questions})
	require.NoError(t, err)
	assert.Len(t, updated.Questions, 1)
	assert.Equal(t, 1.0, updated.TotalMarks)
}

func TestUpdateQuizAllowsQuestionEditWhileDraft(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, func(q *model.Quiz) { q.IsPublished = false })

	questions := sampleQuestions()
	updated, err := env.quizzes.UpdateQuiz(context.Background(), quiz.ID, QuizReq{
		Questions: &questions,
	})
	require.NoError(t, err)
	assert.Len(t, updated.Questions, 1)
	assert.Equal(t, 1.0, updated.TotalMarks)
}
