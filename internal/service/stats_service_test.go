package service

import (
	"context"
	"testing"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryEmptyQuiz(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)

	summary, err := env.stats.Summary(quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.AttemptsCount)
	assert.Equal(t, int64(0), summary.CompletedAttemptsCount)
	assert.Zero(t, summary.AverageScore)
	assert.Zero(t, summary.AveragePercentage)
	assert.Zero(t, summary.PassRate)
}

func TestSummaryUnknownQuiz(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stats.Summary("no-such-quiz")
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestSummaryAggregatesFinishedAttempts(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	// 学生1：满分通过
	a1, err := env.attempts.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	for i := range quiz.Questions {
		right := correctOption(t, &quiz.Questions[i])
		_, err := env.attempts.RecordAnswer(ctx, 1, a1.ID, quiz.Questions[i].ID,
			AnswerRequest{SelectedOptionID: &right.ID})
		require.NoError(t, err)
	}
	_, err = env.attempts.Submit(ctx, 1, a1.ID)
	require.NoError(t, err)

	// 学生2：零分未通过（全部未作答，超时结算）
	a2, err := env.attempts.Start(ctx, 2, quiz.ID)
	require.NoError(t, err)
	env.clock.Advance(31 * time.Minute)
	_, err = env.attempts.Submit(ctx, 2, a2.ID)
	require.NoError(t, err)

	// 学生3：放弃，不计入统计
	a3, err := env.attempts.Start(ctx, 3, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Abandon(3, a3.ID)
	require.NoError(t, err)

	summary, err := env.stats.Summary(quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.AttemptsCount)
	assert.Equal(t, int64(2), summary.CompletedAttemptsCount)
	assert.Equal(t, 2.5, summary.AverageScore)
	assert.Equal(t, 50.0, summary.AveragePercentage)
	assert.Equal(t, 50.0, summary.PassRate)
}

func TestSummaryAllPassed(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, func(q *model.Quiz) { q.PassPercentage = 0 })
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, 1, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, 1, attempt.ID)
	require.NoError(t, err)

	summary, err := env.stats.Summary(quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.PassRate)
}
