package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studentID uint = 42

func TestStartAttemptPersistsOrderAndPlaceholders(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)

	attempt, err := env.attempts.Start(context.Background(), studentID, quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptInProgress, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, env.clock.Now(), attempt.StartedAt)
	require.NotNil(t, attempt.ActiveKey)
	assert.Equal(t, model.ActiveKeyFor(quiz.ID, studentID), *attempt.ActiveKey)

	// 每道题预建一条答案占位
	assert.Len(t, attempt.Answers, 3)

	var questionOrder []string
	require.NoError(t, json.Unmarshal([]byte(attempt.QuestionOrder), &questionOrder))
	assert.Len(t, questionOrder, 3)
	for _, question := range quiz.Questions {
		assert.Contains(t, questionOrder, question.ID)
	}
}

func TestStartSecondAttemptWhileActiveConflicts(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)

	_, err := env.attempts.Start(context.Background(), studentID, quiz.ID)
	require.NoError(t, err)

	_, err = env.attempts.Start(context.Background(), studentID, quiz.ID)
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyInProgress)
}

func TestActiveAttemptFollowsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	active, err := env.attempts.ActiveAttempt(quiz.ID, studentID)
	require.NoError(t, err)
	assert.Nil(t, active)

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	active, err = env.attempts.ActiveAttempt(quiz.ID, studentID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, attempt.ID, active.ID)

	_, err = env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	active, err = env.attempts.ActiveAttempt(quiz.ID, studentID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestStartConcurrentOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.attempts.Start(context.Background(), studentID, quiz.ID)
		}(i)
	}
	wg.Wait()

	started, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			started++
		case assert.ErrorIs(t, err, util.ErrAttemptAlreadyInProgress):
			conflicted++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, workers-1, conflicted)
}

func TestStartRespectsAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, func(q *model.Quiz) { q.MaxAttempts = 1 })
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	_, err = env.attempts.Start(ctx, studentID, quiz.ID)
	assert.ErrorIs(t, err, util.ErrAttemptLimitExceeded)
}

func TestStartOutsideAvailabilityWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unpublished := seedQuiz(t, env.db, func(q *model.Quiz) { q.IsPublished = false })
	_, err := env.attempts.Start(ctx, studentID, unpublished.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)

	opensLater := env.clock.Now().Add(time.Hour)
	notYetOpen := seedQuiz(t, env.db, func(q *model.Quiz) { q.AvailableFrom = &opensLater })
	_, err = env.attempts.Start(ctx, studentID, notYetOpen.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)

	closedEarlier := env.clock.Now().Add(-time.Hour)
	alreadyClosed := seedQuiz(t, env.db, func(q *model.Quiz) { q.AvailableTo = &closedEarlier })
	_, err = env.attempts.Start(ctx, studentID, alreadyClosed.ID)
	assert.ErrorIs(t, err, util.ErrQuizNotAvailable)
}

func TestRecordAnswerOverwrites(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	question := &quiz.Questions[0]
	var wrong *model.QuestionOption
	for i := range question.Options {
		if !question.Options[i].IsCorrect {
			wrong = &question.Options[i]
			break
		}
	}

	_, err = env.attempts.RecordAnswer(ctx, studentID, attempt.ID, question.ID,
		AnswerRequest{SelectedOptionID: &wrong.ID})
	require.NoError(t, err)

	right := correctOption(t, question)
	answer, err := env.attempts.RecordAnswer(ctx, studentID, attempt.ID, question.ID,
		AnswerRequest{SelectedOptionID: &right.ID})
	require.NoError(t, err)

	require.NotNil(t, answer.SelectedOptionID)
	assert.Equal(t, right.ID, *answer.SelectedOptionID)
}

func TestRecordAnswerRejectsAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)

	right := correctOption(t, &quiz.Questions[0])
	_, err = env.attempts.RecordAnswer(ctx, studentID, attempt.ID, quiz.Questions[0].ID,
		AnswerRequest{SelectedOptionID: &right.ID})
	assert.ErrorIs(t, err, util.ErrDeadlineExceeded)
}

func TestRecordAnswerUnknownQuestion(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	_, err = env.attempts.RecordAnswer(ctx, studentID, attempt.ID, "no-such-question",
		AnswerRequest{AnswerText: strPtr("x")})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestRecordAnswerOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	right := correctOption(t, &quiz.Questions[0])
	_, err = env.attempts.RecordAnswer(ctx, studentID+1, attempt.ID, quiz.Questions[0].ID,
		AnswerRequest{SelectedOptionID: &right.ID})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func answerAllCorrect(t *testing.T, env *testEnv, quiz *model.Quiz, attemptID string) {
	t.Helper()
	ctx := context.Background()
	for i := range quiz.Questions {
		right := correctOption(t, &quiz.Questions[i])
		_, err := env.attempts.RecordAnswer(ctx, studentID, attemptID, quiz.Questions[i].ID,
			AnswerRequest{SelectedOptionID: &right.ID})
		require.NoError(t, err)
	}
}

func TestSubmitGradesAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	answerAllCorrect(t, env, quiz, attempt.ID)

	env.clock.Advance(10 * time.Minute)
	result, err := env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptCompleted, result.Status)
	require.NotNil(t, result.Score)
	assert.Equal(t, 5.0, *result.Score)
	require.NotNil(t, result.Percentage)
	assert.Equal(t, 100.0, *result.Percentage)
	require.NotNil(t, result.IsPassed)
	assert.True(t, *result.IsPassed)
	require.NotNil(t, result.CompletedAt)
	assert.Equal(t, env.clock.Now().Unix(), result.CompletedAt.Unix())
	assert.Nil(t, result.ActiveKey)
}

func TestSubmitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	answerAllCorrect(t, env, quiz, attempt.ID)

	first, err := env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	second, err := env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, *first.Score, *second.Score)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())
}

func TestSubmitAfterDeadlineTimesOut(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	answerAllCorrect(t, env, quiz, attempt.ID)

	env.clock.Advance(45 * time.Minute)
	result, err := env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptTimedOut, result.Status)
	// completed_at 封顶在截止时刻
	require.NotNil(t, result.CompletedAt)
	assert.Equal(t, attempt.StartedAt.Add(30*time.Minute).Unix(), result.CompletedAt.Unix())
	// 截止前的作答仍计分
	require.NotNil(t, result.Score)
	assert.Equal(t, 5.0, *result.Score)
}

func TestGetAttemptDetectsTimeout(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	reloaded, err := env.attempts.GetAttempt(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptTimedOut, reloaded.Status)
	require.NotNil(t, reloaded.Score)
	assert.Nil(t, reloaded.ActiveKey)
}

func TestAbandonIsNotCountedAndFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, func(q *model.Quiz) { q.MaxAttempts = 1 })
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	abandoned, err := env.attempts.Abandon(studentID, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptAbandoned, abandoned.Status)
	assert.Nil(t, abandoned.Score)

	// 已放弃的尝试不能再提交
	_, err = env.attempts.Submit(ctx, studentID, attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotActive)

	// 放弃不占次数限制，也不再占活跃名额
	next, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next.AttemptNumber)
}

func TestAttemptNumberSkipsAbandoned(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, nil)
	ctx := context.Background()

	first, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, studentID, first.ID)
	require.NoError(t, err)

	second, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Abandon(studentID, second.ID)
	require.NoError(t, err)

	third, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, third.AttemptNumber)
}

func TestShuffledOrderStableAcrossReads(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuiz(t, env.db, func(q *model.Quiz) {
		q.ShuffleQuestions = true
		q.ShuffleAnswers = true
	})
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	reloaded, err := env.attempts.GetAttempt(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	assert.JSONEq(t, attempt.QuestionOrder, reloaded.QuestionOrder)
	assert.JSONEq(t, attempt.OptionOrder, reloaded.OptionOrder)
}

func seedQuizWithEssay(t *testing.T, env *testEnv) *model.Quiz {
	return seedQuiz(t, env.db, func(q *model.Quiz) {
		q.TotalMarks = 6
		q.Questions = []model.Question{
			{
				QuestionType: model.QuestionMultipleChoice,
				Content:      "2+2=?",
				Marks:        2,
				Order:        1,
				Options: []model.QuestionOption{
					{Content: "3", Order: 1},
					{Content: "4", IsCorrect: true, Order: 2},
				},
			},
			{
				QuestionType: model.QuestionEssay,
				Content:      "证明勾股定理",
				Marks:        4,
				Order:        2,
			},
		}
	})
}

func TestManualGradingFlow(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuizWithEssay(t, env)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	right := correctOption(t, &quiz.Questions[0])
	_, err = env.attempts.RecordAnswer(ctx, studentID, attempt.ID, quiz.Questions[0].ID,
		AnswerRequest{SelectedOptionID: &right.ID})
	require.NoError(t, err)
	_, err = env.attempts.RecordAnswer(ctx, studentID, attempt.ID, quiz.Questions[1].ID,
		AnswerRequest{AnswerText: strPtr("设直角三角形……")})
	require.NoError(t, err)

	submitted, err := env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)
	assert.True(t, submitted.PendingManual)
	assert.Equal(t, 2.0, *submitted.Score)

	const graderID uint = 7
	graded, err := env.attempts.ApplyManualGrades(ctx, graderID, attempt.ID, []ManualScore{
		{QuestionID: quiz.Questions[1].ID, Marks: 3.5},
	})
	require.NoError(t, err)

	assert.False(t, graded.PendingManual)
	assert.Equal(t, 5.5, *graded.Score)
	assert.Equal(t, 91.7, *graded.Percentage)
	assert.True(t, *graded.IsPassed)

	for _, answer := range graded.Answers {
		if answer.QuestionID == quiz.Questions[1].ID {
			require.NotNil(t, answer.GradedBy)
			assert.Equal(t, graderID, *answer.GradedBy)
			require.NotNil(t, answer.GradedAt)
		}
	}
}

func TestManualGradingRejectsAutoGradedQuestion(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuizWithEssay(t, env)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, studentID, attempt.ID)
	require.NoError(t, err)

	_, err = env.attempts.ApplyManualGrades(ctx, 7, attempt.ID, []ManualScore{
		{QuestionID: quiz.Questions[0].ID, Marks: 2},
	})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestManualGradingRequiresFinishedAttempt(t *testing.T) {
	env := newTestEnv(t)
	quiz := seedQuizWithEssay(t, env)
	ctx := context.Background()

	attempt, err := env.attempts.Start(ctx, studentID, quiz.ID)
	require.NoError(t, err)

	_, err = env.attempts.ApplyManualGrades(ctx, 7, attempt.ID, []ManualScore{
		{QuestionID: quiz.Questions[1].ID, Marks: 3},
	})
	assert.ErrorIs(t, err, util.ErrAttemptNotFinished)
}
