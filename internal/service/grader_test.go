package service

import (
	"testing"

	"tutorhub_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion(id string, marks float64, correctOptionID string, otherOptionIDs ...string) model.Question {
	q := model.Question{
		UUIDBase:     model.UUIDBase{ID: id},
		QuestionType: model.QuestionMultipleChoice,
		Marks:        marks,
		Options: []model.QuestionOption{
			{UUIDBase: model.UUIDBase{ID: correctOptionID}, IsCorrect: true},
		},
	}
	for _, optionID := range otherOptionIDs {
		q.Options = append(q.Options, model.QuestionOption{UUIDBase: model.UUIDBase{ID: optionID}})
	}
	return q
}

func essayQuestion(id string, marks float64) model.Question {
	return model.Question{
		UUIDBase:     model.UUIDBase{ID: id},
		QuestionType: model.QuestionEssay,
		Marks:        marks,
	}
}

func TestGradeAllCorrect(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     5,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 2, "q1-right", "q1-wrong"),
			choiceQuestion("q2", 3, "q2-right", "q2-wrong"),
		},
	}
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2", SelectedOptionID: strPtr("q2-right")},
	}

	result := Grader{}.Grade(quiz, answers)

	assert.Equal(t, 5.0, result.Score)
	assert.Equal(t, 100.0, result.Percentage)
	assert.True(t, result.Passed)
	assert.False(t, result.PendingManual)
	assert.False(t, result.Flagged)
}

func TestGradeUnansweredCountsAsIncorrect(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     4,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 2, "q1-right", "q1-wrong"),
			choiceQuestion("q2", 2, "q2-right", "q2-wrong"),
		},
	}
	// q2 完全未作答
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2"},
	}

	result := Grader{}.Grade(quiz, answers)

	assert.Equal(t, 2.0, result.Score)
	assert.Equal(t, 50.0, result.Percentage)
	assert.False(t, result.Passed)

	require.Len(t, result.Answers, 2)
	for _, answer := range result.Answers {
		require.NotNil(t, answer.IsCorrect)
		if answer.QuestionID == "q2" {
			assert.False(t, *answer.IsCorrect)
			assert.Zero(t, answer.MarksObtained)
		}
	}
}

func TestGradePercentageRoundedToOneDecimal(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     3,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 1, "q1-right", "q1-wrong"),
			choiceQuestion("q2", 1, "q2-right", "q2-wrong"),
			choiceQuestion("q3", 1, "q3-right", "q3-wrong"),
		},
	}
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2", SelectedOptionID: strPtr("q2-right")},
		{QuestionID: "q3", SelectedOptionID: strPtr("q3-wrong")},
	}

	result := Grader{}.Grade(quiz, answers)

	assert.Equal(t, 2.0, result.Score)
	assert.Equal(t, 66.7, result.Percentage)
	assert.True(t, result.Passed)
}

func TestGradePassAtExactThreshold(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     10,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 6, "q1-right", "q1-wrong"),
			choiceQuestion("q2", 4, "q2-right", "q2-wrong"),
		},
	}
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2", SelectedOptionID: strPtr("q2-wrong")},
	}

	result := Grader{}.Grade(quiz, answers)

	assert.Equal(t, 60.0, result.Percentage)
	assert.True(t, result.Passed)
}

func TestGradeEssayStaysPending(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     6,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 2, "q1-right", "q1-wrong"),
			essayQuestion("q2", 4),
		},
	}
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2", AnswerText: strPtr("勾股定理的证明……")},
	}

	result := Grader{}.Grade(quiz, answers)

	// 临时分只含自动判分部分
	assert.Equal(t, 2.0, result.Score)
	assert.Equal(t, 33.3, result.Percentage)
	assert.True(t, result.PendingManual)

	var essay *model.AttemptAnswer
	for i := range result.Answers {
		if result.Answers[i].QuestionID == "q2" {
			essay = &result.Answers[i]
		}
	}
	require.NotNil(t, essay)
	assert.Nil(t, essay.IsCorrect)
	assert.Zero(t, essay.MarksObtained)
}

func TestGradeFlagsTotalMarksMismatch(t *testing.T) {
	// TotalMarks 写错成 10，题目合计只有 4：按实际合计算分并标记复核
	quiz := &model.Quiz{
		TotalMarks:     10,
		PassPercentage: 50,
		Questions: []model.Question{
			choiceQuestion("q1", 2, "q1-right", "q1-wrong"),
			choiceQuestion("q2", 2, "q2-right", "q2-wrong"),
		},
	}
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", SelectedOptionID: strPtr("q1-right")},
		{QuestionID: "q2", SelectedOptionID: strPtr("q2-right")},
	}

	result := Grader{}.Grade(quiz, answers)

	assert.True(t, result.Flagged)
	assert.Equal(t, 4.0, result.Score)
	assert.Equal(t, 100.0, result.Percentage)
	assert.True(t, result.Passed)
}

func TestAggregateAfterManualGrades(t *testing.T) {
	quiz := &model.Quiz{
		TotalMarks:     6,
		PassPercentage: 60,
		Questions: []model.Question{
			choiceQuestion("q1", 2, "q1-right", "q1-wrong"),
			essayQuestion("q2", 4),
		},
	}
	isCorrect := true
	answers := []model.AttemptAnswer{
		{QuestionID: "q1", IsCorrect: &isCorrect, MarksObtained: 2},
		{QuestionID: "q2", IsCorrect: &isCorrect, MarksObtained: 3.5},
	}

	score, percentage, passed, flagged := Grader{}.Aggregate(quiz, answers)

	assert.Equal(t, 5.5, score)
	assert.Equal(t, 91.7, percentage)
	assert.True(t, passed)
	assert.False(t, flagged)
}
