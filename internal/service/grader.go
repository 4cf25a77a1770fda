package service

import (
	"math"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/pkg/logger"

	"go.uber.org/zap"
)

// Grader 对已结束的尝试评分。
// 选择类题型自动判分；简答/作文题保持 is_correct = NULL 等待人工评分，
// 在那之前总分只反映可自动判分的部分（临时分）。
type Grader struct{}

// GradeResult 一次评分的汇总输出
type GradeResult struct {
	Score         float64
	Percentage    float64
	Passed        bool
	PendingManual bool
	Flagged       bool
	Answers       []model.AttemptAnswer
}

// Grade 按题库对答案逐题判分并汇总
func (g Grader) Grade(quiz *model.Quiz, answers []model.AttemptAnswer) GradeResult {
	byQuestion := make(map[string]*model.AttemptAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	graded := make([]model.AttemptAnswer, 0, len(quiz.Questions))
	pendingManual := false

	for _, question := range quiz.Questions {
		answer := model.AttemptAnswer{QuestionID: question.ID}
		if existing, ok := byQuestion[question.ID]; ok {
			answer = *existing
		}

		if question.QuestionType.AutoGradable() {
			correct := false
			if answer.SelectedOptionID != nil {
				for _, option := range question.Options {
					if option.ID == *answer.SelectedOptionID {
						correct = option.IsCorrect
						break
					}
				}
			}
			// 未作答按错误计 0 分
			answer.IsCorrect = &correct
			if correct {
				answer.MarksObtained = question.Marks
			} else {
				answer.MarksObtained = 0
			}
		} else {
			// 人工评分前不做正误判定
			pendingManual = true
			answer.IsCorrect = nil
			answer.MarksObtained = 0
		}

		graded = append(graded, answer)
	}

	score, percentage, passed, flagged := g.Aggregate(quiz, graded)

	return GradeResult{
		Score:         score,
		Percentage:    percentage,
		Passed:        passed,
		PendingManual: pendingManual,
		Flagged:       flagged,
		Answers:       graded,
	}
}

// Aggregate 汇总每题得分为总分/百分比/及格判定。
// 人工评分补录后只需重跑这一步，不会动已判的每题结果。
// TotalMarks 与题目分值合计不一致属于题库数据问题：按实际合计算分并标记复核，
// 不能因此让学生的提交失败。
func (g Grader) Aggregate(quiz *model.Quiz, answers []model.AttemptAnswer) (score, percentage float64, passed, flagged bool) {
	for _, answer := range answers {
		score += answer.MarksObtained
	}

	totalMarks := quiz.TotalMarks
	questionSum := quiz.QuestionMarksSum()
	if totalMarks != questionSum || totalMarks <= 0 {
		flagged = true
		totalMarks = questionSum
		logger.Log.Warn("quiz total marks disagree with question marks sum, attempt flagged for review",
			zap.String("quizId", quiz.ID),
			zap.Float64("totalMarks", quiz.TotalMarks),
			zap.Float64("questionMarksSum", questionSum))
	}

	if totalMarks > 0 {
		percentage = roundOneDecimal(score / totalMarks * 100)
	}
	passed = percentage >= quiz.PassPercentage
	return score, percentage, passed, flagged
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
