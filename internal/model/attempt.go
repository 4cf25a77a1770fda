package model

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptTimedOut   AttemptStatus = "timed_out"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Terminal 终态后尝试不可再变更
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptTimedOut || s == AttemptAbandoned
}

// Counted 仅 completed/timed_out 计入次数限制；abandoned 不计
func (s AttemptStatus) Counted() bool {
	return s == AttemptCompleted || s == AttemptTimedOut
}

// QuizAttempt 一次学生的限时答题记录
// swagger:model QuizAttempt
type QuizAttempt struct {
	UUIDBase
	QuizID        string        `gorm:"index;type:varchar(36);not null" json:"quizId"`
	StudentID     uint          `gorm:"index;type:bigint unsigned;not null" json:"studentId"`
	AttemptNumber int           `gorm:"not null" json:"attemptNumber"`
	Status        AttemptStatus `gorm:"size:20;default:'in_progress';index" json:"status"`

	// active_key 在 in_progress 期间为 "<quizID>:<studentID>"，终态置 NULL。
	// 唯一索引保证同一 (quiz, student) 同时只有一条进行中的尝试。
	ActiveKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Score      *float64 `json:"score,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	IsPassed   *bool    `json:"isPassed,omitempty"`

	// 开始答题时固化的出题顺序（JSON），重取尝试必须得到相同顺序
	QuestionOrder string `gorm:"type:json" json:"questionOrder"`
	OptionOrder   string `gorm:"type:json" json:"optionOrder"`

	// 含简答/作文题时为 true，直到人工评分完成
	PendingManual    bool `gorm:"default:false" json:"pendingManual"`
	FlaggedForReview bool `gorm:"default:false" json:"flaggedForReview"`

	Answers []AttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// ActiveKeyFor 活跃尝试唯一键
func ActiveKeyFor(quizID string, studentID uint) string {
	return fmt.Sprintf("%s:%d", quizID, studentID)
}

// Deadline 截止时刻 = 开始时间 + 测验限时
func (a *QuizAttempt) Deadline(durationMinutes int) time.Time {
	return a.StartedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

type AttemptAnswer struct {
	UUIDBase
	AttemptID  string `gorm:"index:idx_attempt_question,unique;type:varchar(36);not null" json:"attemptId"`
	QuestionID string `gorm:"index:idx_attempt_question,unique;type:varchar(36);not null" json:"questionId"`

	SelectedOptionID *string `gorm:"type:varchar(36)" json:"selectedOptionId,omitempty"`
	AnswerText       *string `gorm:"type:text" json:"answerText,omitempty"`

	// IsCorrect 为 NULL 表示未评分（简答/作文题等待人工评分）
	IsCorrect     *bool   `json:"isCorrect,omitempty"`
	MarksObtained float64 `gorm:"default:0" json:"marksObtained"`

	GradedBy *uint      `gorm:"type:bigint unsigned" json:"gradedBy,omitempty"`
	GradedAt *time.Time `json:"gradedAt,omitempty"`
}

func (AttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}

// Answered 是否有实际作答内容
func (ans *AttemptAnswer) Answered() bool {
	if ans.SelectedOptionID != nil && *ans.SelectedOptionID != "" {
		return true
	}
	return ans.AnswerText != nil && *ans.AnswerText != ""
}
