package model

import "time"

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// HasOptions 选择类题型携带选项
func (t QuestionType) HasOptions() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// AutoGradable 简答/作文题只能人工评分
func (t QuestionType) AutoGradable() bool {
	return t.HasOptions()
}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

// Quiz 测验定义（题库侧，答题引擎只读）
// swagger:model Quiz
type Quiz struct {
	UUIDBase
	GroupID            uint       `gorm:"index;type:bigint unsigned" json:"groupId"`
	CreatorID          uint       `gorm:"index;type:bigint unsigned" json:"creatorId"`
	Title              string     `gorm:"size:255;not null" json:"title"`
	Description        string     `gorm:"type:text" json:"description"`
	DurationMinutes    int        `gorm:"default:0" json:"durationMinutes"`
	TotalMarks         float64    `gorm:"default:0" json:"totalMarks"`
	PassPercentage     float64    `json:"passPercentage"`
	MaxAttempts        int        `json:"maxAttempts"`
	ShuffleQuestions   bool       `gorm:"default:false" json:"shuffleQuestions"`
	ShuffleAnswers     bool       `gorm:"default:false" json:"shuffleAnswers"`
	ShowCorrectAnswers bool       `gorm:"default:false" json:"showCorrectAnswers"`
	AvailableFrom      *time.Time `json:"availableFrom,omitempty"`
	AvailableTo        *time.Time `json:"availableTo,omitempty"`
	IsPublished        bool       `gorm:"default:false" json:"isPublished"`
	PublishedAt        *time.Time `json:"publishedAt,omitempty"`

	Questions []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// AvailableAt 测验在给定时刻是否开放（已发布且在开放时间窗内）
func (q *Quiz) AvailableAt(now time.Time) bool {
	if !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableTo != nil && now.After(*q.AvailableTo) {
		return false
	}
	return true
}

// QuestionMarksSum 题目分值合计，用于校验 TotalMarks 的一致性
func (q *Quiz) QuestionMarksSum() float64 {
	var sum float64
	for _, question := range q.Questions {
		sum += question.Marks
	}
	return sum
}

type Question struct {
	UUIDBase
	QuizID       string       `gorm:"index;type:varchar(36)" json:"quizId"`
	QuestionType QuestionType `gorm:"size:50;not null" json:"questionType"`
	Content      string       `gorm:"type:text;not null" json:"content"`
	Marks        float64      `gorm:"default:1" json:"marks"`
	Explanation  string       `gorm:"type:text" json:"explanation"`
	Order        int          `gorm:"default:0" json:"order"`

	Options []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (Question) TableName() string {
	return "quiz_questions"
}

type QuestionOption struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36)" json:"questionId"`
	Content    string `gorm:"type:text;not null" json:"content"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	Order      int    `gorm:"default:0" json:"order"`
}

func (QuestionOption) TableName() string {
	return "quiz_question_options"
}
