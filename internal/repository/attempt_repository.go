package repository

import (
	"errors"
	"time"

	"tutorhub_backend/internal/model"

	"gorm.io/gorm"
)

// AttemptRepository 尝试记录的持久层。
// “同一 (quiz, student) 同时只有一条进行中尝试”由 active_key 唯一索引保证，
// 状态迁移一律走带条件的 UPDATE（CAS），不做先读后写。
type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// CreateWithAnswers 在一个事务内写入尝试与每题的占位答案。
// 并发 Start 触发 active_key 冲突时返回 gorm.ErrDuplicatedKey。
func (r *AttemptRepository) CreateWithAnswers(attempt *model.QuizAttempt, answers []model.AttemptAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		if len(answers) > 0 {
			for i := range answers {
				answers[i].AttemptID = attempt.ID
			}
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AttemptRepository) FindByID(id string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindByIDWithAnswers(id string) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.Preload("Answers").First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindActive(quizID string, studentID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.
		Where("quiz_id = ? AND student_id = ? AND status = ?", quizID, studentID, model.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// CountInProgress 某测验当前进行中的尝试总数（跨所有学生）
func (r *AttemptRepository) CountInProgress(quizID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND status = ?", quizID, model.AttemptInProgress).
		Count(&count).Error
	return count, err
}

// CountCounted 统计计入次数限制的尝试（completed/timed_out；abandoned 不计）
func (r *AttemptRepository) CountCounted(quizID string, studentID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ? AND status IN ?", quizID, studentID,
			[]model.AttemptStatus{model.AttemptCompleted, model.AttemptTimedOut}).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) GetAnswer(attemptID, questionID string) (*model.AttemptAnswer, error) {
	var answer model.AttemptAnswer
	err := r.DB.
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (r *AttemptRepository) ListAnswers(attemptID string) ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// UpdateAnswer 按 (attempt, question) 覆盖写入答案，重复提交后写覆盖先写
func (r *AttemptRepository) UpdateAnswer(attemptID, questionID string, selectedOptionID, answerText *string) (int64, error) {
	res := r.DB.Model(&model.AttemptAnswer{}).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Updates(map[string]interface{}{
			"selected_option_id": selectedOptionID,
			"answer_text":        answerText,
		})
	return res.RowsAffected, res.Error
}

// FinalizeGraded 将进行中的尝试原子地迁移到终态并写入评分结果。
// 半评分状态不可见：状态迁移和每题得分在同一事务内提交或回滚。
// 若尝试已不在 in_progress（并发提交竞争失败）返回 false 且不改写任何数据。
func (r *AttemptRepository) FinalizeGraded(attempt *model.QuizAttempt, graded []model.AttemptAnswer) (bool, error) {
	transitioned := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":             attempt.Status,
				"completed_at":       attempt.CompletedAt,
				"score":              attempt.Score,
				"percentage":         attempt.Percentage,
				"is_passed":          attempt.IsPassed,
				"pending_manual":     attempt.PendingManual,
				"flagged_for_review": attempt.FlaggedForReview,
				"active_key":         nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		transitioned = true

		for i := range graded {
			if err := tx.Model(&model.AttemptAnswer{}).
				Where("attempt_id = ? AND question_id = ?", attempt.ID, graded[i].QuestionID).
				Updates(map[string]interface{}{
					"is_correct":     graded[i].IsCorrect,
					"marks_obtained": graded[i].MarksObtained,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return transitioned, err
}

// TransitionAbandoned 放弃尝试：in_progress → abandoned，不评分
func (r *AttemptRepository) TransitionAbandoned(id string, completedAt time.Time) (bool, error) {
	res := r.DB.Model(&model.QuizAttempt{}).
		Where("id = ? AND status = ?", id, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       model.AttemptAbandoned,
			"completed_at": completedAt,
			"active_key":   nil,
		})
	return res.RowsAffected > 0, res.Error
}

// ExpiredAttemptRow 进行中尝试及其所属测验的限时，供超时清扫使用
type ExpiredAttemptRow struct {
	model.QuizAttempt
	DurationMinutes int
}

// ListExpiredInProgress 找出已越过截止时刻仍处于 in_progress 的尝试。
// 截止判定放在 Go 侧以保持跨方言可移植。
func (r *AttemptRepository) ListExpiredInProgress(now time.Time) ([]ExpiredAttemptRow, error) {
	var rows []ExpiredAttemptRow
	err := r.DB.Table("quiz_attempts a").
		Select("a.*, q.duration_minutes").
		Joins("JOIN quizzes q ON q.id = a.quiz_id").
		Where("a.status = ? AND a.deleted_at IS NULL", model.AttemptInProgress).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	expired := rows[:0]
	for _, row := range rows {
		if now.After(row.Deadline(row.DurationMinutes)) {
			expired = append(expired, row)
		}
	}
	return expired, nil
}

// ApplyManualGrades 人工评分：更新若干答案的得分并改写尝试的汇总结果，同一事务
func (r *AttemptRepository) ApplyManualGrades(attempt *model.QuizAttempt, graded []model.AttemptAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for i := range graded {
			if err := tx.Model(&model.AttemptAnswer{}).
				Where("attempt_id = ? AND question_id = ?", attempt.ID, graded[i].QuestionID).
				Updates(map[string]interface{}{
					"is_correct":     graded[i].IsCorrect,
					"marks_obtained": graded[i].MarksObtained,
					"graded_by":      graded[i].GradedBy,
					"graded_at":      graded[i].GradedAt,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.QuizAttempt{}).
			Where("id = ?", attempt.ID).
			Updates(map[string]interface{}{
				"score":          attempt.Score,
				"percentage":     attempt.Percentage,
				"is_passed":      attempt.IsPassed,
				"pending_manual": attempt.PendingManual,
			}).Error
	})
}

// QuizSummaryRow 按测验聚合的统计结果
type QuizSummaryRow struct {
	AttemptsCount     int64   `json:"attemptsCount"`
	CompletedCount    int64   `json:"completedAttemptsCount"`
	AverageScore      float64 `json:"averageScore"`
	AveragePercentage float64 `json:"averagePercentage"`
	PassedCount       int64   `json:"-"`
}

// SummarizeQuiz 统计只覆盖 completed/timed_out 的尝试；abandoned 与进行中不参与均值
func (r *AttemptRepository) SummarizeQuiz(quizID string) (*QuizSummaryRow, error) {
	var row QuizSummaryRow
	counted := []model.AttemptStatus{model.AttemptCompleted, model.AttemptTimedOut}

	if err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ?", quizID).
		Count(&row.AttemptsCount).Error; err != nil {
		return nil, err
	}

	if err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND status IN ?", quizID, counted).
		Count(&row.CompletedCount).Error; err != nil {
		return nil, err
	}

	if row.CompletedCount == 0 {
		return &row, nil
	}

	if err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND status IN ?", quizID, counted).
		Select("COALESCE(AVG(score), 0)").Scan(&row.AverageScore).Error; err != nil {
		return nil, err
	}
	if err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND status IN ?", quizID, counted).
		Select("COALESCE(AVG(percentage), 0)").Scan(&row.AveragePercentage).Error; err != nil {
		return nil, err
	}
	if err := r.DB.Model(&model.QuizAttempt{}).
		Where("quiz_id = ? AND status IN ? AND is_passed = ?", quizID, counted, true).
		Count(&row.PassedCount).Error; err != nil {
		return nil, err
	}

	return &row, nil
}

// ListByQuiz 教师端尝试列表，带学生姓名
func (r *AttemptRepository) ListByQuiz(quizID string, page, limit int) ([]map[string]interface{}, int64, error) {
	var total int64
	countQuery := r.DB.Table("quiz_attempts a").
		Where("a.quiz_id = ? AND a.deleted_at IS NULL", quizID)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []map[string]interface{}
	offset := (page - 1) * limit
	err := r.DB.Table("quiz_attempts a").
		Select("a.*, u.name as student_name, u.email as student_email").
		Joins("JOIN users u ON a.student_id = u.id").
		Where("a.quiz_id = ? AND a.deleted_at IS NULL", quizID).
		Order("a.created_at desc").
		Offset(offset).Limit(limit).
		Scan(&results).Error
	return results, total, err
}
