package repository

import (
	"context"
	"encoding/json"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const quizSnapshotKeyPrefix = "quiz:snapshot:"

// QuizRepository 题库存取。答题引擎通过 Snapshot 拿到一致的测验快照，
// 已发布测验的快照缓存在 redis，任何写操作都会使其失效。
type QuizRepository struct {
	DB       *gorm.DB
	RDB      *redis.Client
	CacheTTL time.Duration
}

func NewQuizRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration) *QuizRepository {
	return &QuizRepository{DB: db, RDB: rdb, CacheTTL: cacheTTL}
}

func (r *QuizRepository) Create(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) FindByID(id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.First(&quiz, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (r *QuizRepository) FindByIDWithQuestions(id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("`order` asc, created_at asc")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("`order` asc, created_at asc")
		}).
		First(&quiz, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// Snapshot 返回测验及题目的一致快照，优先读 redis 缓存
func (r *QuizRepository) Snapshot(ctx context.Context, id string) (*model.Quiz, error) {
	if r.RDB != nil {
		raw, err := r.RDB.Get(ctx, quizSnapshotKeyPrefix+id).Result()
		if err == nil {
			var quiz model.Quiz
			if err := json.Unmarshal([]byte(raw), &quiz); err == nil {
				return &quiz, nil
			}
			logger.Log.Warn("corrupt quiz snapshot in cache, falling back to db", zap.String("quizId", id))
		}
	}

	quiz, err := r.FindByIDWithQuestions(id)
	if err != nil {
		return nil, err
	}

	if r.RDB != nil && quiz.IsPublished {
		if raw, err := json.Marshal(quiz); err == nil {
			if err := r.RDB.Set(ctx, quizSnapshotKeyPrefix+id, raw, r.CacheTTL).Err(); err != nil {
				logger.Log.Warn("failed to cache quiz snapshot", zap.String("quizId", id), zap.Error(err))
			}
		}
	}

	return quiz, nil
}

func (r *QuizRepository) InvalidateSnapshot(ctx context.Context, id string) {
	if r.RDB == nil {
		return
	}
	if err := r.RDB.Del(ctx, quizSnapshotKeyPrefix+id).Err(); err != nil {
		logger.Log.Warn("failed to invalidate quiz snapshot", zap.String("quizId", id), zap.Error(err))
	}
}

// Update 只更新测验本身的字段，题目通过 ReplaceQuestions 单独维护
func (r *QuizRepository) Update(quiz *model.Quiz) error {
	return r.DB.Omit(clause.Associations).Save(quiz).Error
}

// ReplaceQuestions 整组替换题目与选项（作者端保存即全量覆盖）
func (r *QuizRepository) ReplaceQuestions(quizID string, questions []model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var questionIDs []string
		if err := tx.Model(&model.Question{}).Where("quiz_id = ?", quizID).
			Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).
				Delete(&model.QuestionOption{}).Error; err != nil {
				return err
			}
			if err := tx.Where("quiz_id = ?", quizID).
				Delete(&model.Question{}).Error; err != nil {
				return err
			}
		}
		for i := range questions {
			questions[i].QuizID = quizID
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *QuizRepository) SetPublished(id string, published bool, at *time.Time) error {
	return r.DB.Model(&model.Quiz{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_published": published,
			"published_at": at,
		}).Error
}

func (r *QuizRepository) Delete(id string) error {
	// 尝试记录保留审计，只软删测验与题目
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var questionIDs []string
		if err := tx.Model(&model.Question{}).Where("quiz_id = ?", id).
			Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).
				Delete(&model.QuestionOption{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Quiz{}, "id = ?", id).Error
	})
}

type QuizListRow struct {
	model.Quiz
	QuestionCount int `json:"questionCount"`
	AttemptCount  int `json:"attemptCount"`
}

func (r *QuizRepository) ListByGroup(groupID uint, page, limit int) ([]QuizListRow, int64, error) {
	var total int64
	if err := r.DB.Model(&model.Quiz{}).Where("group_id = ?", groupID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []QuizListRow
	query := r.DB.Table("quizzes q").
		Select("q.*, "+
			"(SELECT COUNT(*) FROM quiz_questions qq WHERE qq.quiz_id = q.id AND qq.deleted_at IS NULL) as question_count, "+
			"(SELECT COUNT(*) FROM quiz_attempts a WHERE a.quiz_id = q.id AND a.deleted_at IS NULL) as attempt_count").
		Where("q.group_id = ? AND q.deleted_at IS NULL", groupID)

	if limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("q.created_at desc").Scan(&rows).Error
	return rows, total, err
}

// ListPublishedForStudent 列出学生所在班级当前已发布的测验
func (r *QuizRepository) ListPublishedForStudent(studentID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.Table("quizzes q").
		Select("q.*").
		Joins("JOIN group_members m ON m.group_id = q.group_id").
		Where("m.student_id = ? AND q.is_published = ? AND q.deleted_at IS NULL AND m.deleted_at IS NULL", studentID, true).
		Order("q.created_at desc").
		Scan(&quizzes).Error
	return quizzes, err
}
