package service

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tutorhub_backend/internal/model"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeClock 可手动拨动的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "quiz_test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Group{},
		&model.GroupMember{},
		&model.Quiz{},
		&model.Question{},
		&model.QuestionOption{},
		&model.QuizAttempt{},
		&model.AttemptAnswer{},
	))
	return db
}

type testEnv struct {
	db          *gorm.DB
	clock       *fakeClock
	attemptRepo *repository.AttemptRepository
	quizRepo    *repository.QuizRepository
	groupRepo   *repository.GroupRepository
	attempts    *AttemptService
	quizzes     *QuizService
	stats       *StatsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := openTestDB(t)
	clk := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	attemptRepo := repository.NewAttemptRepository(db)
	quizRepo := repository.NewQuizRepository(db, nil, 0)
	groupRepo := repository.NewGroupRepository(db)

	return &testEnv{
		db:          db,
		clock:       clk,
		attemptRepo: attemptRepo,
		quizRepo:    quizRepo,
		groupRepo:   groupRepo,
		attempts:    NewAttemptService(attemptRepo, quizRepo, clk),
		quizzes:     NewQuizService(quizRepo, groupRepo, attemptRepo, clk),
		stats:       NewStatsService(attemptRepo, quizRepo),
	}
}

// seedGroup 建一个班级，作者端用例需要真实的 groupId
func seedGroup(t *testing.T, db *gorm.DB) *model.Group {
	t.Helper()
	group := &model.Group{Name: "初二三班", Subject: "数学", TeacherID: 1}
	require.NoError(t, db.Create(group).Error)
	return group
}

// seedQuiz 建一个已发布的测验：两道单选（各2分）+ 一道判断（1分），限时 30 分钟。
// 返回值带完整题目与选项，顺序与创建顺序一致。
func seedQuiz(t *testing.T, db *gorm.DB, mutate func(*model.Quiz)) *model.Quiz {
	t.Helper()

	quiz := &model.Quiz{
		GroupID:         1,
		CreatorID:       1,
		Title:           "代数单元测验",
		DurationMinutes: 30,
		TotalMarks:      5,
		PassPercentage:  60,
		MaxAttempts:     3,
		IsPublished:     true,
		Questions: []model.Question{
			{
				QuestionType: model.QuestionMultipleChoice,
				Content:      "2+2=?",
				Marks:        2,
				Order:        1,
				Options: []model.QuestionOption{
					{Content: "3", Order: 1},
					{Content: "4", IsCorrect: true, Order: 2},
					{Content: "5", Order: 3},
				},
			},
			{
				QuestionType: model.QuestionMultipleChoice,
				Content:      "3*3=?",
				Marks:        2,
				Order:        2,
				Options: []model.QuestionOption{
					{Content: "6", Order: 1},
					{Content: "9", IsCorrect: true, Order: 2},
					{Content: "12", Order: 3},
				},
			},
			{
				QuestionType: model.QuestionTrueFalse,
				Content:      "0 是偶数",
				Marks:        1,
				Order:        3,
				Options: []model.QuestionOption{
					{Content: "正确", IsCorrect: true, Order: 1},
					{Content: "错误", Order: 2},
				},
			},
		},
	}
	if mutate != nil {
		mutate(quiz)
	}
	require.NoError(t, db.Create(quiz).Error)
	return quiz
}

// correctOption 取题目的正确选项
func correctOption(t *testing.T, question *model.Question) *model.QuestionOption {
	t.Helper()
	for i := range question.Options {
		if question.Options[i].IsCorrect {
			return &question.Options[i]
		}
	}
	t.Fatalf("question %s has no correct option", question.ID)
	return nil
}

func strPtr(s string) *string { return &s }
