package service

import (
	"errors"

	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/util"

	"gorm.io/gorm"
)

type StatsService struct {
	AttemptRepo *repository.AttemptRepository
	QuizRepo    *repository.QuizRepository
}

func NewStatsService(attemptRepo *repository.AttemptRepository, quizRepo *repository.QuizRepository) *StatsService {
	return &StatsService{AttemptRepo: attemptRepo, QuizRepo: quizRepo}
}

// QuizSummary 面向教师端看板的测验汇总
type QuizSummary struct {
	QuizID                 string  `json:"quizId"`
	AttemptsCount          int64   `json:"attemptsCount"`
	CompletedAttemptsCount int64   `json:"completedAttemptsCount"`
	AverageScore           float64 `json:"averageScore"`
	AveragePercentage      float64 `json:"averagePercentage"`
	PassRate               float64 `json:"passRate"`
}

// Summary 汇总一个测验的历史尝试。
// 均值与通过率只统计 completed/timed_out；没有可统计的尝试时各项比率报 0。
func (s *StatsService) Summary(quizID string) (*QuizSummary, error) {
	if _, err := s.QuizRepo.FindByID(quizID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}

	row, err := s.AttemptRepo.SummarizeQuiz(quizID)
	if err != nil {
		return nil, err
	}

	summary := &QuizSummary{
		QuizID:                 quizID,
		AttemptsCount:          row.AttemptsCount,
		CompletedAttemptsCount: row.CompletedCount,
		AverageScore:           row.AverageScore,
		AveragePercentage:      row.AveragePercentage,
	}
	if row.CompletedCount > 0 {
		summary.PassRate = roundOneDecimal(float64(row.PassedCount) / float64(row.CompletedCount) * 100)
	}
	return summary, nil
}
