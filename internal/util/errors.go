package util

import "errors"

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrPermissionDenied = errors.New("permission denied")

	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizLocked       = errors.New("question set is locked while the quiz is published or has attempts in progress")
	ErrInvalidQuiz      = errors.New("invalid quiz definition")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")

	ErrQuizNotAvailable         = errors.New("quiz not published or outside its availability window")
	ErrAttemptLimitExceeded     = errors.New("attempt limit reached")
	ErrAttemptAlreadyInProgress = errors.New("an attempt is already in progress for this quiz")
	ErrAttemptNotActive         = errors.New("attempt is not in progress")
	ErrDeadlineExceeded         = errors.New("attempt deadline exceeded")
	ErrAttemptNotFinished       = errors.New("attempt has not been submitted yet")
	ErrNotEnrolled              = errors.New("student not enrolled in this quiz's group")
)
