package app

import (
	"tutorhub_backend/docs"
	"tutorhub_backend/internal/config"
	"tutorhub_backend/internal/middleware"
	"tutorhub_backend/internal/model"
	"tutorhub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)
	rg.GET("/groups", c.group.MyGroups)

	// 答题
	rg.GET("/quizzes", c.attempt.ListQuizzes)
	rg.POST("/quizzes/:id/attempts", c.attempt.StartAttempt)
	rg.GET("/attempts/:id", c.attempt.GetAttempt)
	rg.PUT("/attempts/:id/answers/:questionId", c.attempt.SaveAnswer)
	rg.POST("/attempts/:id/submit", c.attempt.SubmitAttempt)
	rg.POST("/attempts/:id/abandon", c.attempt.AbandonAttempt)
	rg.GET("/attempts/:id/result", c.attempt.GetResult)
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		// 班级
		teacher.POST("/groups", c.group.CreateGroup)
		teacher.POST("/groups/:id/members", c.group.AddMember)
		teacher.DELETE("/groups/:id/members/:studentId", c.group.RemoveMember)
		teacher.GET("/groups/:id/quizzes", c.quiz.ListGroupQuizzes)

		// 测验管理
		teacher.POST("/quizzes", c.quiz.CreateQuiz)
		teacher.GET("/quizzes/:id", c.quiz.GetQuiz)
		teacher.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
		teacher.DELETE("/quizzes/:id", c.quiz.DeleteQuiz)
		teacher.POST("/quizzes/:id/publish", c.quiz.PublishQuiz)

		// 成绩与评分
		teacher.GET("/quizzes/:id/summary", c.quiz.GetQuizSummary)
		teacher.GET("/quizzes/:id/attempts", c.quiz.ListQuizAttempts)
		teacher.POST("/attempts/:id/grades", c.quiz.GradeAttempt)
	}
}
