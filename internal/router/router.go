// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/handlers"
	"github.com/classroom-app/classroom-backend/internal/middleware"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/services"
)

func Initialize(db *gorm.DB, cfg *config.Config, svc *services.Container, limiters *middleware.RateLimiters) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth, svc.OAuth, cfg)
	userHandler := handlers.NewUserHandler(svc.User)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog, svc.Notice)
	paymentHandler := handlers.NewPaymentHandler(svc.Order)
	learningHandler := handlers.NewLearningHandler(svc.Learning)
	reviewHandler := handlers.NewReviewHandler(svc.Review)
	webhookHandler := handlers.NewWebhookHandler(svc.Imweb)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Notice, svc.Fulfillment, svc.Vimeo)

	auth := middleware.NewAuth(svc.Auth, cfg.JWT.CookieName)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Files written by the local storage backend
	if cfg.AWS.AccessKeyID == "" {
		r.Static("/uploads", cfg.AWS.LocalUploadDir)
	}

	// Imweb pushes here; the route sits outside the rate limiter
	r.POST("/webhooks/imweb", webhookHandler.Imweb)

	v1 := r.Group("/api/v1")
	v1.Use(limiters.General.Middleware())
	{
		// Authentication routes
		authRoutes := v1.Group("/auth")
		authRoutes.Use(limiters.Auth.Middleware())
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.RefreshToken)
			authRoutes.POST("/logout", auth.AuthRequired(), authHandler.Logout)
			authRoutes.GET("/me", auth.AuthRequired(), authHandler.Me)
			authRoutes.GET("/oauth/:provider", authHandler.OAuthAuthorize)
			authRoutes.GET("/oauth/:provider/callback", authHandler.OAuthCallback)
		}

		// Account routes
		account := v1.Group("/users/me")
		account.Use(auth.AuthRequired())
		{
			account.PUT("", userHandler.UpdateProfile)
			account.PUT("/password", userHandler.ChangePassword)
			account.DELETE("", userHandler.DeleteAccount)
		}

		// Storefront
		catalog := v1.Group("")
		catalog.Use(auth.OptionalAuth())
		{
			catalog.GET("/courses", catalogHandler.ListCourses)
			catalog.GET("/courses/:idOrSlug", catalogHandler.GetCourse)
			catalog.GET("/textbooks", catalogHandler.ListTextbooks)
			catalog.GET("/textbooks/:idOrSlug", catalogHandler.GetTextbook)
			catalog.GET("/teachers", catalogHandler.ListTeachers)
			catalog.GET("/teachers/:id", catalogHandler.GetTeacher)
			catalog.GET("/notices", catalogHandler.ListNotices)
			catalog.GET("/notices/:id", catalogHandler.GetNotice)
			catalog.GET("/reviews", reviewHandler.ListReviews)
		}

		// Orders and payments
		orders := v1.Group("")
		orders.Use(auth.AuthRequired())
		{
			orders.POST("/orders", paymentHandler.CreateOrder)
			orders.GET("/orders", paymentHandler.MyOrders)
			orders.GET("/orders/:orderNo", paymentHandler.GetOrder)
			orders.POST("/orders/:orderNo/cancel", paymentHandler.CancelOrder)
			orders.POST("/payments/confirm", paymentHandler.ConfirmPayment)
		}

		// Learning dashboard
		learning := v1.Group("/learning")
		learning.Use(auth.AuthRequired())
		{
			learning.GET("/dashboard", learningHandler.Dashboard)
			learning.GET("/lessons/:id", learningHandler.GetLesson)
			learning.PUT("/lessons/:id/progress", learningHandler.SaveProgress)
			learning.GET("/courses/:id/progress", learningHandler.CourseProgress)
			learning.GET("/courses/:id/attachments", learningHandler.CourseAttachments)
			learning.GET("/attachments/:id/download", learningHandler.DownloadAttachment)
			learning.GET("/textbooks/:id/download", learningHandler.DownloadTextbook)
		}

		// Reviews
		reviews := v1.Group("/reviews")
		reviews.Use(auth.AuthRequired())
		{
			reviews.GET("/mine", reviewHandler.MyReviews)
			reviews.POST("", reviewHandler.CreateReview)
			reviews.PUT("/:id", reviewHandler.UpdateReview)
			reviews.DELETE("/:id", reviewHandler.DeleteReview)
			reviews.POST("/:id/report", reviewHandler.ReportReview)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(auth.AuthRequired(), middleware.AdminRequired(), middleware.AuditLogMiddleware(db))
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)

			admin.GET("/users", userHandler.ListUsers)
			admin.GET("/users/:id", userHandler.GetUser)
			admin.PUT("/users/:id/status", userHandler.UpdateUserStatus)

			admin.GET("/courses", adminHandler.ListCourses)
			admin.POST("/courses", adminHandler.CreateCourse)
			admin.PUT("/courses/reorder", adminHandler.ReorderCourses)
			admin.GET("/courses/:id", adminHandler.GetCourse)
			admin.PUT("/courses/:id", adminHandler.UpdateCourse)
			admin.DELETE("/courses/:id", adminHandler.DeleteCourse)
			admin.GET("/courses/:id/lessons", adminHandler.ListLessons)
			admin.POST("/courses/:id/lessons", adminHandler.CreateLesson)
			admin.PUT("/courses/:id/lessons/reorder", adminHandler.ReorderLessons)
			admin.GET("/courses/:id/attachments", adminHandler.ListAttachments)

			admin.POST("/lessons/sync-videos", adminHandler.SyncAllVideos)
			admin.PUT("/lessons/:id", adminHandler.UpdateLesson)
			admin.DELETE("/lessons/:id", adminHandler.DeleteLesson)
			admin.PUT("/lessons/:id/position", adminHandler.MoveLesson)
			admin.POST("/lessons/:id/sync-video", adminHandler.SyncLessonVideo)

			admin.GET("/textbooks", adminHandler.ListTextbooks)
			admin.POST("/textbooks", adminHandler.CreateTextbook)
			admin.PUT("/textbooks/positions", adminHandler.UpdateTextbookPositions)
			admin.PUT("/textbooks/:id", adminHandler.UpdateTextbook)
			admin.DELETE("/textbooks/:id", adminHandler.DeleteTextbook)
			admin.POST("/textbooks/:id/file", limiters.Upload.Middleware(), adminHandler.UploadTextbookFile)

			admin.GET("/teachers", adminHandler.ListTeachers)
			admin.POST("/teachers", adminHandler.CreateTeacher)
			admin.PUT("/teachers/reorder", adminHandler.ReorderTeachers)
			admin.PUT("/teachers/:id", adminHandler.UpdateTeacher)
			admin.DELETE("/teachers/:id", adminHandler.DeleteTeacher)

			admin.POST("/attachments", limiters.Upload.Middleware(), adminHandler.UploadAttachment)
			admin.DELETE("/attachments/:id", adminHandler.DeleteAttachment)
			admin.POST("/uploads/image", limiters.Upload.Middleware(), adminHandler.UploadImage)

			admin.GET("/notices", adminHandler.ListNotices)
			admin.POST("/notices", adminHandler.CreateNotice)
			admin.PUT("/notices/:id", adminHandler.UpdateNotice)
			admin.DELETE("/notices/:id", adminHandler.DeleteNotice)

			admin.GET("/enrollments", adminHandler.ListEnrollments)
			admin.POST("/enrollments", adminHandler.GrantEnrollment)
			admin.PUT("/enrollments/:id/extend", adminHandler.ExtendEnrollment)
			admin.DELETE("/enrollments/:id", adminHandler.RevokeEnrollment)

			admin.GET("/orders", paymentHandler.ListOrders)
			admin.GET("/orders/:id", paymentHandler.AdminGetOrder)
			admin.POST("/orders/:id/refund", paymentHandler.RefundOrder)

			admin.GET("/reviews", reviewHandler.AdminListReviews)
			admin.PUT("/reviews/:id/hide", reviewHandler.SetReviewStatus(models.ReviewStatusHidden))
			admin.PUT("/reviews/:id/restore", reviewHandler.SetReviewStatus(models.ReviewStatusVisible))
			admin.DELETE("/reviews/:id", reviewHandler.DeleteReview)
			admin.GET("/reports", reviewHandler.ListReports)
			admin.POST("/reports/:id/resolve", reviewHandler.ResolveReport)

			admin.GET("/webhook-events", webhookHandler.ListEvents)
			admin.POST("/webhook-events/:id/reprocess", webhookHandler.ReprocessEvent)
		}
	}

	return r
}
