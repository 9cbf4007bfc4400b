package router

import (
	"net/http"
	"time"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/handler"
	"github.com/examtrust/examtrust-backend/internal/middleware"
	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Submission *handler.SubmissionHandler
	Proctor    *handler.ProctorHandler
	Monitor    *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Serve evidence images statically with aggressive caching (1 year);
	// files are content-addressed by UUID so they never change in place.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.EvidenceDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(authService)

	// ─── Submissions ───────────────────────────────────────────────────
	submissions := router.Group("/submissions")
	submissions.Use(requireAuth)
	{
		submissions.POST("/start", handlers.Submission.Start)
		submissions.GET("/me", handlers.Submission.GetMine)
		submissions.PATCH("/:id/answers", handlers.Submission.UpdateAnswers)
		submissions.POST("/:id/submit", handlers.Submission.Submit)
		submissions.GET("/:id", handlers.Submission.GetByID)
		submissions.POST("/:id/face-image", handlers.Submission.UpdateFaceImage)
		submissions.GET("/exam/:examId", handlers.Submission.GetExamSubmissions)
		submissions.GET("/exam/:examId/leaderboard", handlers.Submission.GetLeaderboard)
		submissions.POST("/exam/:examId/rescore", middleware.RequireStaff(), handlers.Submission.Rescore)
	}

	// ─── Proctoring ────────────────────────────────────────────────────
	// Event ingestion is rate-limited per caller; proctoring widgets can
	// fire bursts of events on flaky clients.
	logLimiter := middleware.NewRateLimiter(cfg.ProctorLogRate, time.Minute)

	proctor := router.Group("/proctor")
	proctor.Use(requireAuth)
	{
		proctor.POST("/log", logLimiter.Middleware(), handlers.Proctor.LogEvent)
		proctor.GET("/submission/:submissionId", handlers.Proctor.GetSubmissionLogs)
		proctor.GET("/exam/:examId", handlers.Proctor.GetExamLogs)
	}

	// ─── WebSocket ─────────────────────────────────────────────────────
	ws := router.Group("/ws")
	ws.Use(requireAuth)
	{
		ws.GET("/proctor/exams/:examId/stream", handlers.Monitor.StreamExamEvents)
	}

	return router
}
