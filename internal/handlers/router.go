package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/worksheet-session/internal/services"
	"github.com/SAP-F-2025/worksheet-session/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	contentHandler *ContentHandler
	logger         utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
) *HandlerManager {
	v := serviceManager.Validator()
	return &HandlerManager{
		sessionHandler: NewSessionHandler(
			serviceManager.Sessions(),
			serviceManager.Handoffs(),
			serviceManager.Exporter(),
			v,
			logger,
		),
		contentHandler: NewContentHandler(serviceManager.Regeneration(), v, logger),
		logger:         logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(
		utils.RequestID(),
		utils.LoggerMiddleware(hm.logger),
		utils.ContextLogger(hm.logger),
	)

	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(StudentIdentity())
	{
		v1.GET("/assignments", hm.sessionHandler.ListAssignments)
		v1.POST("/handoffs", hm.sessionHandler.PutHandoff)

		// Worksheet session routes
		session := v1.Group("/session")
		{
			session.GET("", hm.sessionHandler.GetSession)
			session.DELETE("", hm.sessionHandler.LeaveSession)
			session.POST("/select", hm.sessionHandler.SelectWorksheet)
			session.GET("/open", hm.sessionHandler.OpenDeepLink)
			session.GET("/handoff/wait", hm.sessionHandler.WaitHandoff)
			session.POST("/start", hm.sessionHandler.StartSession)
			session.PUT("/answers/:problem_id", hm.sessionHandler.SaveAnswer)
			session.POST("/answers/:problem_id/handwriting", hm.sessionHandler.CaptureHandwriting)
			session.POST("/submit", hm.sessionHandler.Submit)
			session.PUT("/cursor", hm.sessionHandler.MoveCursor)
			session.GET("/countdown", hm.sessionHandler.StreamCountdown)
			session.GET("/export", hm.sessionHandler.ExportResults)
		}

		// Worksheet content routes
		worksheets := v1.Group("/worksheets")
		{
			worksheets.POST("/generate", hm.contentHandler.GenerateWorksheet)
			worksheets.GET("/drafts/:id", hm.contentHandler.GetDraft)
			worksheets.POST("/drafts/:id/save", hm.contentHandler.SaveDraft)

			// Problem regeneration
			worksheets.POST("/:id/problems/:problem_id/regenerate", hm.contentHandler.RegenerateProblem)
			worksheets.GET("/:id/problems/:problem_id/regeneration", hm.contentHandler.GetRegeneration)
			worksheets.POST("/:id/problems/:problem_id/regeneration/apply", hm.contentHandler.ApplyRegeneration)
			worksheets.DELETE("/:id/problems/:problem_id/regeneration", hm.contentHandler.DiscardRegeneration)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "worksheet-session",
	})
}
