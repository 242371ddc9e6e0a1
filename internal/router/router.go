package router

import (
	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/handlers"
	"github.com/codedeck/runner/internal/middleware"
	"github.com/codedeck/runner/internal/services"
)

// New builds the HTTP surface over the execution engine.
func New(cfg *config.Config, engine *services.Engine, sessions *services.SessionManager, history *services.HistoryService, assist *services.AssistService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.DefaultBodyLimit())

	executeHandler := handlers.NewExecuteHandler(engine, cfg)
	sessionHandler := handlers.NewSessionHandler(sessions)
	historyHandler := handlers.NewHistoryHandler(history)
	streamHandler := handlers.NewStreamHandler(engine)
	systemHandler := handlers.NewSystemHandler(sessions)
	assistHandler := handlers.NewAssistHandler(assist)
	versionHandler := handlers.NewVersionHandler()

	api := r.Group("/api")
	{
		api.POST("/execute", executeHandler.Execute)
		api.POST("/continue", executeHandler.Continue)

		api.GET("/sessions", sessionHandler.List)
		api.DELETE("/sessions/:id", sessionHandler.Delete)

		api.GET("/projects/:id/runs", historyHandler.ListRuns)
		api.GET("/executions/:id/stream", streamHandler.Stream)

		api.POST("/assist/explain", assistHandler.Explain)

		api.GET("/system", systemHandler.Status)
		api.GET("/version", versionHandler.Get)
	}

	return r
}
