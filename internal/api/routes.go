package api

import (
	"github.com/modwatch/modwatch/internal/api/handlers"
)

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.svc.Hub != nil {
		s.echo.GET("/ws", s.svc.Hub.HandleWebSocket)
	}

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	sources := api.Group("/sources")
	sources.GET("", s.listSources)
	sources.POST("", s.addSource)
	sources.POST("/import", s.importSources)
	sources.DELETE("", s.removeSources)
	sources.PUT("/name", s.renameSource)

	api.GET("/layout", s.getLayout)
	api.PUT("/layout", s.putLayout)

	api.GET("/sync", s.getLastSync)
	api.POST("/sync", s.runSync)

	downloads := api.Group("/downloads")
	downloads.GET("", s.listDownloads)
	downloads.POST("", s.startDownload)
	downloads.GET("/:id", s.getDownload)
	downloads.DELETE("/:id", s.cancelDownload)

	if s.svc.Progress != nil {
		api.GET("/activities", s.listActivities)
	}

	if s.svc.Scheduler != nil {
		schedulerHandlers := handlers.NewSchedulerHandler(s.svc.Scheduler)
		tasks := api.Group("/tasks")
		tasks.GET("", schedulerHandlers.ListTasks)
		tasks.GET("/:id", schedulerHandlers.GetTask)
		tasks.POST("/:id/run", schedulerHandlers.RunTask)

		api.GET("/sync/schedule", s.getSyncSchedule)
		api.PUT("/sync/schedule", s.putSyncSchedule)
	}

	if s.svc.Logs != nil {
		NewLogsHandlers(s.svc.Logs).RegisterRoutes(api.Group("/logs"))
	}
}
