package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/modwatch/modwatch/internal/scheduler/tasks"
)

type scheduleRequest struct {
	Cron string `json:"cron"`
}

// getSyncSchedule returns the cron expression of the periodic sync. An empty
// expression means the sync only runs on demand.
// GET /api/v1/sync/schedule
func (s *Server) getSyncSchedule(c echo.Context) error {
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()
	return c.JSON(http.StatusOK, scheduleRequest{Cron: s.cfg.Sync.Cron})
}

// putSyncSchedule reschedules the periodic sync.
// PUT /api/v1/sync/schedule
func (s *Server) putSyncSchedule(c echo.Context) error {
	var input scheduleRequest
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()

	next := s.cfg.Sync
	next.Cron = strings.TrimSpace(input.Cron)
	next.RunOnStart = false

	if err := tasks.UpdateSyncTask(s.svc.Scheduler, s.svc.Sync, next); err != nil {
		if errors.Is(err, tasks.ErrInvalidSchedule) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update schedule: "+err.Error())
	}
	s.cfg.Sync.Cron = next.Cron

	s.logger.Info().Str("cron", next.Cron).Msg("Sync schedule updated")
	return c.JSON(http.StatusOK, scheduleRequest{Cron: next.Cron})
}
