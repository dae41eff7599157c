package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/modwatch/modwatch/internal/syncer"
)

func (s *Server) getLastSync(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"running": s.svc.Sync.Running(),
		"report":  s.svc.Sync.LastReport(),
	})
}

// syncFailure is returned when the pass ran but its results could not be saved.
type syncFailure struct {
	Error  string         `json:"error"`
	Report *syncer.Report `json:"report"`
}

// runSync blocks until the pass finishes. A client disconnect does not
// abort fetches that are already under way.
func (s *Server) runSync(c echo.Context) error {
	report, err := s.svc.Sync.SyncAll(context.WithoutCancel(c.Request().Context()))
	if err != nil && report != nil {
		return c.JSON(httpError(err).Code, syncFailure{Error: err.Error(), Report: report})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
