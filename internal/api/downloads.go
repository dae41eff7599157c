package api

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/modwatch/modwatch/internal/download"
	"github.com/modwatch/modwatch/internal/progress"
	"github.com/modwatch/modwatch/internal/release"
)

type startDownloadInput struct {
	ID string `json:"id"`
	// Release is "current" (default) or "previous".
	Release string `json:"release"`
}

func (s *Server) listDownloads(c echo.Context) error {
	active := s.svc.Downloads.Active()
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.Before(active[j].StartedAt) })
	return c.JSON(http.StatusOK, active)
}

func (s *Server) getDownload(c echo.Context) error {
	h, ok := s.svc.Downloads.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "download not found")
	}
	return c.JSON(http.StatusOK, h.Status())
}

func (s *Server) startDownload(c echo.Context) error {
	var input startDownloadInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id := release.SourceID(strings.TrimSpace(input.ID))
	src, ok := s.svc.Registry.Get(id)
	if !ok {
		return httpError(release.ErrNotFound)
	}

	var info *release.ReleaseInfo
	switch input.Release {
	case "", "current":
		info = src.Current
	case "previous":
		info = src.Previous
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "release must be current or previous")
	}
	if info == nil {
		return httpError(download.ErrNoAsset)
	}

	req := download.Request{
		SourceID: id,
		URL:      info.AssetURL,
		Name:     info.AssetName,
	}
	if s.cfg != nil {
		req.DestDir = s.cfg.Download.Dir
	}

	var observer download.Observer
	if s.svc.Progress != nil {
		observer = s.svc.Progress.NewDownloadObserver(info.DisplayName)
	}

	// The transfer outlives the request.
	h, err := s.svc.Downloads.Download(context.WithoutCancel(c.Request().Context()), req, observer)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, h.Status())
}

func (s *Server) cancelDownload(c echo.Context) error {
	if err := s.svc.Downloads.Cancel(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listActivities(c echo.Context) error {
	var activities []*progress.Activity
	if t := c.QueryParam("type"); t != "" {
		activities = s.svc.Progress.GetActivitiesByType(progress.ActivityType(t))
	} else {
		activities = s.svc.Progress.GetAllActivities()
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].StartedAt.Before(activities[j].StartedAt) })
	return c.JSON(http.StatusOK, activities)
}
