package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/modwatch/modwatch/internal/release"
)

type addSourceInput struct {
	URL string `json:"url"`
}

type importSourcesInput struct {
	URLs []string `json:"urls"`
}

type renameSourceInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) listSources(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Registry.List())
}

func (s *Server) addSource(c echo.Context) error {
	var input addSourceInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id := release.SourceID(strings.TrimSpace(input.URL))
	if err := s.svc.Registry.Add(c.Request().Context(), id); err != nil {
		return httpError(err)
	}

	src, _ := s.svc.Registry.Get(id)
	return c.JSON(http.StatusCreated, src)
}

func (s *Server) importSources(c echo.Context) error {
	var input importSourcesInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ids := make([]release.SourceID, 0, len(input.URLs))
	for _, u := range input.URLs {
		ids = append(ids, release.SourceID(u))
	}

	result, err := s.svc.Registry.Import(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) removeSources(c echo.Context) error {
	raw := c.QueryParams()["id"]
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one id is required")
	}

	ids := make([]release.SourceID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, release.SourceID(id))
	}

	if err := s.svc.Registry.Remove(c.Request().Context(), ids...); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) renameSource(c echo.Context) error {
	var input renameSourceInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id := release.SourceID(strings.TrimSpace(input.ID))
	if err := s.svc.Registry.Rename(c.Request().Context(), id, input.Name); err != nil {
		return httpError(err)
	}

	src, _ := s.svc.Registry.Get(id)
	return c.JSON(http.StatusOK, src)
}

func (s *Server) getLayout(c echo.Context) error {
	layout := s.svc.Registry.Layout()
	if layout == nil {
		layout = json.RawMessage("null")
	}
	return c.JSONBlob(http.StatusOK, layout)
}

func (s *Server) putLayout(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.svc.Registry.SetLayout(c.Request().Context(), json.RawMessage(body)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
