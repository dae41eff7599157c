package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/modwatch/modwatch/internal/download"
	"github.com/modwatch/modwatch/internal/provider"
	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/syncer"
)

// httpError maps core errors onto HTTP statuses.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, release.ErrInvalidSource),
		errors.Is(err, provider.ErrAmbiguousSource),
		errors.Is(err, registry.ErrInvalidLayout),
		errors.Is(err, download.ErrNoAsset),
		errors.Is(err, download.ErrInvalidAssetName),
		errors.Is(err, download.ErrNoDestination):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, release.ErrAlreadyTracked),
		errors.Is(err, syncer.ErrSyncInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, release.ErrNotFound),
		errors.Is(err, download.ErrUnknownDownload):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, download.ErrShuttingDown),
		errors.Is(err, release.ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, release.ErrUnreachable),
		errors.Is(err, release.ErrUpstreamRejected),
		errors.Is(err, release.ErrMalformedUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
