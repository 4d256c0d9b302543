package api

import (
	"net/http"

	"github.com/ecgovern/ecgovern/internal/governor"
	"github.com/labstack/echo/v4"
)

func registerStatusEndpoints(rest *echo.Echo) {
	rest.GET("/status/", getStatus)
}

// returns the latest governor snapshot
func getStatus(c echo.Context) error {
	status, ok := governor.LatestStatus()
	if !ok {
		return c.JSONPretty(http.StatusServiceUnavailable, Result{
			Name:    "not ready",
			Message: "the governor has not completed a tick yet",
		}, indentationChar)
	}
	return c.JSONPretty(http.StatusOK, status, indentationChar)
}
