package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

type FilterOutput struct {
	Activity activity.Object `json:"activity"`
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprint(he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("mrfd-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "mrfd", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "mrfd", Version: versioninfo.Short()})
}

// Runs a single activity document through the MRF pipeline.
func (srv *Server) HandleFilter(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	act, err := activity.ParseJSON(body)
	if err != nil {
		filterRequests.WithLabelValues("invalid").Inc()
		return c.JSON(400, GenericError{
			Error:   "InvalidActivity",
			Message: err.Error(),
		})
	}

	out, err := srv.pipeline.Filter(ctx, act)
	if err != nil {
		if rej, ok := mrf.AsReject(err); ok {
			filterRequests.WithLabelValues("reject").Inc()
			return c.JSON(422, GenericError{
				Error:   "Rejected",
				Message: rej.Reason,
			})
		}
		filterRequests.WithLabelValues("error").Inc()
		srv.logger.Error("MRF pipeline failed", "id", act.ID(), "err", err)
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: err.Error(),
		})
	}
	filterRequests.WithLabelValues("accept").Inc()
	return c.JSON(200, FilterOutput{Activity: out})
}

func (srv *Server) HandleDescribe(c echo.Context) error {
	desc, err := srv.pipeline.Describe(c.Request().Context())
	if err != nil {
		return c.JSON(500, GenericError{
			Error:   "InternalError",
			Message: err.Error(),
		})
	}
	return c.JSON(200, desc)
}

func (srv *Server) HandleConfigDescription(c echo.Context) error {
	return c.JSON(200, srv.pipeline.ConfigDescriptions())
}

func (srv *Server) HandleGetConfig(c echo.Context) error {
	cfg, err := srv.store.Config(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(200, cfg)
}

// Replaces the live configuration. Accepts JSON, or YAML when sent with a YAML content type.
func (srv *Server) HandlePutConfig(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		cfg, err = config.ParseYAML(body)
	} else {
		cfg, err = config.ParseJSON(body)
	}
	if err == nil {
		err = srv.store.Update(cfg)
	}
	if err != nil {
		configUpdates.WithLabelValues("invalid").Inc()
		return c.JSON(400, GenericError{
			Error:   "InvalidConfig",
			Message: err.Error(),
		})
	}
	configUpdates.WithLabelValues("ok").Inc()
	srv.logger.Info("MRF config replaced through admin API")
	return c.JSON(200, cfg)
}
