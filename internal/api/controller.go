// Package api exposes the REST and SSE control surface of the alarm
// engine over Echo.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hklweb/alarmd/internal/alarm"
	"github.com/hklweb/alarmd/internal/conf"
	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/fanout"
	"github.com/hklweb/alarmd/internal/logger"
	"github.com/hklweb/alarmd/internal/observability"
)

const (
	apiPrefix = "/api/v1"

	shutdownTimeout = 10 * time.Second

	// maxHistoryLimit caps paginated reads regardless of the query.
	maxHistoryLimit     = 200
	defaultHistoryLimit = 100
)

// Controller holds the API dependencies and the Echo instance.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	settings    *conf.Settings
	alarms      repository.AlarmRepository
	rules       repository.RuleRepository
	addresses   repository.AddressRepository
	coordinator *alarm.Coordinator
	broadcaster *fanout.Broadcaster
	metrics     *observability.Metrics
	log         logger.Logger
}

// New wires the controller and registers all routes.
func New(settings *conf.Settings, alarms repository.AlarmRepository, rules repository.RuleRepository, addresses repository.AddressRepository, coordinator *alarm.Coordinator, broadcaster *fanout.Broadcaster, metrics *observability.Metrics, log logger.Logger) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if settings.WebServer.Debug {
		e.Debug = true
		e.Use(middleware.Logger())
	}

	c := &Controller{
		Echo:        e,
		Group:       e.Group(apiPrefix),
		settings:    settings,
		alarms:      alarms,
		rules:       rules,
		addresses:   addresses,
		coordinator: coordinator,
		broadcaster: broadcaster,
		metrics:     metrics,
		log:         log,
	}

	c.initAlarmRoutes()
	c.initRuleRoutes()
	c.initAddressRoutes()
	c.initStreamRoutes()
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return c
}

// Start serves until the listener fails or Shutdown is called.
func (c *Controller) Start() error {
	addr := fmt.Sprintf(":%d", c.settings.WebServer.Port)
	c.log.Info("http server listening", logger.String("addr", addr))
	if err := c.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (c *Controller) Shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return c.Echo.Shutdown(sctx)
}

// parseUintParam reads a positive integer path parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %w", name, err)
	}
	return uint(v), nil
}

// parsePagination reads limit/offset query parameters with the shared
// cap applied.
func parsePagination(ctx echo.Context) (limit, offset int) {
	limit = defaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if raw := ctx.QueryParam("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
