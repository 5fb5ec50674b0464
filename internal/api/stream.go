package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hklweb/alarmd/internal/logger"
)

// SSE connection configuration.
const (
	// maxStreamDuration bounds every connection to prevent resource
	// leaks from clients that never disconnect.
	maxStreamDuration = 30 * time.Minute
	heartbeatInterval = 30 * time.Second

	rateLimitWindow            = 1 * time.Minute
	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
)

// initStreamRoutes registers the SSE snapshot stream.
func (c *Controller) initStreamRoutes() {
	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, _ error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many stream connection attempts, please wait before trying again",
			})
		},
	}

	c.Group.GET("/alarms/stream", c.StreamAlarms, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// StreamAlarms serves alarm snapshots over SSE until the client
// disconnects, the subscription ends, or the maximum duration elapses.
func (c *Controller) StreamAlarms(ctx echo.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx.Request().Context(), maxStreamDuration)
	defer cancel()

	setSSEHeaders(ctx)

	clientID, frames, subCtx := c.broadcaster.Subscribe(timeoutCtx)
	defer c.broadcaster.Unsubscribe(clientID)

	c.log.Info("alarm stream client connected", logger.String("client_id", clientID))
	defer c.log.Info("alarm stream client disconnected", logger.String("client_id", clientID))

	// Initial frame so the client has state before the first tick.
	snapshot, err := c.broadcaster.BuildSnapshot(timeoutCtx)
	if err == nil {
		if err := writeSSEData(ctx, snapshot); err != nil {
			return nil
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-frames:
			if err := writeSSEData(ctx, frame); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if err := writeSSEComment(ctx, "heartbeat"); err != nil {
				return nil
			}
		case <-subCtx.Done():
			return nil
		case <-timeoutCtx.Done():
			return nil
		}
	}
}

func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	ctx.Response().WriteHeader(http.StatusOK)
	ctx.Response().Flush()
}

// writeSSEData writes one `data: <json>` frame and flushes it.
func writeSSEData(ctx echo.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(ctx.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}

// writeSSEComment writes a comment line, used as keep-alive.
func writeSSEComment(ctx echo.Context, text string) error {
	if _, err := fmt.Fprintf(ctx.Response(), ": %s\n\n", text); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}
