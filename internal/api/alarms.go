package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hklweb/alarmd/internal/alarm"
	"github.com/hklweb/alarmd/internal/logger"
)

// ackRejectedMessage is a wire compatibility contract with the
// existing dashboard.
const ackRejectedMessage = "Quittierung bereits aktiv"

// initAlarmRoutes registers the alarm ledger endpoints.
func (c *Controller) initAlarmRoutes() {
	alarms := c.Group.Group("/alarms")
	alarms.GET("", c.ListActiveAlarms)
	alarms.GET("/all", c.ListAlarmHistory)
	alarms.GET("/status", c.GetAlarmStatus)
	alarms.GET("/event-log", c.ListEventLog)
	alarms.POST("/acknowledge", c.AcknowledgeAlarms)
	alarms.POST("/clear", c.ClearActiveAlarms)
}

// ListActiveAlarms returns the currently active projection.
func (c *Controller) ListActiveAlarms(ctx echo.Context) error {
	active, err := c.alarms.ListActive(ctx.Request().Context())
	if err != nil {
		c.log.Error("failed to list active alarms", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list active alarms"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"alarms": active,
		"count":  len(active),
	})
}

// ListAlarmHistory returns the append-only history, newest first.
func (c *Controller) ListAlarmHistory(ctx echo.Context) error {
	limit, offset := parsePagination(ctx)
	items, total, err := c.alarms.ListHistory(ctx.Request().Context(), limit, offset)
	if err != nil {
		c.log.Error("failed to list alarm history", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list alarm history"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"alarms": items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAlarmStatus returns the priority roll-up plus the acknowledgment
// window state.
func (c *Controller) GetAlarmStatus(ctx echo.Context) error {
	counts, err := c.alarms.CountByPriority(ctx.Request().Context())
	if err != nil {
		c.log.Error("failed to count active alarms", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to compute alarm status"})
	}

	resp := map[string]any{
		"counts":            counts,
		"quittierungActive": c.coordinator.Suppressing(),
	}
	if deadline := c.coordinator.Deadline(); !deadline.IsZero() {
		resp["quittierungUntil"] = deadline.Format(time.RFC3339)
	}
	if lastClear := c.coordinator.LastClearTime(); !lastClear.IsZero() {
		resp["lastClearTime"] = lastClear.Format(time.RFC3339)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ListEventLog returns the transition audit trail, newest first.
func (c *Controller) ListEventLog(ctx echo.Context) error {
	limit, offset := parsePagination(ctx)
	items, total, err := c.alarms.ListEventLog(ctx.Request().Context(), limit, offset)
	if err != nil {
		c.log.Error("failed to list event log", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list event log"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"events": items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// AcknowledgeAlarms runs the global acknowledge sequence. A duplicate
// request while the window is open is a conflict.
func (c *Controller) AcknowledgeAlarms(ctx echo.Context) error {
	err := c.coordinator.Acknowledge(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, alarm.ErrAcknowledgeActive) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": ackRejectedMessage})
		}
		c.log.Error("acknowledge failed", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to acknowledge alarms"})
	}
	c.metrics.Acknowledgments.Inc()
	return ctx.JSON(http.StatusOK, map[string]string{"message": "All alarms acknowledged"})
}

// ClearActiveAlarms empties the active projection without touching
// history or rule state.
func (c *Controller) ClearActiveAlarms(ctx echo.Context) error {
	if err := c.alarms.ClearActive(ctx.Request().Context()); err != nil {
		c.log.Error("failed to clear active alarms", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to clear active alarms"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Active alarms cleared"})
}
