package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
)

// initAddressRoutes registers the telemetry point endpoints.
func (c *Controller) initAddressRoutes() {
	addresses := c.Group.Group("/addresses")
	addresses.GET("", c.ListAddresses)
	addresses.PUT("/:address/name", c.RenameAddress)
}

// ListAddresses returns every known telemetry point with its current
// and previous value.
func (c *Controller) ListAddresses(ctx echo.Context) error {
	addresses, err := c.addresses.List(ctx.Request().Context())
	if err != nil {
		c.log.Error("failed to list addresses", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list addresses"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"addresses": addresses,
		"count":     len(addresses),
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameAddress sets the operator label of a telemetry point. The
// engine itself never writes Name.
func (c *Controller) RenameAddress(ctx echo.Context) error {
	address, err := strconv.Atoi(ctx.Param("address"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid address parameter"})
	}

	var req renameRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rename payload"})
	}

	if err := c.addresses.Rename(ctx.Request().Context(), address, req.Name); err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Address not found"})
		}
		c.log.Error("failed to rename address", logger.Error(err), logger.Int("address", address))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to rename address"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Address renamed"})
}
