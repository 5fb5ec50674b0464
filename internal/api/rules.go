package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hklweb/alarmd/internal/datastore/entities"
	"github.com/hklweb/alarmd/internal/datastore/repository"
	"github.com/hklweb/alarmd/internal/logger"
)

// initRuleRoutes registers the rule catalog endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules")
	rules.GET("", c.ListRules)
	rules.GET("/:id", c.GetRule)
	rules.POST("", c.CreateRule)
	rules.PUT("/:id", c.UpdateRule)
	rules.DELETE("/:id", c.DeleteRule)
}

// ListRules returns all rules, optionally filtered by address.
func (c *Controller) ListRules(ctx echo.Context) error {
	rules, err := c.rules.List(ctx.Request().Context())
	if err != nil {
		c.log.Error("failed to list rules", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list rules"})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns one rule by id.
func (c *Controller) GetRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to get rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get rule"})
	}
	return ctx.JSON(http.StatusOK, rule)
}

// CreateRule creates a rule. Validation failures come back as 400s.
func (c *Controller) CreateRule(ctx echo.Context) error {
	var rule entities.Rule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule payload"})
	}
	rule.ID = 0

	if err := c.rules.Create(ctx.Request().Context(), &rule); err != nil {
		if errors.Is(err, repository.ErrInvalidRule) || errors.Is(err, repository.ErrAddressNotFound) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		c.log.Error("failed to create rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create rule"})
	}

	c.log.Info("rule created",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.Int("address", rule.Address),
		logger.String("type", rule.Type))
	return ctx.JSON(http.StatusCreated, rule)
}

// UpdateRule replaces the mutable fields of a rule.
func (c *Controller) UpdateRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var rule entities.Rule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule payload"})
	}
	rule.ID = id

	if err := c.rules.Update(ctx.Request().Context(), &rule); err != nil {
		switch {
		case errors.Is(err, repository.ErrRuleNotFound):
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		case errors.Is(err, repository.ErrInvalidRule), errors.Is(err, repository.ErrAddressNotFound):
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			c.log.Error("failed to update rule", logger.Error(err))
			return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update rule"})
		}
	}
	return ctx.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule from the catalog. Existing history keeps
// its denormalized text.
func (c *Controller) DeleteRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	if err := c.rules.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to delete rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete rule"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Rule deleted"})
}
