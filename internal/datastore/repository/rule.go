package repository

import (
	"context"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// RuleRepository is the rule catalog. Writers are validated here so
// malformed rules never reach the evaluator.
type RuleRepository interface {
	ListByAddress(ctx context.Context, address int) ([]entities.Rule, error)
	List(ctx context.Context) ([]entities.Rule, error)
	Get(ctx context.Context, id uint) (*entities.Rule, error)
	Create(ctx context.Context, rule *entities.Rule) error
	Update(ctx context.Context, rule *entities.Rule) error
	Delete(ctx context.Context, id uint) error
}
