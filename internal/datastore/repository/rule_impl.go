package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// Bit rules address a single bit of a 16-bit register value.
const (
	minBitPosition = 0
	maxBitPosition = 15
)

// ruleRepository implements RuleRepository.
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a RuleRepository bound to db.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

// validateRule rejects configuration errors at write time.
func (r *ruleRepository) validateRule(ctx context.Context, rule *entities.Rule) error {
	if !entities.ValidPriority(rule.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRule, rule.Priority)
	}
	switch rule.Type {
	case entities.RuleTypeValue:
		if rule.Value == "" {
			return fmt.Errorf("%w: value rule requires a match value", ErrInvalidRule)
		}
	case entities.RuleTypeBit:
		if rule.BitPosition < minBitPosition || rule.BitPosition > maxBitPosition {
			return fmt.Errorf("%w: bit position %d out of range %d-%d",
				ErrInvalidRule, rule.BitPosition, minBitPosition, maxBitPosition)
		}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, rule.Type)
	}

	// A rule for a never-seen address can never fire.
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Address{}).
		Where("address = ?", rule.Address).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check rule address %d: %w", rule.Address, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: unknown address %d", ErrInvalidRule, rule.Address)
	}
	return nil
}

// ListByAddress returns the enabled rules for one address. Called per
// changed address inside the batch transaction, so rule edits take
// effect on the next evaluation cycle.
func (r *ruleRepository) ListByAddress(ctx context.Context, address int) ([]entities.Rule, error) {
	var rules []entities.Rule
	err := r.db.WithContext(ctx).
		Where("address = ? AND enabled = ?", address, true).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for address %d: %w", address, err)
	}
	return rules, nil
}

// List returns all rules.
func (r *ruleRepository) List(ctx context.Context) ([]entities.Rule, error) {
	var rules []entities.Rule
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// Get returns a single rule by ID.
func (r *ruleRepository) Get(ctx context.Context, id uint) (*entities.Rule, error) {
	var rule entities.Rule
	err := r.db.WithContext(ctx).First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %d: %w", id, err)
	}
	return &rule, nil
}

// Create validates and inserts a new rule.
func (r *ruleRepository) Create(ctx context.Context, rule *entities.Rule) error {
	if err := r.validateRule(ctx, rule); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update validates and replaces an existing rule.
func (r *ruleRepository) Update(ctx context.Context, rule *entities.Rule) error {
	if rule.ID == 0 {
		return fmt.Errorf("%w: missing rule ID", ErrInvalidRule)
	}
	if err := r.validateRule(ctx, rule); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&entities.Rule{}).
		Where("id = ?", rule.ID).
		Select("address", "type", "value", "text", "text_unfulfilled",
			"bit_position", "text_on", "text_off", "priority", "enabled").
		Updates(rule)
	if result.Error != nil {
		return fmt.Errorf("failed to update rule %d: %w", rule.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *ruleRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.Rule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}
