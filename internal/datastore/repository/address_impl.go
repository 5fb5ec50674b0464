package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// resetBaseline is the value written to every address by ResetAll.
const resetBaseline = "0"

// addressRepository implements AddressRepository.
type addressRepository struct {
	db *gorm.DB
}

// NewAddressRepository creates an AddressRepository bound to db. The
// handle may be a transaction; Apply's row lock only serializes
// concurrent writers when it is.
func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

// Apply inserts an unseen address with value == old value, or rotates
// lastValue into OldValue when the value changed. The SELECT takes a
// row lock (FOR UPDATE) so two batches touching the same address cannot
// interleave the read-modify-write.
func (r *addressRepository) Apply(ctx context.Context, address int, value, topic string) (ChangeResult, error) {
	var existing entities.Address
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", address).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := entities.Address{
			Address:     address,
			Value:       value,
			OldValue:    value,
			SourceTopic: topic,
		}
		if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
			return ChangeResult{}, fmt.Errorf("failed to insert address %d: %w", address, err)
		}
		return ChangeResult{IsNew: true}, nil

	case err != nil:
		return ChangeResult{}, fmt.Errorf("failed to read address %d: %w", address, err)
	}

	if existing.Value == value {
		return ChangeResult{OldValue: existing.Value}, nil
	}

	updates := map[string]any{
		"old_value": existing.Value,
		"value":     value,
	}
	if err := r.db.WithContext(ctx).Model(&entities.Address{}).
		Where("address = ?", address).
		Updates(updates).Error; err != nil {
		return ChangeResult{}, fmt.Errorf("failed to update address %d: %w", address, err)
	}
	return ChangeResult{Changed: true, OldValue: existing.Value}, nil
}

// Get returns one address record.
func (r *addressRepository) Get(ctx context.Context, address int) (*entities.Address, error) {
	var record entities.Address
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address %d: %w", address, err)
	}
	return &record, nil
}

// List returns all known addresses ordered by bus address.
func (r *addressRepository) List(ctx context.Context) ([]entities.Address, error) {
	var records []entities.Address
	if err := r.db.WithContext(ctx).Order("address ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return records, nil
}

// Rename sets the operator label for an address.
func (r *addressRepository) Rename(ctx context.Context, address int, name string) error {
	result := r.db.WithContext(ctx).Model(&entities.Address{}).
		Where("address = ?", address).
		Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to rename address %d: %w", address, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// ResetAll rebaselines every address to "0".
func (r *addressRepository) ResetAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&entities.Address{}).
		Where("1 = 1").
		Updates(map[string]any{"value": resetBaseline, "old_value": resetBaseline}).Error
	if err != nil {
		return fmt.Errorf("failed to reset address values: %w", err)
	}
	return nil
}
