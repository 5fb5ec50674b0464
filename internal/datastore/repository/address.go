// Package repository provides data access for the alarmd schema.
package repository

import (
	"context"

	"github.com/hklweb/alarmd/internal/datastore/entities"
)

// ChangeResult describes the outcome of applying one telemetry update.
type ChangeResult struct {
	// IsNew is true when the address was seen for the first time.
	// Brand-new addresses are not evaluated (nothing to transition from).
	IsNew bool
	// Changed is true when the stored value differed from the update.
	Changed bool
	// OldValue is the value stored before the update.
	OldValue string
}

// AddressRepository is the last-known-value ledger per telemetry address.
type AddressRepository interface {
	// Apply performs the row-locked read-modify-write for one update.
	Apply(ctx context.Context, address int, value, topic string) (ChangeResult, error)
	Get(ctx context.Context, address int) (*entities.Address, error)
	List(ctx context.Context) ([]entities.Address, error)
	// Rename sets the operator label. The engine never writes Name
	// elsewhere.
	Rename(ctx context.Context, address int, name string) error
	// ResetAll sets every address's value and old value to the "0"
	// baseline. Driven by the acknowledgment coordinator.
	ResetAll(ctx context.Context) error
}
