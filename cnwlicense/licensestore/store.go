// Package licensestore provides the storage contract and implementations for
// product keys and machine activations.
package licensestore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("machine already activated")
)

// ProductKey is a provisioned key that grants a quota of machine activations.
type ProductKey struct {
	ID             string `json:"id" bson:"_id"`
	KeyString      string `json:"key_string" bson:"key_string"`
	MaxActivations int    `json:"max_activations" bson:"max_activations"`
	IsActive       bool   `json:"is_active" bson:"is_active"`
}

// Activation binds one machine to one product key slot.
// MachineID is unique across all activations, not per key.
type Activation struct {
	ID             string    `json:"id" bson:"_id"`
	ProductKeyID   string    `json:"product_key_id" bson:"product_key_id"`
	MachineID      string    `json:"machine_id" bson:"machine_id"`
	ActivationDate time.Time `json:"activation_date" bson:"activation_date"`
}

// Queries are the point lookups and writes the activation policy needs.
type Queries interface {
	// FindKeyByString returns the key with the given key string, or ErrNotFound.
	FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error)

	// FindActivationByMachine returns the activation held by machineID under any
	// key, or ErrNotFound.
	FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error)

	// CountActivations returns the number of activations bound to a key.
	CountActivations(ctx context.Context, productKeyID string) (int, error)

	// CreateActivation binds machineID to a key. It returns an error wrapping
	// ErrConflict if machineID already has an activation.
	CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error)
}

// Store is a License Store backend.
type Store interface {
	Queries

	// Atomically runs fn inside a transaction. A key returned by
	// FindKeyByString within fn stays locked against other Atomically calls
	// until fn returns. The transaction commits if fn returns nil and is
	// rolled back otherwise.
	Atomically(ctx context.Context, fn func(ctx context.Context, q Queries) error) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
