package licensestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and is
// intended for tests and for embedding the service without a database.
type MemoryStore struct {
	mu          sync.Mutex
	keys        map[string]ProductKey // by key string
	activations map[string]Activation // by machine id
	nowFn       func() time.Time
}

// NewMemoryStore creates a store seeded with the given product keys.
// Keys without an ID are assigned one.
func NewMemoryStore(keys ...ProductKey) *MemoryStore {
	s := &MemoryStore{
		keys:        make(map[string]ProductKey, len(keys)),
		activations: make(map[string]Activation),
		nowFn:       time.Now,
	}
	for _, k := range keys {
		if k.ID == "" {
			k.ID = uuid.NewString()
		}
		s.keys[k.KeyString] = k
	}
	return s
}

// Activations returns a snapshot of all activations bound to productKeyID.
func (s *MemoryStore) Activations(productKeyID string) []Activation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Activation
	for _, a := range s.activations {
		if a.ProductKeyID == productKeyID {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemoryStore) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memQueries{s}.FindKeyByString(ctx, keyString)
}

func (s *MemoryStore) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memQueries{s}.FindActivationByMachine(ctx, machineID)
}

func (s *MemoryStore) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memQueries{s}.CountActivations(ctx, productKeyID)
}

func (s *MemoryStore) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memQueries{s}.CreateActivation(ctx, productKeyID, machineID)
}

// Atomically holds the store lock for the duration of fn. Writes made by fn
// are kept even when it returns an error; callers only write as their last step.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, memQueries{s})
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

// memQueries operates on a MemoryStore whose lock is already held.
type memQueries struct {
	s *MemoryStore
}

func (m memQueries) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, ok := m.s.keys[keyString]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (m memQueries) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := m.s.activations[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m memQueries) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	for _, a := range m.s.activations {
		if a.ProductKeyID == productKeyID {
			count++
		}
	}
	return count, nil
}

func (m memQueries) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := m.s.activations[machineID]; ok {
		return nil, fmt.Errorf("create activation for %q: %w", machineID, ErrConflict)
	}
	a := Activation{
		ID:             uuid.NewString(),
		ProductKeyID:   productKeyID,
		MachineID:      machineID,
		ActivationDate: m.s.nowFn().UTC(),
	}
	m.s.activations[machineID] = a
	return &a, nil
}
