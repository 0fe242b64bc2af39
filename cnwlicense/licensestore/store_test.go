package licensestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// newStoreFunc returns an empty store seeded with keys.
type newStoreFunc func(t *testing.T, keys ...ProductKey) Store

func runStoreSuite(t *testing.T, newStore newStoreFunc) {
	t.Run("FindKeyByString", func(t *testing.T) {
		s := newStore(t, ProductKey{ID: "pk-1", KeyString: "ABC-123", MaxActivations: 2, IsActive: true})
		ctx := context.Background()

		k, err := s.FindKeyByString(ctx, "ABC-123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if k.ID != "pk-1" || k.MaxActivations != 2 || !k.IsActive {
			t.Errorf("unexpected key %+v", k)
		}
		if _, err := s.FindKeyByString(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateAndFindActivation", func(t *testing.T) {
		s := newStore(t, ProductKey{ID: "pk-1", KeyString: "ABC-123", MaxActivations: 2, IsActive: true})
		ctx := context.Background()

		if _, err := s.FindActivationByMachine(ctx, "mach-A"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before activation, got %v", err)
		}
		created, err := s.CreateActivation(ctx, "pk-1", "mach-A")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created.ID == "" {
			t.Error("expected activation id to be assigned")
		}
		if created.ActivationDate.IsZero() || created.ActivationDate.Location().String() != "UTC" {
			t.Errorf("expected UTC activation date, got %v", created.ActivationDate)
		}

		found, err := s.FindActivationByMachine(ctx, "mach-A")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found.ID != created.ID || found.ProductKeyID != "pk-1" {
			t.Errorf("expected %+v, got %+v", created, found)
		}
	})

	t.Run("MachineIDGloballyUnique", func(t *testing.T) {
		s := newStore(t,
			ProductKey{ID: "pk-1", KeyString: "KEY-1", MaxActivations: 2, IsActive: true},
			ProductKey{ID: "pk-2", KeyString: "KEY-2", MaxActivations: 2, IsActive: true},
		)
		ctx := context.Background()

		if _, err := s.CreateActivation(ctx, "pk-1", "mach-A"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.CreateActivation(ctx, "pk-1", "mach-A"); !errors.Is(err, ErrConflict) {
			t.Errorf("same key: expected ErrConflict, got %v", err)
		}
		if _, err := s.CreateActivation(ctx, "pk-2", "mach-A"); !errors.Is(err, ErrConflict) {
			t.Errorf("other key: expected ErrConflict, got %v", err)
		}
	})

	t.Run("CountActivations", func(t *testing.T) {
		s := newStore(t,
			ProductKey{ID: "pk-1", KeyString: "KEY-1", MaxActivations: 5, IsActive: true},
			ProductKey{ID: "pk-2", KeyString: "KEY-2", MaxActivations: 5, IsActive: true},
		)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := s.CreateActivation(ctx, "pk-1", fmt.Sprintf("m-%d", i)); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		if _, err := s.CreateActivation(ctx, "pk-2", "other"); err != nil {
			t.Fatalf("create: %v", err)
		}

		n, err := s.CountActivations(ctx, "pk-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 activations, got %d", n)
		}
		if n, _ := s.CountActivations(ctx, "pk-none"); n != 0 {
			t.Errorf("expected 0 activations for unknown key, got %d", n)
		}
	})

	t.Run("AtomicallySerializesCountAndInsert", func(t *testing.T) {
		const quota = 3
		s := newStore(t, ProductKey{ID: "pk-1", KeyString: "KEY-1", MaxActivations: quota, IsActive: true})

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Atomically(context.Background(), func(ctx context.Context, q Queries) error {
					k, err := q.FindKeyByString(ctx, "KEY-1")
					if err != nil {
						return err
					}
					n, err := q.CountActivations(ctx, k.ID)
					if err != nil {
						return err
					}
					if n >= k.MaxActivations {
						return nil
					}
					_, err = q.CreateActivation(ctx, k.ID, fmt.Sprintf("m-%d", i))
					return err
				})
				if err != nil {
					t.Errorf("atomically: %v", err)
				}
			}(i)
		}
		wg.Wait()

		n, err := s.CountActivations(context.Background(), "pk-1")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != quota {
			t.Errorf("expected exactly %d activations, got %d", quota, n)
		}
	})

	t.Run("AtomicallyReturnsFnError", func(t *testing.T) {
		s := newStore(t)
		want := errors.New("boom")
		err := s.Atomically(context.Background(), func(context.Context, Queries) error { return want })
		if !errors.Is(err, want) {
			t.Errorf("expected fn error, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
