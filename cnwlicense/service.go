package cnwlicense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CloudNativeWorks/cnw-license-server/cnwlicense/licensestore"
)

// Service applies the activation policy on top of a License Store and issues
// credentials for machines that are allowed to run.
type Service struct {
	store  licensestore.Store
	issuer *Issuer
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for activation events.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a new activation Service. A nil store or issuer is
// accepted; Activate then fails with ErrNotConfigured.
func NewService(store licensestore.Store, issuer *Issuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		issuer: issuer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "activation_service"))
	return s
}

// Ready reports whether the service can serve activations.
func (s *Service) Ready(ctx context.Context) error {
	if s.store == nil || s.issuer == nil {
		return ErrNotConfigured
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

// Activate binds machineID to productKey and returns a signed credential:
//  1. Looks up the key; unknown and disabled keys both fail with ErrKeyNotFound
//  2. Looks up any activation already held by machineID, under any key
//  3. Counts the key's activations
//  4. Fails with ErrQuotaExceeded if the key is full and the machine holds no
//     activation. A machine that already holds one skips the quota check, even
//     if its activation belongs to a different key.
//  5. Records a new activation if the machine holds none
//  6. Issues a credential for machineID and the presented productKey
//
// Steps 1-5 run inside Store.Atomically, so concurrent activations of one key
// cannot overrun its quota.
func (s *Service) Activate(ctx context.Context, productKey, machineID string) (*ActivateResult, error) {
	if s.store == nil || s.issuer == nil {
		return nil, ErrNotConfigured
	}
	if productKey == "" || machineID == "" {
		return nil, ErrInvalidRequest
	}

	var created bool
	err := s.store.Atomically(ctx, func(ctx context.Context, q licensestore.Queries) error {
		key, err := q.FindKeyByString(ctx, productKey)
		if errors.Is(err, licensestore.ErrNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("find key: %w", err)
		}
		if !key.IsActive {
			return ErrKeyNotFound
		}

		existing, err := q.FindActivationByMachine(ctx, machineID)
		if err != nil && !errors.Is(err, licensestore.ErrNotFound) {
			return fmt.Errorf("find activation: %w", err)
		}

		count, err := q.CountActivations(ctx, key.ID)
		if err != nil {
			return fmt.Errorf("count activations: %w", err)
		}

		if existing != nil {
			if existing.ProductKeyID != key.ID {
				s.logger.InfoContext(ctx, "machine already activated under another key",
					slog.String("machine_id", machineID),
					slog.String("activation_key_id", existing.ProductKeyID),
					slog.String("presented_key_id", key.ID),
				)
			}
			return nil
		}
		if count >= key.MaxActivations {
			return ErrQuotaExceeded
		}

		if _, err := q.CreateActivation(ctx, key.ID, machineID); err != nil {
			return err
		}
		created = true
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, licensestore.ErrConflict):
		// Another request activated this machine first; it now holds an
		// activation, so it is treated like any repeat activation.
		s.logger.WarnContext(ctx, "concurrent activation for machine, treating as repeat",
			slog.String("machine_id", machineID),
		)
	default:
		return nil, err
	}

	credential, claims, err := s.issuer.Issue(machineID, productKey)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.InfoContext(ctx, "machine activated", slog.String("machine_id", machineID))
	}
	return &ActivateResult{
		Credential: credential,
		Claims:     claims,
		Created:    created,
	}, nil
}
