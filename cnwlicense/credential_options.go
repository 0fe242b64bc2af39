package cnwlicense

import "time"

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithLifetime sets how long issued credentials stay valid. Default is 10 years.
func WithLifetime(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.lifetime = d
	}
}

// WithIssuerClock sets the time source used for issuance and verification.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFn = now
	}
}
