package port

import "context"

// CacheRepository is the fast-path stock mirror and idempotency guard.
// The mirror is advisory: the database conditional adjustment stays the
// source of truth, the cache only sheds doomed requests early and dedupes
// retries.
type CacheRepository interface {
	// DecrementStock atomically decreases mirrored stock, returns false if insufficient
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock restores mirrored stock (rollback or cancellation)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// SetStock overwrites the mirrored stock value (startup sync)
	SetStock(ctx context.Context, productID string, quantity int) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
