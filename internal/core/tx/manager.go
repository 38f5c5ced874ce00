// Package tx provides transaction management abstractions.
// This package defines the interface that decouples the entity
// protocol from specific database implementations.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT and ROLLBACK; the active
// transaction travels in the context, so every gateway call made
// inside fn shares one flat transaction.
//
// The engine depends on this interface, not concrete implementations.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back and no
	// statement issued inside fn remains observable.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
