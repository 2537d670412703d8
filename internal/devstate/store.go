// Package devstate reads plant state snapshots and applies device
// commands against them with at-least-once-safe semantics.
package devstate

import (
	"context"
	"errors"

	"github.com/alphaq-labs/helixr/internal/domain"
)

// ErrNoDocument is returned when the state store holds no snapshot yet.
var ErrNoDocument = errors.New("no state document found")

// Store is the external document store holding plant snapshots.
type Store interface {
	// Latest returns the most recently timestamped snapshot, or
	// ErrNoDocument when the store is empty.
	Latest(ctx context.Context) (*domain.StateDocument, error)

	// SetActuator sets one device's actuator value on the document with
	// the given immutable id and returns the number of documents
	// modified. The update is scoped to docID, not "whatever is latest
	// now", so a snapshot inserted by a concurrent producer between the
	// read and the write is never overwritten from a stale read.
	SetActuator(ctx context.Context, docID string, device, value int) (int64, error)

	// Insert stores a new snapshot.
	Insert(ctx context.Context, doc *domain.StateDocument) error

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
