package request

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable record of every request. CompareAndSetStatus is the
// only way to change a stored request.
type Store interface {
	// Create persists r. A nil r.ID is replaced by a fresh id; an id that
	// already exists fails with DuplicateId.
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// ListBySubmitter and ListByStatus order newest first, ties by id, and
	// return the total match count ignoring Limit and Offset. An empty
	// status matches every status.
	ListBySubmitter(ctx context.Context, submitter string, opts ListOptions) ([]*Request, int, error)
	ListByStatus(ctx context.Context, status Status, opts ListOptions) ([]*Request, int, error)
	// CompareAndSetStatus moves id from expected to next and records the
	// reviewer. It fails with NotFound when id does not exist and with
	// InvalidStateTransition, carrying the stored record, when the current
	// status is not expected.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, reviewer, notes string) (*Request, error)
}
