package connectivity

import (
	"context"

	"github.com/aridosvaldez/aridos/internal/domain"
)

// BatchSubmitter replays queued operations against the backend in one call.
// The whole batch either succeeds or fails.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, ops []domain.PendingOperation) error
}

// Signal reports network reachability and its edges.
type Signal interface {
	Online() bool
	// Subscribe registers fn for reachability edges and returns a detach func.
	Subscribe(fn func(online bool)) (unsubscribe func())
}
