package bus

import (
	"context"

	"github.com/yungbote/narrativeforge-backend/internal/realtime"
)

// Bus fans SSE messages out across API and worker processes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
