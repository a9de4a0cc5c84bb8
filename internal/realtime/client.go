package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type SSEClient struct {
	ID       uuid.UUID
	OwnerID  string
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger
}
