package bus

import (
	"context"

	"github.com/yungbote/corrowatch-backend/internal/realtime"
)

// Bus forwards hub messages to other processes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

var (
	_ realtime.Transport = (*redisBus)(nil)
	_ realtime.Transport = (*pgBus)(nil)
)
