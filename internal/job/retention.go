package job

import (
	"context"
	"time"
)

// Sweeper removes finished executions older than a retention period.
type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int, error)
}

// RetentionTask adapts a Sweeper to a scheduler task.
func RetentionTask(s Sweeper, retention time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.Sweep(ctx, retention)
		return err
	}
}
