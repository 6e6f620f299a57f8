package background

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	runs atomic.Int64
}

func (c *countingCleaner) Cleanup(ctx context.Context) (int64, error) {
	c.runs.Add(1)
	return 1, nil
}

func TestCleanupManager(t *testing.T) {
	t.Run("runs immediately and again on each tick", func(t *testing.T) {
		cleaner := &countingCleaner{}
		cm := NewCleanupManager(cleaner, slog.New(slog.NewJSONHandler(io.Discard, nil)), 20*time.Millisecond)

		done := make(chan struct{})
		go func() {
			cm.Start(context.Background())
			close(done)
		}()

		assert.Eventually(t, func() bool {
			return cleaner.runs.Load() >= 2
		}, time.Second, 5*time.Millisecond)

		cm.Stop()
		<-done
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		cleaner := &countingCleaner{}
		cm := NewCleanupManager(cleaner, slog.New(slog.NewJSONHandler(io.Discard, nil)), time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			cm.Start(ctx)
			close(done)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("cleanup manager did not stop on context cancellation")
		}
		assert.EqualValues(t, 1, cleaner.runs.Load(), "only the startup run should have happened")
	})
}
