package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Shutdown must drain the worker pool before the reader closes; a hang or a
// panic here means workers raced the reader teardown.
func TestStartDrainsWorkersOnCancel(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "test-group", "orders", 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(context.Context, kafka.Message) error { return nil })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
