package shutdown

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	handler := NewHandler(zaptest.NewLogger(t), time.Second)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		handler.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	handler.Shutdown(context.Background())

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestShutdownContinuesPastErrors(t *testing.T) {
	handler := NewHandler(zaptest.NewLogger(t), time.Second)

	var closed []string
	handler.AddFunc("ok", func() error {
		closed = append(closed, "ok")
		return nil
	})
	handler.AddFunc("broken", func() error {
		closed = append(closed, "broken")
		return fmt.Errorf("close failed")
	})

	handler.Shutdown(context.Background())

	assert.Equal(t, []string{"broken", "ok"}, closed)
}

func TestShutdownTimeoutSkipsHungService(t *testing.T) {
	handler := NewHandler(zaptest.NewLogger(t), time.Second)

	var reached bool
	handler.AddFunc("fast", func() error {
		reached = true
		return nil
	})
	handler.AddFunc("hung", func() error {
		time.Sleep(10 * time.Second)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		handler.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not respect the deadline")
	}
	assert.True(t, reached, "later services still close after a timeout")
}
