package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCompensatorRunsNewestFirstAndSurvivesPanics(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	comp := newCompensator(time.Second, zap.New(core))

	var order []string
	comp.push("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	comp.push("second", func(ctx context.Context) error {
		order = append(order, "second")
		panic("boom")
	})
	comp.push("third", func(ctx context.Context) error {
		order = append(order, "third")
		return errors.New("unavailable")
	})

	failures := comp.run(context.Background())

	assert.Equal(t, []string{"third", "second", "first"}, order)
	require.Len(t, failures, 2)
	assert.Equal(t, "third", failures[0].Action)
	assert.Equal(t, "second", failures[1].Action)
	assert.Contains(t, failures[1].Error(), "panic: boom")
	assert.Equal(t, 2, logs.FilterMessage("compensation failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("compensation completed").Len())
}

func TestCompensatorIgnoresCancelledParentAndTimesOut(t *testing.T) {
	comp := newCompensator(20*time.Millisecond, zap.NewNop())

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancelled bool
	comp.push("slow", func(ctx context.Context) error {
		sawCancelled = errors.Is(ctx.Err(), context.Canceled)
		<-ctx.Done()
		return ctx.Err()
	})

	failures := comp.run(parent)
	assert.False(t, sawCancelled)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], context.DeadlineExceeded)
}
