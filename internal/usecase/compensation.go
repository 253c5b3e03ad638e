package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type compensation struct {
	action string
	run    func(ctx context.Context) error
}

// compensator collects undo actions as saga steps succeed and replays them in
// reverse order.
type compensator struct {
	actions []compensation
	timeout time.Duration
	logger  *zap.Logger
}

func newCompensator(timeout time.Duration, logger *zap.Logger) *compensator {
	return &compensator{timeout: timeout, logger: logger}
}

func (c *compensator) push(action string, run func(ctx context.Context) error) {
	c.actions = append(c.actions, compensation{action: action, run: run})
}

func (c *compensator) empty() bool {
	return len(c.actions) == 0
}

// run executes every action, newest first. A failing action does not stop the
// ones after it.
func (c *compensator) run(ctx context.Context) []domain.CompensationFailure {
	var failures []domain.CompensationFailure
	for i := len(c.actions) - 1; i >= 0; i-- {
		a := c.actions[i]
		if err := c.runOne(ctx, a); err != nil {
			c.logger.Error("compensation failed",
				zap.String("action", a.action),
				zap.Error(err),
			)
			failures = append(failures, domain.CompensationFailure{Action: a.action, Err: err})
			continue
		}
		c.logger.Info("compensation completed", zap.String("action", a.action))
	}
	return failures
}

func (c *compensator) runOne(ctx context.Context, a compensation) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.run(ctx)
}
