package order

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// compensator undoes checkout side effects in reverse order. Inside a real
// database transaction the undo statements are rolled back together with
// the work they revert, so running them is harmless there.
type compensator struct {
	steps []compensation
}

func (c *compensator) add(name string, fn func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, fn: fn})
}

func (c *compensator) run(ctx context.Context) {
	lg := zctx.From(ctx)
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			lg.Warn("Compensation step failed",
				zap.String("step", step.name),
				zap.Error(err),
			)
		}
	}
	c.steps = nil
}
