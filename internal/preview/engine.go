package preview

import (
	"context"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

// Engine computes a calculation preview, locally or across a network boundary.
type Engine interface {
	Calculate(ctx context.Context, req pricing.Request) (pricing.Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req pricing.Request) (pricing.Result, error)

// Calculate implements Engine.
func (f EngineFunc) Calculate(ctx context.Context, req pricing.Request) (pricing.Result, error) {
	return f(ctx, req)
}

// LocalEngine prices in-process with the same engine the server uses.
type LocalEngine struct {
	Engine pricing.Engine
}

// Calculate implements Engine.
func (l LocalEngine) Calculate(ctx context.Context, req pricing.Request) (pricing.Result, error) {
	if err := ctx.Err(); err != nil {
		return pricing.Result{}, err
	}
	return pricing.NewEngine(l.Engine.TaxBps).Calculate(req), nil
}
