package engine

import (
	"context"

	"github.com/ahrav/go-assess/internal/domain"
)

// Request is one scoring call as seen by the middleware chain.
type Request struct {
	EvaluationID   string
	IdempotencyKey string
	Body           []byte
}

// Response is a successful scoring call.
type Response struct {
	StatusCode int
	Result     domain.ScoringResult
	Attempts   int
}

// Handler processes scoring requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// The first middleware is outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
