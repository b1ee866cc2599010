// Package kit provides the transport-agnostic endpoint abstraction: an
// operation is an Endpoint, middleware wraps Endpoints, and the transport
// adapters (MCP, HTTP) decode their wire formats into Endpoint calls.
package kit

import "context"

// Endpoint is a single transport-agnostic operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares outermost-first: Chain(a, b, c)(e) runs
// a before b before c before e.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}
