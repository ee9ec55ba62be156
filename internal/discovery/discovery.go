// Package discovery finds which of several candidate resource type names the remote store
// actually serves. Nothing is cached; every call probes again.
package discovery

import (
	"context"

	"onboarding-reconciler/internal/domain"
)

// Attempt is one probed candidate.
type Attempt struct {
	Name string
	Err  error
}

// Result is the first candidate that answered, the value its probe produced and every
// attempt made along the way.
type Result[T any] struct {
	Name  string
	Value T
	Trail []Attempt
}

// Tried lists the candidate names attempted, in order.
func (r Result[T]) Tried() []string {
	names := make([]string, 0, len(r.Trail))
	for _, a := range r.Trail {
		names = append(names, a.Name)
	}
	return names
}

// Probe issues a lightweight query against one candidate name.
type Probe[T any] func(ctx context.Context, name string) (T, error)

// Discover tries each candidate in order; the first probe that succeeds wins. When all fail,
// the returned error is a NotFoundError listing every candidate tried, and the Result still
// carries the full trail.
func Discover[T any](ctx context.Context, candidates []string, probe Probe[T]) (Result[T], error) {
	var res Result[T]
	if len(candidates) == 0 {
		return res, domain.NewNotFoundError("resource type", "")
	}
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		value, err := probe(ctx, name)
		res.Trail = append(res.Trail, Attempt{Name: name, Err: err})
		if err == nil {
			res.Name = name
			res.Value = value
			return res, nil
		}
		if ctx.Err() != nil {
			return res, err
		}
	}
	return res, domain.NewNotFoundError("resource type", "", res.Tried()...)
}
