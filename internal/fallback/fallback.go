// Package fallback runs an ordered list of strategies and keeps the first
// one that succeeds. The tokenizer source chain and the device preference
// list are both expressed with it.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Attempt is a single named strategy.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ExhaustedError is returned when every attempt failed. Errs is in attempt
// order.
type ExhaustedError struct {
	Names []string
	Errs  []error
}

func (e *ExhaustedError) Error() string {
	if len(e.Errs) == 0 {
		return "no strategies to try"
	}
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = fmt.Sprintf("%s: %v", e.Names[i], err)
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error { return e.Errs }

// First runs attempts in order, each exactly once, and returns the first
// success along with its index. onFail, when non-nil, observes every
// failure before the next attempt starts. A cancelled context stops the
// chain between attempts.
func First[T any](ctx context.Context, attempts []Attempt[T], onFail func(name string, err error)) (T, int, error) {
	var zero T
	exhausted := &ExhaustedError{}
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, -1, err
		}
		v, err := a.Run(ctx)
		if err == nil {
			return v, i, nil
		}
		if onFail != nil {
			onFail(a.Name, err)
		}
		exhausted.Names = append(exhausted.Names, a.Name)
		exhausted.Errs = append(exhausted.Errs, err)
	}
	return zero, -1, exhausted
}

// Is reports whether err came from an exhausted chain.
func Is(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
