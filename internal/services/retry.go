package services

import (
	"context"
	"errors"
	"fmt"
)

// withRetry runs fn and, when it lost a lock race, runs it exactly once more.
// fn must leave no partial state behind when it fails.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, errContention) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err = fn(); errors.Is(err, errContention) {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}
