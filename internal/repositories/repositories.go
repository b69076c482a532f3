// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotifier/internal/shared"
)

const (
	conflictRetries = 5
	conflictBackoff = 10 * time.Millisecond
)

// withConflictRetry runs op until it succeeds, fails with a non-conflict error, or the retry budget is spent.
//
// Busy or locked databases and lost insert races surface as [shared.ErrStoreConflict] only after every retry.
func withConflictRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := range conflictRetries {
		if err = op(); err == nil || !shared.IsConflict(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * conflictBackoff):
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrStoreConflict, err)
}

// placeholders returns "?, ?, ..." with n markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// args converts a string slice into query arguments.
func args(values ...[]string) []any {
	var out []any
	for _, vs := range values {
		for _, v := range vs {
			out = append(out, v)
		}
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
