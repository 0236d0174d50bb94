package errtax_test

import (
	"fmt"
	"testing"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want errtax.Category
	}{
		{fmt.Errorf("wrap: %w", errtax.ErrTransientProvider), errtax.CategoryTransientProvider},
		{fmt.Errorf("wrap: %w", errtax.ErrRateLimited), errtax.CategoryRateLimited},
		{errtax.ErrAuthRejected, errtax.CategoryAuth},
		{errtax.ErrLocked, errtax.CategoryLocked},
		{errtax.ErrCachePersist, errtax.CategoryCachePersist},
		{errtax.ErrCancelRequested, errtax.CategoryCancelled},
		{fmt.Errorf("boom"), errtax.CategoryUnknown},
	}
	for _, c := range cases {
		if got := errtax.Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !errtax.Retryable(errtax.CategoryTransientProvider) {
		t.Error("expected transient provider errors to be retryable")
	}
	if !errtax.Retryable(errtax.CategoryRateLimited) {
		t.Error("expected rate limited errors to be retryable")
	}
	if errtax.Retryable(errtax.CategoryPermanentProvider) {
		t.Error("did not expect permanent provider errors to be retryable")
	}
}
