// internal/browser/context_utils_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type ctxKey string
	const key ctxKey = "tab"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "target")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "target", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledByOperation", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		cancelOp()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			100*time.Millisecond, 5*time.Millisecond)
	})

	t.Run("CarriesOperationDeadline", func(t *testing.T) {
		deadline := time.Now().Add(30 * time.Millisecond)
		op, cancelOp := context.WithDeadline(context.Background(), deadline)
		defer cancelOp()

		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, deadline, got, time.Millisecond)

		<-combined.Done()
	})

	t.Run("CancelDoesNotAffectPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		defer cancelPrimary()

		combined, cancel := CombineContext(primary, context.Background())
		cancel()
		assert.Error(t, combined.Err())
		assert.NoError(t, primary.Err())
	})
}
