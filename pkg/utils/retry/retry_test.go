package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opst/sealparams/pkg/utils/retry"
)

func TestBlocking(t *testing.T) {
	noWait := func(context.Context) error { return nil }

	t.Run("it calls f until f returns nil", func(t *testing.T) {
		calls := 0
		actual, err := retry.Blocking(context.Background(), noWait, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, fmt.Errorf("%w: not yet", retry.ErrRetry)
			}
			return 42, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if actual != 42 || calls != 3 {
			t.Errorf("unexpected result: (value, calls) = (%d, %d)", actual, calls)
		}
	})

	t.Run("it stops at an error which is not ErrRetry", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		calls := 0
		_, err := retry.Blocking(context.Background(), noWait, func() (int, error) {
			calls++
			return 0, expectedErr
		})
		if !errors.Is(err, expectedErr) || calls != 1 {
			t.Errorf("unexpected result: (err, calls) = (%v, %d)", err, calls)
		}
	})

	t.Run("it stops when backoff is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := retry.Blocking(ctx, retry.ExponentialBackoff(time.Hour, 2), func() (int, error) {
			calls++
			return 0, retry.ErrRetry
		})
		if !errors.Is(err, context.Canceled) || calls != 1 {
			t.Errorf("unexpected result: (err, calls) = (%v, %d)", err, calls)
		}
	})
}

func TestExponentialBackoff(t *testing.T) {
	backoff := retry.ExponentialBackoff(5*time.Millisecond, 2)

	begin := time.Now()
	for range 3 {
		if err := backoff(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// 5 + 10 + 20
	if elapsed := time.Since(begin); elapsed < 35*time.Millisecond {
		t.Errorf("backoff is too short: %s", elapsed)
	}
}

func TestGo(t *testing.T) {
	t.Run("it delivers the result", func(t *testing.T) {
		r := <-retry.Go(context.Background(), nil, func() (string, error) { return "done", nil })
		if r.Err != nil || r.Value != "done" {
			t.Errorf("unexpected result: %+v", r)
		}
	})

	t.Run("it delivers a panic as an error", func(t *testing.T) {
		ch := retry.Go(context.Background(), nil, func() (string, error) { panic(errors.New("boom")) })
		r := <-ch
		if r.Err == nil || r.Err.Error() != "boom" {
			t.Errorf("unexpected result: %+v", r)
		}
		if _, ok := <-ch; ok {
			t.Error("channel is not closed")
		}
	})
}
