package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-aggregator/internal/fetcher"
)

type flakyFetcher struct {
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyFetcher) Fetch(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	if n := f.calls.Add(1); n <= f.failures {
		return fetcher.Response{}, f.err
	}
	return fetcher.Response{URL: req.URL, StatusCode: 200, Body: []byte("ok")}, nil
}

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

// TestPolicyShouldRetry classifies errors and caps attempts.
func TestPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{MaxAttempts: 3})
	boom := errors.New("503")
	require.False(t, p.ShouldRetry(nil, 1))
	require.True(t, p.ShouldRetry(boom, 1))
	require.True(t, p.ShouldRetry(boom, 2))
	require.False(t, p.ShouldRetry(boom, 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.False(t, p.ShouldRetry(fetcher.ErrNoFetcher, 1))
	require.True(t, p.ShouldRetry(timeoutErr{timeout: true}, 1))
	require.False(t, p.ShouldRetry(timeoutErr{timeout: false}, 1))
}

// TestPolicyBackoffBounds keeps delays within half to full of the capped
// exponential step.
func TestPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewPolicy(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})
	for i := 0; i < 20; i++ {
		d := p.Backoff(1)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.Less(t, d, 100*time.Millisecond)

		capped := p.Backoff(5)
		require.GreaterOrEqual(t, capped, 150*time.Millisecond)
		require.Less(t, capped, 300*time.Millisecond)
	}
}

// TestFetcherRetriesUntilSuccess recovers from transient failures.
func TestFetcherRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	next := &flakyFetcher{failures: 2, err: errors.New("503")}
	f := Wrap(next, NewPolicy(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}), nil)

	resp, err := f.Fetch(context.Background(), fetcher.Request{URL: "https://n.example"})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), resp.Body)
	require.Equal(t, int32(3), next.calls.Load())
}

// TestFetcherGivesUp returns the last error once attempts run out.
func TestFetcherGivesUp(t *testing.T) {
	t.Parallel()

	boom := errors.New("503")
	next := &flakyFetcher{failures: 10, err: boom}
	f := Wrap(next, NewPolicy(Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}), nil)

	_, err := f.Fetch(context.Background(), fetcher.Request{URL: "https://n.example"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), next.calls.Load())
}

// TestFetcherStopsOnCancel abandons the backoff when ctx ends.
func TestFetcherStopsOnCancel(t *testing.T) {
	t.Parallel()

	next := &flakyFetcher{failures: 10, err: errors.New("503")}
	f := Wrap(next, NewPolicy(Config{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, fetcher.Request{URL: "https://n.example"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), next.calls.Load())
}
