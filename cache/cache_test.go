package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type unitID struct{ name string }

func TestFillOnce(t *testing.T) {
	c := New[string]()
	u := &unitID{"f"}
	key := Key{Unit: u, Contract: Fingerprint("f", "int")}

	calls := 0
	fill := func() (string, error) {
		calls++
		return "code", nil
	}
	v, hit, err := c.GetOrFill(key, fill)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "code", v)

	v, hit, err = c.GetOrFill(key, fill)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "code", v)
	require.Equal(t, 1, calls)

	// Same unit, different contract.
	_, hit, err = c.GetOrFill(Key{Unit: u, Contract: Fingerprint("f", "float")}, fill)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, c.Len())
}

func TestFailedFillIsNotStored(t *testing.T) {
	c := New[int]()
	key := Key{Unit: &unitID{"g"}}
	boom := errors.New("boom")

	_, _, err := c.GetOrFill(key, func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	_, ok := c.Get(key)
	require.False(t, ok)

	v, hit, err := c.GetOrFill(key, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 7, v)

	s := c.Stats()
	require.Equal(t, int64(2), s.Fills)
	require.Equal(t, int64(1), s.Failed)
}

func TestConcurrentRequestsShareOneFill(t *testing.T) {
	c := New[*unitID]()
	key := Key{Unit: &unitID{"h"}, Contract: 1}

	var fills atomic.Int32
	release := make(chan struct{})
	fill := func() (*unitID, error) {
		fills.Add(1)
		<-release
		return &unitID{"result"}, nil
	}

	const n = 16
	results := make([]*unitID, n)
	var started, done sync.WaitGroup
	for i := 0; i < n; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			v, _, err := c.GetOrFill(key, fill)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	started.Wait()
	close(release)
	done.Wait()

	require.Equal(t, int32(1), fills.Load())
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}

func TestFingerprintSeparatesParts(t *testing.T) {
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	require.Equal(t, Fingerprint("x", "y"), Fingerprint("x", "y"))
}
