package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "submission:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = l.TryLock(ctx, "submission:1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = l.TryLock(ctx, "submission:2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "submission:1", "not-the-owner"))
	_, ok, _ = l.TryLock(ctx, "submission:1", time.Minute)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, "submission:1", token))
	_, ok, _ = l.TryLock(ctx, "submission:1", time.Minute)
	require.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocalLockerValidation(t *testing.T) {
	l := NewLocalLocker()
	_, _, err := l.TryLock(context.Background(), "", time.Second)
	require.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	require.ErrorIs(t, err, ErrInvalidTTL)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan string, 1)
	go func() {
		defer wg.Done()
		got, err := Acquire(ctx, l, "k", time.Minute, 5*time.Millisecond)
		if err == nil {
			acquired <- got
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Release(ctx, "k", token))
	wg.Wait()

	select {
	case got := <-acquired:
		require.NotEqual(t, token, got)
	default:
		t.Fatal("expected lock to be acquired after release")
	}
}

func TestAcquireHonorsCancel(t *testing.T) {
	l := NewLocalLocker()
	_, _, err := l.TryLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, l, "k", time.Minute, 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilRedisLocker(t *testing.T) {
	require.Nil(t, NewRedisLocker(nil, "p:"))
	var l *RedisLocker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	require.Error(t, err)
	require.NoError(t, l.Release(context.Background(), "k", "t"))
}
