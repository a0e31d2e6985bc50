package live

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueryReadAfterWrite(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var rows atomic.Int64
	var runs atomic.Int64

	q := NewQuery[int64](bus, func(ctx context.Context) (int64, error) {
		runs.Add(1)
		return rows.Load(), nil
	}, types.TableDevices)

	_, ok := q.Peek()
	assert.False(t, ok)

	v, err := q.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)

	// No write: cached.
	_, err = q.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs.Load())

	// Unrelated table: still cached.
	bus.Invalidate(types.TableMessages)
	_, err = q.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs.Load())

	rows.Store(5)
	bus.Invalidate(types.TableDevices)
	v, err = q.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
	assert.EqualValues(t, 2, runs.Load())

	peeked, ok := q.Peek()
	assert.True(t, ok)
	assert.EqualValues(t, 5, peeked)
}

func TestQueryWriteDuringRunForcesRerun(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var runs atomic.Int64

	q := NewQuery[int64](bus, func(ctx context.Context) (int64, error) {
		n := runs.Add(1)
		if n == 1 {
			bus.Invalidate(types.TableTasks)
		}
		return n, nil
	}, types.TableTasks)

	_, err := q.Current(context.Background())
	require.NoError(t, err)
	v, err := q.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestQueryErrorIsRetried(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var fail atomic.Bool
	fail.Store(true)

	q := NewQuery[string](bus, func(ctx context.Context) (string, error) {
		if fail.Load() {
			return "", types.Unavailable("list", assert.AnError)
		}
		return "ok", nil
	}, types.TableSites)

	_, err := q.Current(context.Background())
	assert.True(t, types.IsUnavailable(err))

	fail.Store(false)
	v, err := q.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWatchEmitsOnInvalidation(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var rows atomic.Int64
	q := NewQuery[int64](bus, func(ctx context.Context) (int64, error) {
		return rows.Load(), nil
	}, types.TableMessages)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := q.Watch(ctx)

	first := <-results
	require.NoError(t, first.Err)
	assert.EqualValues(t, 0, first.Value)

	rows.Store(3)
	bus.Invalidate(types.TableMessages)

	select {
	case r := <-results:
		assert.EqualValues(t, 3, r.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no result after invalidation")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-results
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeFiltersTables(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch, cancel := bus.Subscribe(types.TableUsers)
	defer cancel()

	bus.Invalidate(types.TableLabs)
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	default:
	}

	bus.Invalidate(types.TableUsers, types.TableGroups)
	select {
	case tables := <-ch:
		assert.Contains(t, tables, types.TableUsers)
	default:
		t.Fatal("missing notification")
	}
}

func TestPollerInvalidatesOnInterval(t *testing.T) {
	bus := NewBus(zap.NewNop())
	p := NewPoller(bus, 10*time.Millisecond, []types.Table{types.TableMessages}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return bus.Versions(types.TableMessages)[types.TableMessages] >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisRelayBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func() (*Bus, *RedisRelay) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bus := NewBus(zap.NewNop())
		relay := NewRedisRelay(client, "test:invalidations", bus, zap.NewNop())
		require.NoError(t, relay.Run(ctx))
		return bus, relay
	}

	busA, relayA := newInstance()
	busB, relayB := newInstance()
	assert.NotEqual(t, relayA.InstanceID(), relayB.InstanceID())

	busA.Invalidate(types.TableDevices)

	require.Eventually(t, func() bool {
		return busB.Versions(types.TableDevices)[types.TableDevices] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Own messages are ignored and remote ones are not echoed back.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, busA.Versions(types.TableDevices)[types.TableDevices])
}
