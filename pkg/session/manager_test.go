package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/memory"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, session.NewManager(memory.NewStore()))
}

func TestManager_SerializesReadModifyWrite(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()
	id := "race-test"
	require.NoError(t, mgr.Save(ctx, id, domain.NewCheckpoint(id, "a", domain.NewState(nil))))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, id, func(ctx context.Context) error {
				cp, err := mgr.Store().Load(ctx, id)
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				cp.Step++
				return mgr.Store().Save(ctx, id, cp)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cp, err := mgr.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 20, cp.Step, "no increment may be lost")
}

type countingLocker struct {
	locks   atomic.Int32
	unlocks atomic.Int32
	fail    bool
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail {
		return nil, errors.New("unavailable")
	}
	l.locks.Add(1)
	return func(ctx context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, "r", domain.NewCheckpoint("r", "a", domain.NewState(nil))))
	_, err := mgr.Load(ctx, "r")
	require.NoError(t, err)

	assert.Equal(t, int32(2), locker.locks.Load())
	assert.Equal(t, int32(2), locker.unlocks.Load())
}

func TestManager_LockerFailureSkipsFn(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(&countingLocker{fail: true}))

	called := false
	err := mgr.WithLock(context.Background(), "r", func(context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
