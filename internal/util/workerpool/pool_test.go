package workerpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castordb/castor/internal/util/workerpool"
)

func TestPool_RunsJobs(t *testing.T) {
	p := workerpool.New(4, 8, nil)
	defer p.Stop()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(context.Context) error {
				ran.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), ran.Load())
	assert.Equal(t, uint64(20), p.Stats().Completed)
}

func TestPool_PropagatesJobError(t *testing.T) {
	p := workerpool.New(1, 1, nil)
	defer p.Stop()

	wantErr := errors.New("boom")
	err := p.Do(context.Background(), func(context.Context) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPool_RecoversPanic(t *testing.T) {
	p := workerpool.New(1, 1, nil)
	defer p.Stop()

	err := p.Do(context.Background(), func(context.Context) error { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// The worker survived the panic.
	assert.NoError(t, p.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	p := workerpool.New(1, 1, nil)
	defer p.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	go p.Do(context.Background(), func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started

	// Fill the single queue slot.
	go p.Do(context.Background(), func(context.Context) error { return nil })

	require.Eventually(t, func() bool {
		err := p.Do(context.Background(), func(context.Context) error { return nil })
		return err != nil
	}, time.Second, 5*time.Millisecond)

	close(block)
}

func TestPool_StopRejectsNewJobs(t *testing.T) {
	p := workerpool.New(1, 1, nil)
	p.Stop()

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, uint64(1), p.Stats().Rejected)
}

func TestPool_CanceledContext(t *testing.T) {
	p := workerpool.New(1, 1, nil)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
