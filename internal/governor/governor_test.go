package governor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
)

func TestGovernor_Boundary(t *testing.T) {
	const max = 4
	g := New(max)

	permits := make([]*Permit, 0, max)
	for i := 0; i < max; i++ {
		p, err := g.Acquire()
		require.NoError(t, err)
		permits = append(permits, p)
	}
	assert.Equal(t, max, g.InUse())

	_, err := g.Acquire()
	assert.ErrorIs(t, err, apperr.ErrResourceExhausted)

	permits[0].Release()
	p, err := g.Acquire()
	require.NoError(t, err)
	assert.Equal(t, max, g.InUse())

	p.Release()
	for _, p := range permits[1:] {
		p.Release()
	}
	assert.Equal(t, 0, g.InUse())
}

func TestGovernor_ConcurrentAdmission(t *testing.T) {
	const max = 8
	g := New(max)

	hold := make(chan struct{})
	admitted := make(chan struct{}, max)
	var wg sync.WaitGroup
	for i := 0; i < max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Run(context.Background(), func(ctx context.Context) error {
				admitted <- struct{}{}
				<-hold
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < max; i++ {
		<-admitted
	}

	err := g.Run(context.Background(), func(context.Context) error {
		t.Fatal("unit of work admitted beyond the limit")
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrResourceExhausted)

	close(hold)
	wg.Wait()
	assert.Equal(t, 0, g.InUse())

	require.NoError(t, g.Run(context.Background(), func(context.Context) error { return nil }))
}

func TestPermit_ReleaseIdempotentAndRunsHooks(t *testing.T) {
	g := New(1)
	p, err := g.Acquire()
	require.NoError(t, err)

	var order []int
	p.OnRelease(func() { order = append(order, 1) })
	p.OnRelease(func() { order = append(order, 2) })

	p.Release()
	p.Release()
	assert.Equal(t, []int{2, 1}, order)
	assert.Equal(t, 0, g.InUse())

	ran := false
	p.OnRelease(func() { ran = true })
	assert.True(t, ran)
}

func TestPermit_PanickingHookStillFreesSlot(t *testing.T) {
	g := New(1)
	p, err := g.Acquire()
	require.NoError(t, err)
	p.OnRelease(func() { panic("hook failed") })

	assert.Panics(t, p.Release)
	assert.Equal(t, 0, g.InUse())

	again, err := g.Acquire()
	require.NoError(t, err)
	again.Release()
}

func TestRun_ReleasesOnFailure(t *testing.T) {
	g := New(1)
	boom := errors.New("boom")

	err := g.Run(context.Background(), func(ctx context.Context) error {
		p, ok := PermitFrom(ctx)
		require.True(t, ok)
		require.NotNil(t, p)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.InUse())
}

func TestRun_ReleasesOnPanic(t *testing.T) {
	g := New(1)
	assert.Panics(t, func() {
		_ = g.Run(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, 0, g.InUse())
}

func TestNew_MinimumOne(t *testing.T) {
	assert.Equal(t, 1, New(0).Max())
}
