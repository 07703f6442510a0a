package threads

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/threadkit/errors"
)

func newTestSpawner(opts ...Option) *Spawner {
	return NewSpawner(append([]Option{WithRegistry(NewRegistry())}, opts...)...)
}

func TestHandle_JoinTimeoutThenRejoin(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})

	h, err := Spawn(sp, "slow", "slow", func(*Scope) (string, error) {
		<-release
		return "done", nil
	})
	require.NoError(t, err)

	_, err = h.Join(20 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, errors.IsTransient(err))
	assert.True(t, h.Running(), "timeout leaves the thread running")
	_, registered := sp.Registry().Get(h.ID())
	assert.True(t, registered, "timeout leaves the thread registered")

	close(release)
	v, err := h.Join(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestHandle_JoinNonPositiveTimeout(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})
	h, err := Spawn(sp, "t", "t", func(*Scope) (int, error) {
		<-release
		return 1, nil
	})
	require.NoError(t, err)

	_, err = h.Join(0)
	assert.True(t, IsTimeout(err))

	close(release)
	<-h.Done()
	v, err := h.Join(0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestHandle_AlreadyJoined(t *testing.T) {
	sp := newTestSpawner()
	h, err := Spawn(sp, "once", "once", func(*Scope) (int, error) { return 7, nil })
	require.NoError(t, err)

	v, err := h.JoinForever()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = h.Join(time.Second)
	assert.True(t, IsAlreadyJoined(err))
	assert.Zero(t, v)
	assert.True(t, errors.IsPermanent(err))

	_, err = h.JoinForever()
	assert.True(t, IsAlreadyJoined(err))
}

func TestHandle_JoinForeverStopsRunning(t *testing.T) {
	sp := newTestSpawner()
	h, err := Spawn(sp, "bounded", "bounded", func(s *Scope) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 99, nil
	})
	require.NoError(t, err)

	v, err := h.JoinForever()
	require.NoError(t, err)
	assert.Equal(t, 99, v)
	assert.False(t, h.Running())
	assert.False(t, h.Status().Running)
}

func TestHandle_BodyErrorReturnedUnchanged(t *testing.T) {
	sp := newTestSpawner()
	sentinel := stderrors.New("disk full")
	h, err := Spawn(sp, "e", "e", func(*Scope) (int, error) { return 3, sentinel })
	require.NoError(t, err)

	v, err := h.JoinForever()
	assert.Same(t, sentinel, err)
	assert.Equal(t, 3, v)
}

func TestHandle_BodyTimeoutErrorIsNotJoinTimeout(t *testing.T) {
	sp := newTestSpawner()
	bodyErr := errors.New(errors.ErrCodeTimeout, "upstream timed out")
	h, err := Spawn(sp, "relay", "relay", func(*Scope) (int, error) { return 0, bodyErr })
	require.NoError(t, err)
	<-h.Done()

	_, err = h.Join(time.Second)
	assert.Same(t, bodyErr, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout), "body error keeps its code")
	assert.False(t, IsTimeout(err), "finished thread is not a join timeout")
	assert.False(t, h.Running())

	_, err = h.Join(time.Second)
	assert.True(t, IsAlreadyJoined(err))
}

func TestHandle_BodyPanicCodedErrorIsNotPanic(t *testing.T) {
	sp := newTestSpawner()
	bodyErr := errors.New(errors.ErrCodePanic, "worker crashed earlier")
	h, err := Spawn(sp, "reporter", "reporter", func(*Scope) (int, error) { return 0, bodyErr })
	require.NoError(t, err)

	_, err = h.JoinForever()
	assert.Same(t, bodyErr, err)
	assert.False(t, IsPanic(err))
	_, ok := PanicValue(err)
	assert.False(t, ok)
}

func TestHandle_BodyAlreadyJoinedCodeIsNotAlreadyJoined(t *testing.T) {
	sp := newTestSpawner()
	bodyErr := errors.New(errors.ErrCodeAlreadyJoined, "child result gone")
	h, err := Spawn(sp, "parent", "parent", func(*Scope) (int, error) { return 0, bodyErr })
	require.NoError(t, err)

	_, err = h.JoinForever()
	assert.False(t, IsAlreadyJoined(err))
}

func TestHandle_Panic(t *testing.T) {
	sp := newTestSpawner()

	other, err := Spawn(sp, "bystander", "b", func(s *Scope) (int, error) {
		s.WaitForShutdown(5 * time.Second)
		return 5, nil
	})
	require.NoError(t, err)

	h, err := Spawn(sp, "crash", "crash", func(*Scope) (int, error) {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = h.Join(2 * time.Second)
	require.Error(t, err)
	assert.True(t, IsPanic(err))
	val, ok := PanicValue(err)
	require.True(t, ok)
	assert.Equal(t, "boom", val)

	var pe *PanicError
	require.True(t, stderrors.As(err, &pe))
	assert.Contains(t, string(pe.Stack), "goroutine")

	te := errors.AsThreadError(err)
	require.NotNil(t, te)
	assert.Equal(t, errors.CategoryInternal, te.Category())

	assert.True(t, other.Running(), "other threads unaffected")
	other.RequestShutdown()
	v, err := other.Join(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestHandle_PanicWithError(t *testing.T) {
	sp := newTestSpawner()
	cause := fmt.Errorf("invariant broken")
	h, err := Spawn(sp, "crash", "crash", func(*Scope) (struct{}, error) {
		panic(cause)
	})
	require.NoError(t, err)

	_, err = h.JoinForever()
	val, ok := PanicValue(err)
	require.True(t, ok)
	assert.Same(t, cause, val)
}

func TestHandle_RequestShutdownIdempotent(t *testing.T) {
	sp := newTestSpawner()
	var checks int
	h, err := Spawn(sp, "loop", "loop", func(s *Scope) (int, error) {
		for !s.WaitForShutdown(time.Second) {
		}
		checks++
		return checks, nil
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.RequestShutdown()
	}
	assert.True(t, h.ShutdownRequested())

	v, err := h.Join(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	h.RequestShutdown()
}

func TestHandle_JoinContext(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})
	defer close(release)
	h, err := Spawn(sp, "ctx", "ctx", func(*Scope) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.JoinContext(ctx)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = h.JoinContext(ctx)
	assert.True(t, errors.Is(err, errors.ErrCodeCanceled))
	assert.True(t, h.Running())
}

func TestHandle_JoinContextCompleted(t *testing.T) {
	h := Ready(11, nil)
	v, err := h.JoinContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, v)
}

func TestMap(t *testing.T) {
	sp := newTestSpawner()
	h, err := Spawn(sp, "m", "m", func(*Scope) (int, error) { return 21, nil })
	require.NoError(t, err)

	doubled := Map(h, func(v int) int { return v * 2 })
	label := Map(doubled, strconv.Itoa)

	assert.Equal(t, h.ID(), label.ID())
	assert.Equal(t, "m", label.Name())

	v, err := label.Join(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	_, err = h.Join(time.Second)
	assert.True(t, IsAlreadyJoined(err), "mapped handle shares the original's result")
}

func TestMap_Deferred(t *testing.T) {
	var calls int
	var mu sync.Mutex
	h := Ready(1, nil)
	m := Map(h, func(v int) int {
		mu.Lock()
		calls++
		mu.Unlock()
		return v
	})
	mu.Lock()
	assert.Zero(t, calls, "f must not run at map time")
	mu.Unlock()

	_, err := m.JoinForever()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMap_PassesThroughFailures(t *testing.T) {
	sp := newTestSpawner()

	crash, err := Spawn(sp, "crash", "crash", func(*Scope) (int, error) { panic(7) })
	require.NoError(t, err)
	called := false
	_, err = Map(crash, func(v int) int { called = true; return v }).JoinForever()
	assert.True(t, IsPanic(err))
	val, _ := PanicValue(err)
	assert.Equal(t, 7, val)
	assert.False(t, called)

	release := make(chan struct{})
	slow, err := Spawn(sp, "slow", "slow", func(*Scope) (int, error) {
		<-release
		return 1, nil
	})
	require.NoError(t, err)
	mapped := Map(slow, func(v int) int { return v + 1 })
	_, err = mapped.Join(10 * time.Millisecond)
	assert.True(t, IsTimeout(err))

	close(release)
	v, err := mapped.Join(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	bodyErr := stderrors.New("nope")
	_, err = Map(Ready(0, bodyErr), func(v int) int { return v }).JoinForever()
	assert.Same(t, bodyErr, err)
}

func TestMap_PanicInTransform(t *testing.T) {
	m := Map(Ready(0, nil), func(v int) int { return 10 / v })
	_, err := m.JoinForever()
	assert.True(t, IsPanic(err))
}

func TestReady(t *testing.T) {
	h := Ready("x", nil)
	assert.False(t, h.Running())
	select {
	case <-h.Done():
	default:
		t.Fatal("Ready handle should be done")
	}

	v, err := h.Join(0)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	_, err = h.Join(0)
	assert.True(t, IsAlreadyJoined(err))
}
