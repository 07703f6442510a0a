package threads

import (
	"bytes"
	"context"
	stderrors "errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
)

type recordingMetrics struct {
	mu       sync.Mutex
	spawned  map[string]int
	exited   map[Outcome]int
	timeouts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		spawned:  make(map[string]int),
		exited:   make(map[Outcome]int),
		timeouts: make(map[string]int),
	}
}

func (m *recordingMetrics) ThreadSpawned(shortName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawned[shortName]++
}

func (m *recordingMetrics) ThreadExited(shortName string, outcome Outcome, lifetime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exited[outcome]++
}

func (m *recordingMetrics) JoinTimedOut(shortName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[shortName]++
}

// --- Unit Tests ---

func TestSpawn_RegistryPresenceWindow(t *testing.T) {
	reg := NewRegistry()
	sp := NewSpawner(WithRegistry(reg))
	assert.Same(t, reg, sp.Registry())
	assert.Equal(t, 0, reg.Len())

	release := make(chan struct{})
	h, err := Spawn(sp, "window", "window", func(*Scope) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 1, "exactly one entry while running")
	assert.Equal(t, h.ID(), snap[0].ID)
	assert.True(t, snap[0].Running)
	assert.Equal(t, 1, sp.Live())

	close(release)
	_, err = h.JoinForever()
	require.NoError(t, err)

	_, ok := reg.Get(h.ID())
	assert.False(t, ok, "removed before the completion signal fires")
	assert.Equal(t, 0, sp.Live())
}

func TestSpawn_UniqueIDs(t *testing.T) {
	sp := newTestSpawner()
	seen := make(map[uint64]bool)
	var handles []*Handle[struct{}]
	for i := 0; i < 20; i++ {
		h, err := Go(sp, "n", "n", func(*Scope) error { return nil })
		require.NoError(t, err)
		assert.False(t, seen[h.ID()])
		seen[h.ID()] = true
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.JoinForever()
		require.NoError(t, err)
	}
}

func TestSpawn_NilBody(t *testing.T) {
	sp := newTestSpawner()

	h, err := Spawn[int](sp, "nil", "nil", nil)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	g, err := Go(sp, "nil", "nil", nil)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, 0, sp.Registry().Len())
}

func TestSpawn_MaxThreads(t *testing.T) {
	sp := newTestSpawner(WithMaxThreads(2))
	events := sp.Registry().Watch()

	release := make(chan struct{})
	body := func(*Scope) error {
		<-release
		return nil
	}
	a, err := Go(sp, "a", "pool", body)
	require.NoError(t, err)
	b, err := Go(sp, "b", "pool", body)
	require.NoError(t, err)

	c, err := Go(sp, "c", "pool", body)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSpawnFailed))
	assert.True(t, errors.IsCategory(err, errors.CategoryResource))
	assert.Len(t, sp.Registry().Snapshot(), 2, "refused spawn is never registered")
	assert.Equal(t, 2, sp.Live())

	close(release)
	_, err = a.JoinForever()
	require.NoError(t, err)
	_, err = b.JoinForever()
	require.NoError(t, err)

	d, err := Go(sp, "d", "pool", func(*Scope) error { return nil })
	require.NoError(t, err, "capacity frees up as threads exit")
	_, err = d.JoinForever()
	require.NoError(t, err)

	var added, removed int
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, "c", ev.Status.Name, "watchers never see a refused spawn")
			if ev.Type == EventAdded {
				added++
			} else {
				removed++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 3, added)
	assert.Equal(t, 3, removed)
}

func TestSpawn_GoexitStillCompletes(t *testing.T) {
	m := newRecordingMetrics()
	sp := newTestSpawner(WithMetrics(m))

	h, err := Spawn(sp, "quitter", "quitter", func(*Scope) (int, error) {
		runtime.Goexit()
		return 1, nil
	})
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("completion signal never fired")
	}
	assert.False(t, h.Running())
	_, registered := sp.Registry().Get(h.ID())
	assert.False(t, registered)
	assert.Equal(t, 0, sp.Live())

	v, err := h.Join(time.Second)
	assert.Zero(t, v)
	require.Error(t, err)
	assert.True(t, IsPanic(err))
	assert.False(t, IsTimeout(err))
	_, ok := PanicValue(err)
	assert.False(t, ok, "Goexit carries no panic value")

	_, err = h.Join(time.Second)
	assert.True(t, IsAlreadyJoined(err))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.exited[OutcomePanic])
}

func TestSpawn_GoexitWithSelect(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})
	defer close(release)

	slow, err := Go(sp, "slow", "s", func(*Scope) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	quit, err := Go(sp, "quit", "q", func(*Scope) error {
		runtime.Goexit()
		return nil
	})
	require.NoError(t, err)

	idx, err := Select(2*time.Second, slow, quit)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestSpawn_ShutdownRequestLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New().WithComponent("threads")
	logger.SetOutput(&buf)
	logger.SetLevel(logging.LevelDebug)

	sp := newTestSpawner(WithLogger(logger))
	h, err := Go(sp, "stopper-0", "stopper", func(s *Scope) error {
		s.WaitForShutdown(5 * time.Second)
		return nil
	})
	require.NoError(t, err)

	h.RequestShutdown()
	h.RequestShutdown()
	Map(h, func(struct{}) int { return 0 }).RequestShutdown()
	_, err = h.Join(2 * time.Second)
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "shutdown_requested"))
	assert.Contains(t, out, "thread=stopper-0")
}

func TestGo(t *testing.T) {
	sp := newTestSpawner()
	sentinel := stderrors.New("failed")

	h, err := Go(sp, "g", "", func(s *Scope) error {
		s.Activity("working")
		return sentinel
	})
	require.NoError(t, err)
	assert.Equal(t, "g", h.ShortName(), "empty short name defaults to name")

	_, err = h.JoinForever()
	assert.Same(t, sentinel, err)
}

func TestSpawn_ContextCanceledOnExitAndShutdown(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	sp := newTestSpawner(WithContext(parent))

	ctxCh := make(chan context.Context, 1)
	h, err := Go(sp, "ctx", "ctx", func(s *Scope) error {
		ctxCh <- s.Context()
		<-s.Context().Done()
		return s.Context().Err()
	})
	require.NoError(t, err)

	ctx := <-ctxCh
	assert.NoError(t, ctx.Err())
	h.RequestShutdown()

	_, err = h.Join(2 * time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, ctx.Err())
}

func TestSpawn_ParentContextFlowsToScope(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	sp := newTestSpawner(WithContext(parent))

	h, err := Go(sp, "p", "p", func(s *Scope) error {
		<-s.Context().Done()
		return nil
	})
	require.NoError(t, err)

	cancelParent()
	_, err = h.Join(2 * time.Second)
	require.NoError(t, err)
	assert.False(t, h.ShutdownRequested(), "parent cancel is not a shutdown request")
}

func TestSpawn_Metrics(t *testing.T) {
	m := newRecordingMetrics()
	sp := newTestSpawner(WithMetrics(m))

	ok, err := Go(sp, "ok", "jobs", func(*Scope) error { return nil })
	require.NoError(t, err)
	bad, err := Go(sp, "bad", "jobs", func(*Scope) error { return stderrors.New("x") })
	require.NoError(t, err)
	crash, err := Go(sp, "crash", "jobs", func(*Scope) error { panic("p") })
	require.NoError(t, err)

	release := make(chan struct{})
	slow, err := Go(sp, "slow", "slow", func(*Scope) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	_, err = slow.Join(time.Millisecond)
	require.True(t, IsTimeout(err))
	close(release)

	for _, h := range []*Handle[struct{}]{ok, bad, crash, slow} {
		<-h.Done()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 3, m.spawned["jobs"])
	assert.Equal(t, 1, m.spawned["slow"])
	assert.Equal(t, 2, m.exited[OutcomeOK])
	assert.Equal(t, 1, m.exited[OutcomeError])
	assert.Equal(t, 1, m.exited[OutcomePanic])
	assert.Equal(t, 1, m.timeouts["slow"])
}

func TestSpawn_LogsLifecycleAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New().WithComponent("threads")
	logger.SetOutput(&buf)
	logger.SetLevel(logging.LevelDebug)

	sp := newTestSpawner(WithLogger(logger))
	h, err := Go(sp, "logged-0", "logged", func(*Scope) error { panic("x") })
	require.NoError(t, err)
	_, err = h.JoinForever()
	require.True(t, IsPanic(err))

	out := buf.String()
	assert.Contains(t, out, "thread_start")
	assert.Contains(t, out, "thread=logged-0")
	assert.Contains(t, out, "outcome=panic")
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.True(t, strings.HasPrefix(line, "DEBUG"), "core logs at debug only: %s", line)
	}
}

// TestSpawn_IngestScenario covers a cooperative worker that alternates
// between waiting and processing until asked to stop.
func TestSpawn_IngestScenario(t *testing.T) {
	sp := newTestSpawner()

	h, err := Spawn(sp, "ingest-0", "ingest", func(s *Scope) (int, error) {
		for !s.ShouldShutdown() {
			s.Activity("waiting")
			s.WaitForShutdown(50 * time.Millisecond)
			s.Activity("processing")
		}
		return 42, nil
	})
	require.NoError(t, err)

	time.Sleep(75 * time.Millisecond)
	snap := sp.Registry().Filter("ingest")
	require.Len(t, snap, 1)
	assert.Equal(t, "ingest-0", snap[0].Name)
	assert.Contains(t, []string{"waiting", "processing"}, snap[0].Activity)

	start := time.Now()
	h.RequestShutdown()
	v, err := h.Join(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Empty(t, sp.Registry().Filter("ingest"))
}
