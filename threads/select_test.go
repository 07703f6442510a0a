package threads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/threadkit/errors"
)

func TestSelect_FirstToFinish(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})
	defer close(release)

	slow, err := Spawn(sp, "slow", "s", func(*Scope) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)
	fast, err := Spawn(sp, "fast", "s", func(*Scope) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "first", nil
	})
	require.NoError(t, err)

	i, err := Select(2*time.Second, slow, fast)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	v, err := fast.Join(0)
	require.NoError(t, err, "select does not consume the result")
	assert.Equal(t, "first", v)
}

func TestSelect_Timeout(t *testing.T) {
	sp := newTestSpawner()
	release := make(chan struct{})
	defer close(release)

	h, err := Go(sp, "blocked", "b", func(*Scope) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	i, err := Select(10*time.Millisecond, h)
	assert.Equal(t, -1, i)
	assert.True(t, IsTimeout(err))

	i, err = Select(0, h)
	assert.Equal(t, -1, i)
	assert.True(t, IsTimeout(err))
}

func TestSelect_NonBlockingReady(t *testing.T) {
	i, err := Select(0, Ready(1, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}

func TestSelect_Empty(t *testing.T) {
	i, err := Select(time.Second)
	assert.Equal(t, -1, i)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
