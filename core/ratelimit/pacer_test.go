package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowFirstRequest(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Window: 50 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	d := p.Allow("p1", "normative")
	assert.True(t, d.Allowed)
	assert.Zero(t, d.WaitTime)
}

func TestRejectInsideWindow(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Window: time.Second})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Allow("p1", "normative").Allowed)

	d := p.Allow("p1", "normative")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.WaitTime, time.Duration(0))
	assert.LessOrEqual(t, d.WaitTime, time.Second)
}

func TestAllowAfterWindow(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Window: 20 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Allow("p1", "test").Allowed)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, p.Allow("p1", "test").Allowed)
}

func TestKeysIndependent(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Window: time.Second})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Allow("p1", "normative").Allowed)

	// Different session, same participant.
	assert.True(t, p.Allow("p1", "informative").Allowed)
	// Different participant, same session.
	assert.True(t, p.Allow("p2", "normative").Allowed)
	// Original pair is still inside its window.
	assert.False(t, p.Allow("p1", "normative").Allowed)
}
