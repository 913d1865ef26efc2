package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	fetch := func(ctx context.Context) ([]string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return []string{"old"}, nil
		}
		return []string{"new", "newer"}, nil
	}

	var rendered [][]string
	p := NewPoller(fetch, func(v []string) { rendered = append(rendered, v) })

	slow := make(chan bool)
	go func() {
		applied, err := p.Poll(context.Background())
		assert.NoError(t, err)
		slow <- applied
	}()
	<-started

	applied, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)

	close(release)
	assert.False(t, <-slow)

	state, seq := p.State()
	assert.Equal(t, []string{"new", "newer"}, state)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, [][]string{{"new", "newer"}}, rendered)
}

func TestPollerReplacesState(t *testing.T) {
	values := [][]int{{1, 2}, {3}}
	i := 0
	p := NewPoller(func(context.Context) ([]int, error) {
		v := values[i]
		i++
		return v, nil
	}, nil)

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	_, err = p.Poll(context.Background())
	require.NoError(t, err)

	state, _ := p.State()
	assert.Equal(t, []int{3}, state)
}

func TestPollerErrorKeepsState(t *testing.T) {
	fail := false
	p := NewPoller(func(context.Context) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return "ok", nil
	}, nil)

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	fail = true
	_, err = p.Poll(context.Background())
	assert.Error(t, err)

	state, seq := p.State()
	assert.Equal(t, "ok", state)
	assert.Equal(t, uint64(1), seq)
}

func TestPollerRunUsesTicks(t *testing.T) {
	var mu sync.Mutex
	count := 0
	polled := make(chan int, 10)
	p := NewPoller(func(context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		count++
		polled <- count
		return count, nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time)
	done := make(chan error)
	go func() { done <- p.Run(ctx, ticks) }()

	<-polled
	ticks <- time.Now()
	<-polled
	ticks <- time.Now()
	<-polled

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, seq := p.State()
	assert.Equal(t, uint64(3), seq)
}

func TestPollerRunReportsErrors(t *testing.T) {
	errs := make(chan error, 1)
	p := NewPoller(func(context.Context) (int, error) {
		return 0, errors.New("offline")
	}, nil)
	p.OnError = func(err error) { errs <- err }

	ticks := make(chan time.Time)
	close(ticks)
	require.NoError(t, p.Run(context.Background(), ticks))
	assert.EqualError(t, <-errs, "offline")
}
