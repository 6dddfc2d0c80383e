package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockClient struct {
	held     map[string]interface{}
	setErr   error
	released []string
}

func (f *fakeLockClient) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.held[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = value
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if f.held[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.held, keys[0])
	f.released = append(f.released, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestRunLock_AcquireRelease(t *testing.T) {
	client := &fakeLockClient{held: map[string]interface{}{}}
	l := NewRunLock(client, "reminders:dispatch", time.Minute)
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "someone-else"))
	assert.Empty(t, client.released)

	require.NoError(t, l.Release(ctx, token))
	assert.Equal(t, []string{"reminders:dispatch"}, client.released)

	_, ok, err = l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_AcquireError(t *testing.T) {
	client := &fakeLockClient{held: map[string]interface{}{}, setErr: errors.New("i/o timeout")}
	l := NewRunLock(client, "reminders:dispatch", time.Minute)

	_, ok, err := l.Acquire(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "i/o timeout")
}
