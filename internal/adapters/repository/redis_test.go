package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := NewRedisStore(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	exerciseStore(t, s)

	assert.True(t, mr.Exists("cadence:u1|confidence"), "keys are namespaced")
	assert.Equal(t, time.Duration(0), mr.TTL("cadence:u1|confidence"))
	require.NoError(t, s.Close())
}

func TestRedisStoreOptions(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := NewRedisStoreWithClient(client, WithKeyPrefix("test:"), WithTTL(time.Hour))
	require.NoError(t, s.Save(ctx, "u2|temporal", []byte("blob")))

	got, err := mr.Get("test:u2|temporal")
	require.NoError(t, err)
	assert.Equal(t, "blob", got)
	assert.Equal(t, time.Hour, mr.TTL("test:u2|temporal"))

	mr.FastForward(2 * time.Hour)
	v, err := s.Load(ctx, "u2|temporal")
	require.NoError(t, err)
	assert.Nil(t, v, "expired checkpoints load as absent")
}

func TestRedisStoreErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))

	mr.SetError("ERR injected failure")
	_, err := s.Load(ctx, "k")
	assert.True(t, errors.Is(err, ErrLoad))
	assert.True(t, errors.Is(s.Save(ctx, "k", []byte("v")), ErrSave))

	mr.SetError("")
	mr.Close()
	_, err = NewRedisStore(ctx, mr.Addr(), "", 0)
	assert.Error(t, err)
}
