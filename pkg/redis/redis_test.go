package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Host:          "invalid-host-that-does-not-exist",
		Port:          9999,
		MaxRetries:    0,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   500 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, cfg)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, client.HealthCheck(context.Background()))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.Error(t, client.HealthCheck(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)
	ctx := context.Background()

	mock.ExpectSetNX("sweeper:lock", "owner-1", 30*time.Second).SetVal(true)
	ok, err := client.TryLock(ctx, "sweeper:lock", "owner-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX("sweeper:lock", "owner-2", 30*time.Second).SetVal(false)
	ok, err = client.TryLock(ctx, "sweeper:lock", "owner-2", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSetNX("sweeper:lock", "owner-3", 30*time.Second).SetErr(errors.New("timeout"))
	_, err = client.TryLock(ctx, "sweeper:lock", "owner-3", 30*time.Second)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlock_LoadsScriptOnce(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)
	ctx := context.Background()
	sha := computeSHA1(unlockScript)

	mock.ExpectScriptLoad(unlockScript).SetVal(sha)
	mock.ExpectEvalSha(sha, []string{"sweeper:lock"}, "owner-1").SetVal(int64(1))
	ok, err := client.Unlock(ctx, "sweeper:lock", "owner-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// cached SHA is reused, a foreign owner does not delete the key
	mock.ExpectEvalSha(sha, []string{"sweeper:lock"}, "owner-2").SetVal(int64(0))
	ok, err = client.Unlock(ctx, "sweeper:lock", "owner-2")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeSHA1(t *testing.T) {
	// SHA1 of the empty string
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", computeSHA1(""))
}
