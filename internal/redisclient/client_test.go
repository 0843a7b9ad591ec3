package redisclient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/config"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestConnectBareAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), config.RedisConfig{URL: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), config.RedisConfig{})
	require.Error(t, err)
}
