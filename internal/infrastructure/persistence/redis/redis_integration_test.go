//go:build integration

package redis

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/testutil"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	addr := testutil.RedisAddr(t)

	cfg := DefaultConfig()
	host, port := splitAddr(t, addr)
	cfg.Host = host
	cfg.Port = port

	cache, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCertificateCache_RoundTrip(t *testing.T) {
	cache := setupCache(t)
	certs := NewCertificateCache(cache, time.Minute, nil)
	ctx := context.Background()

	vid, err := certificate.NewVerificationID()
	require.NoError(t, err)

	_, ok, err := certs.Get(ctx, vid)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &certificate.Certificate{
		ID:             "row-1",
		VerificationID: vid,
		LearnerID:      "L1",
		CourseID:       "C1",
		Score:          85,
		IssuedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, certs.Set(ctx, want))

	got, ok, err := certs.Get(ctx, vid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Record(), got.Record())
	assert.Equal(t, "row-1", got.ID)

	ttl, err := cache.TTL(ctx, CertificateKey(vid))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCache_PublishSubscribe(t *testing.T) {
	cache := setupCache(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := cache.PSubscribe(ctx, PubSubChannel("*"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Publish(ctx, PubSubChannel("certificate.issued"), map[string]string{"k": "v"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, PubSubChannel("certificate.issued"), msg.Channel)
	assert.JSONEq(t, `{"k":"v"}`, msg.Payload)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
