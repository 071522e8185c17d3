package store

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/stretchr/testify/require"
)

func newTestPacket(t *testing.T, ts uint64) (zkey.PublicKey, *pkarr.SignedPacket) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k, err := zkey.FromBytes(pub)
	require.NoError(t, err)

	owner := dnswire.Join("_iroh_node", dnswire.Join(k.String(), dnswire.Root))
	msg := &dnswire.Message{Answers: []dnswire.Record{dnswire.NewTXT(owner, 30, "node=test")}}
	sp, err := pkarr.Encode(priv, k, ts, msg)
	require.NoError(t, err)
	return k, sp
}

func TestUpsertInsertThenStaleRejected(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key, first := newTestPacket(t, 1000)

	ok, err := s.Upsert(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	// build a distinct packet object with the same key but older timestamp
	_, stalePacket := newTestPacket(t, 999)
	stalePacket.PublicKey = key

	ok, err = s.Upsert(ctx, stalePacket)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), got.TimestampMicros)
}

func TestUpsertNewerAccepted(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := zkey.FromBytes(pub)
	require.NoError(t, err)
	owner := dnswire.Join("_iroh_node", dnswire.Join(key.String(), dnswire.Root))
	msg := &dnswire.Message{Answers: []dnswire.Record{dnswire.NewTXT(owner, 30, "node=test")}}
	first, err := pkarr.Encode(priv, key, 1000, msg)
	require.NoError(t, err)

	ok, err := s.Upsert(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	// Same key, newer timestamp: Get re-verifies the stored signature, so the
	// newer packet has to be signed by the same private key.
	second, err := pkarr.Encode(priv, key, 2000, msg)
	require.NoError(t, err)

	ok, err = s.Upsert(ctx, second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), got.TimestampMicros)
}

func TestGetUnknownKeyNotFound(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k, err := zkey.FromBytes(pub)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), k)
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	key, first := newTestPacket(t, 1000)
	_, err = s.Upsert(ctx, first)
	require.NoError(t, err)

	existed, err := s.Remove(ctx, key)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = s.Remove(ctx, key)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestIter(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, p1 := newTestPacket(t, 100)
	_, p2 := newTestPacket(t, 200)
	_, err = s.Upsert(ctx, p1)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, p2)
	require.NoError(t, err)

	count := 0
	err = s.Iter(ctx, func(sp *pkarr.SignedPacket, decErr error) error {
		require.NoError(t, decErr)
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
