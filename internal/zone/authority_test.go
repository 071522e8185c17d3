package zone

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store used so zone tests don't depend on the
// store package's gorm/sqlite backend.
type fakeStore struct {
	rows map[string]*pkarr.SignedPacket
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[string]*pkarr.SignedPacket{}} }

func (s *fakeStore) Upsert(_ context.Context, packet *pkarr.SignedPacket) (bool, error) {
	k := string(packet.PublicKey.Bytes())
	if existing, ok := s.rows[k]; ok && existing.TimestampMicros >= packet.TimestampMicros {
		return false, nil
	}
	s.rows[k] = packet
	return true, nil
}

func (s *fakeStore) Get(_ context.Context, key zkey.PublicKey) (*pkarr.SignedPacket, error) {
	p, ok := s.rows[string(key.Bytes())]
	if !ok {
		return nil, errNotImplemented
	}
	return p, nil
}

func (s *fakeStore) Iter(_ context.Context, fn func(*pkarr.SignedPacket, error) error) error {
	for _, p := range s.rows {
		if err := fn(p, nil); err != nil {
			return err
		}
	}
	return nil
}

func newTestAuthority(t *testing.T, st Store) (*NodeAuthority, dnswire.Name) {
	t.Helper()
	origin := dnswire.ParseName("irohdns.example.")
	static := NewStaticZone(1, []OriginConfig{
		{
			Origin: origin,
			SOA: SOAParams{
				MName: dnswire.ParseName("ns1.irohdns.example."),
				RName: dnswire.ParseName("hostmaster.irohdns.example."),
			},
			SOATTL: 3600,
			NSTTL:  3600,
			ATTL:   300,
		},
	})
	auth, err := New(Config{
		Store:         st,
		Static:        static,
		PrimaryOrigin: origin,
		Serial:        1,
		MaxZones:      10,
	}, nil)
	require.NoError(t, err)
	return auth, origin
}

func publishKey(t *testing.T, ts uint64) (zkey.PublicKey, ed25519.PrivateKey, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k, err := zkey.FromBytes(pub)
	require.NoError(t, err)

	owner := dnswire.Join("_iroh_node", dnswire.Join(k.String(), dnswire.Root))
	msg := &dnswire.Message{Answers: []dnswire.Record{dnswire.NewTXT(owner, 30, "node="+k.String())}}
	sp, err := pkarr.Encode(priv, k, ts, msg)
	require.NoError(t, err)
	return k, priv, sp.RelayBytes()
}

func TestUpsertThenResolveTXT(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)
	ctx := context.Background()

	key, _, body := publishKey(t, 1000)
	updated, err := auth.Upsert(ctx, body, key, PacketSourcePkarrPublish)
	require.NoError(t, err)
	require.True(t, updated)

	queryName := dnswire.Join("_iroh_node", dnswire.Join(key.String(), origin))
	res := auth.Lookup(ctx, queryName, dnswire.TypeTXT)
	require.Equal(t, dnswire.RcodeNoError, res.Rcode)
	require.Len(t, res.Records, 1)
	require.True(t, res.Records[0].Name.Equal(queryName))
	require.Equal(t, uint32(1), auth.Serial())
}

func TestStaleTimestampRejected(t *testing.T) {
	st := newFakeStore()
	auth, _ := newTestAuthority(t, st)
	ctx := context.Background()

	key, priv, body := publishKey(t, 1000)
	_, err := auth.Upsert(ctx, body, key, PacketSourcePkarrPublish)
	require.NoError(t, err)

	owner := dnswire.Join("_iroh_node", dnswire.Join(key.String(), dnswire.Root))
	msg := &dnswire.Message{Answers: []dnswire.Record{dnswire.NewTXT(owner, 30, "node=stale")}}
	stale, err := pkarr.Encode(priv, key, 999, msg)
	require.NoError(t, err)

	updated, err := auth.Upsert(ctx, stale.RelayBytes(), key, PacketSourcePkarrPublish)
	require.NoError(t, err)
	require.False(t, updated)
}

func TestUnknownKeyNXDomain(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k, err := zkey.FromBytes(pub)
	require.NoError(t, err)

	name := dnswire.Join("_iroh_node", dnswire.Join(k.String(), origin))
	res := auth.Lookup(context.Background(), name, dnswire.TypeTXT)
	require.Equal(t, dnswire.RcodeNXDomain, res.Rcode)
}

func TestLookupFoldsCaseBelowApex(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)
	ctx := context.Background()

	key, _, body := publishKey(t, 1000)
	_, err := auth.Upsert(ctx, body, key, PacketSourcePkarrPublish)
	require.NoError(t, err)

	// Sub-apex label and key label differing only in case still resolve.
	queryName := dnswire.Join("_IROH_Node", dnswire.Join(strings.ToUpper(key.String()), origin))
	res := auth.Lookup(ctx, queryName, dnswire.TypeTXT)
	require.Equal(t, dnswire.RcodeNoError, res.Rcode)
	require.Len(t, res.Records, 1)
	require.True(t, res.Records[0].Name.Equal(queryName))
}

func TestSOAFromStaticZone(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)

	res := auth.Search(context.Background(), origin, dnswire.TypeSOA)
	require.Equal(t, dnswire.RcodeNoError, res.Rcode)
	require.Len(t, res.Records, 1)
	require.Equal(t, dnswire.TypeSOA, res.Records[0].Type)
}

func TestAXFRAlwaysRefused(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)

	res := auth.Search(context.Background(), origin, dnswire.TypeAXFR)
	require.Equal(t, dnswire.RcodeRefused, res.Rcode)
}

func TestCrossOriginIsolation(t *testing.T) {
	st := newFakeStore()
	origin1 := dnswire.ParseName("irohdns.example.")
	origin2 := dnswire.ParseName("other.example.")
	static := NewStaticZone(1, []OriginConfig{{Origin: origin1, SOATTL: 3600}, {Origin: origin2, SOATTL: 3600}})
	auth, err := New(Config{
		Store:             st,
		Static:            static,
		PrimaryOrigin:     origin1,
		AdditionalOrigins: []dnswire.Name{origin2},
		Serial:            7,
		MaxZones:          10,
	}, nil)
	require.NoError(t, err)

	key, _, body := publishKey(t, 1000)
	_, err = auth.Upsert(context.Background(), body, key, PacketSourcePkarrPublish)
	require.NoError(t, err)

	name1 := dnswire.Join("_iroh_node", dnswire.Join(key.String(), origin1))
	name2 := dnswire.Join("_iroh_node", dnswire.Join(key.String(), origin2))

	res1 := auth.Lookup(context.Background(), name1, dnswire.TypeTXT)
	res2 := auth.Lookup(context.Background(), name2, dnswire.TypeTXT)

	require.Equal(t, dnswire.RcodeNoError, res1.Rcode)
	require.Equal(t, dnswire.RcodeNoError, res2.Rcode)
	require.True(t, res1.Records[0].Name.Equal(name1))
	require.True(t, res2.Records[0].Name.Equal(name2))
	require.Equal(t, res1.Records[0].RData, res2.Records[0].RData)
}

func TestSerialAlwaysMatchesConfigured(t *testing.T) {
	st := newFakeStore()
	auth, origin := newTestAuthority(t, st)

	res := auth.Search(context.Background(), origin, dnswire.TypeSOA)
	require.Len(t, res.Records, 1)
	require.Equal(t, dnswire.TypeSOA, res.Records[0].Type)
	require.Equal(t, uint32(1), auth.Serial())
}
