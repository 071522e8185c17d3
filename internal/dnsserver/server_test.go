package dnsserver

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/state"
	"github.com/pkarrdns/pkarrdns/internal/store"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/pkarrdns/pkarrdns/internal/zone"
	"github.com/stretchr/testify/require"
)

var testOrigin = dnswire.ParseName("irohdns.example.")

// freePort grabs an ephemeral port so all SO_REUSEPORT listeners can share
// one concrete address.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func startTestServer(t *testing.T) (string, *state.AppState) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	static := zone.NewStaticZone(1, []zone.OriginConfig{{
		Origin: testOrigin,
		SOA: zone.SOAParams{
			MName: dnswire.ParseName("ns1.irohdns.example."),
			RName: dnswire.ParseName("hostmaster.irohdns.example."),
		},
		SOATTL: 3600,
		NSTTL:  3600,
		ATTL:   300,
	}})
	auth, err := zone.New(zone.Config{
		Store:         st,
		Static:        static,
		PrimaryOrigin: testOrigin,
		Serial:        1,
		MaxZones:      100,
	}, nil)
	require.NoError(t, err)
	appState := state.New(auth, zone.NewCatalog(auth), st)

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = New(addr, appState).Run(ctx)
	}()
	waitForUDP(t, addr)
	return addr, appState
}

// waitForUDP polls until the server answers a SOA query.
func waitForUDP(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := udpExchange(addr, soaQuery(1)); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dns server at %s never became ready", addr)
}

func soaQuery(id uint16) *dnswire.Message {
	return &dnswire.Message{
		Header:    dnswire.Header{ID: id, RD: true},
		Questions: []dnswire.Question{{Name: testOrigin, Type: dnswire.TypeSOA, Class: dnswire.ClassIN}},
	}
}

func udpExchange(addr string, query *dnswire.Message) (*dnswire.Message, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(500 * time.Millisecond))

	if _, err := conn.Write(query.Encode()); err != nil {
		return nil, err
	}
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return dnswire.Decode(buf[:n])
}

func tcpExchange(t *testing.T, addr string, query *dnswire.Message) *dnswire.Message {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	wire := query.Encode()
	framed := append([]byte{byte(len(wire) >> 8), byte(len(wire))}, wire...)
	_, err = conn.Write(framed)
	require.NoError(t, err)

	lenBuf := make([]byte, 2)
	_, err = io.ReadFull(conn, lenBuf)
	require.NoError(t, err)
	respLen := int(lenBuf[0])<<8 | int(lenBuf[1])
	respBuf := make([]byte, respLen)
	_, err = io.ReadFull(conn, respBuf)
	require.NoError(t, err)

	msg, err := dnswire.Decode(respBuf)
	require.NoError(t, err)
	return msg
}

func TestUDPSOAQuery(t *testing.T) {
	addr, _ := startTestServer(t)

	resp, err := udpExchange(addr, soaQuery(42))
	require.NoError(t, err)
	require.Equal(t, uint16(42), resp.Header.ID)
	require.True(t, resp.Header.QR)
	require.Equal(t, dnswire.RcodeNoError, resp.Header.Rcode)
	require.Len(t, resp.Answers, 1)
	require.Equal(t, dnswire.TypeSOA, resp.Answers[0].Type)
}

func TestTCPPublishedTXTQuery(t *testing.T) {
	addr, appState := startTestServer(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	key, err := zkey.FromBytes(pub)
	require.NoError(t, err)

	owner := dnswire.Join("_iroh_node", dnswire.ParseName(key.String()))
	msg := &dnswire.Message{Answers: []dnswire.Record{dnswire.NewTXT(owner, 30, "node="+key.String())}}
	sp, err := pkarr.Encode(priv, key, 1000, msg)
	require.NoError(t, err)

	updated, err := appState.Authority.Upsert(context.Background(), sp.RelayBytes(), key, zone.PacketSourcePkarrPublish)
	require.NoError(t, err)
	require.True(t, updated)

	queryName := dnswire.Join("_iroh_node", dnswire.Join(key.String(), testOrigin))
	query := &dnswire.Message{
		Header:    dnswire.Header{ID: 5},
		Questions: []dnswire.Question{{Name: queryName, Type: dnswire.TypeTXT, Class: dnswire.ClassIN}},
	}
	resp := tcpExchange(t, addr, query)
	require.Equal(t, dnswire.RcodeNoError, resp.Header.Rcode)
	require.True(t, resp.Header.AA)
	require.Len(t, resp.Answers, 1)
	require.True(t, resp.Answers[0].Name.Equal(queryName))
}

func TestAXFRRefusedOverTCP(t *testing.T) {
	addr, _ := startTestServer(t)

	query := &dnswire.Message{
		Header:    dnswire.Header{ID: 6},
		Questions: []dnswire.Question{{Name: testOrigin, Type: dnswire.TypeAXFR, Class: dnswire.ClassIN}},
	}
	resp := tcpExchange(t, addr, query)
	require.Equal(t, dnswire.RcodeRefused, resp.Header.Rcode)
}

func TestUpdateOpcodeNotImplemented(t *testing.T) {
	addr, _ := startTestServer(t)

	query := soaQuery(8)
	query.Header.Opcode = dnswire.OpcodeUpdate
	resp, err := udpExchange(addr, query)
	require.NoError(t, err)
	require.Equal(t, dnswire.RcodeNotImp, resp.Header.Rcode)
}

func TestUnknownOriginRefused(t *testing.T) {
	addr, _ := startTestServer(t)

	query := &dnswire.Message{
		Header:    dnswire.Header{ID: 9},
		Questions: []dnswire.Question{{Name: dnswire.ParseName("elsewhere.test."), Type: dnswire.TypeA, Class: dnswire.ClassIN}},
	}
	resp, err := udpExchange(addr, query)
	require.NoError(t, err)
	require.Equal(t, dnswire.RcodeRefused, resp.Header.Rcode)
}
