// Package dnsserver implements the authoritative DNS front end: parallel
// SO_REUSEPORT UDP listeners feeding a worker pool, a TCP listener with a
// short idle timeout, and dispatch through the origin catalog.
package dnsserver

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/pkarrdns/pkarrdns/internal/metrics"
	"github.com/pkarrdns/pkarrdns/internal/perr"
	"github.com/pkarrdns/pkarrdns/internal/state"
	"github.com/pkarrdns/pkarrdns/internal/zone"
)

var logger = log.PrefixedLog("dnsserver")

const (
	// maxUDPPayload is the pre-EDNS response budget; larger answers are
	// truncated so the client retries over TCP.
	maxUDPPayload = 512
	// tcpIdleTimeout closes a TCP connection that has gone quiet.
	tcpIdleTimeout = 1 * time.Second

	udpQueueDepth = 10000
)

type udpTask struct {
	addr net.Addr
	data []byte
	conn net.PacketConn
}

// Server binds UDP and TCP on one address and answers every query through
// the shared AppState's catalog.
type Server struct {
	addr        string
	st          *state.AppState
	workerCount int
	udpQueue    chan udpTask
}

// New builds a Server. The worker pool is sized off the CPU count: eight
// workers per CPU, alongside one UDP listener per CPU.
func New(addr string, st *state.AppState) *Server {
	return &Server{
		addr:        addr,
		st:          st,
		workerCount: runtime.NumCPU() * 8,
		udpQueue:    make(chan udpTask, udpQueueDepth),
	}
}

// Run starts every listener and blocks until ctx is cancelled. On cancel
// both listeners stop accepting and in-flight requests drain best-effort.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = setReusePort(fd)
			})
		},
	}

	var wg sync.WaitGroup
	var closers []io.Closer

	// Parallel UDP listeners, one per core, all bound to the same port.
	for i := 0; i < runtime.NumCPU(); i++ {
		conn, err := lc.ListenPacket(ctx, "udp", s.addr)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return perr.New(perr.BindError, "dnsserver.Run", err)
		}
		closers = append(closers, conn)

		wg.Add(1)
		go func(conn net.PacketConn) {
			defer wg.Done()
			s.udpReadLoop(ctx, conn)
		}(conn)
	}

	tcpListener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return perr.New(perr.BindError, "dnsserver.Run", err)
	}
	closers = append(closers, tcpListener)

	logger.WithField("addr", s.addr).
		WithField("udp_listeners", runtime.NumCPU()).
		WithField("workers", s.workerCount).
		Info("dns server listening")

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.udpWorker(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tcpAcceptLoop(ctx, tcpListener)
	}()

	<-ctx.Done()
	for _, c := range closers {
		_ = c.Close()
	}
	wg.Wait()
	return nil
}

func (s *Server) udpReadLoop(ctx context.Context, conn net.PacketConn) {
	buf := make([]byte, maxUDPPayload)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.udpQueue <- udpTask{addr: addr, data: data, conn: conn}:
		default:
			// Queue full: shed load rather than block the read loop.
		}
	}
}

func (s *Server) udpWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.udpQueue:
			s.handlePacket(ctx, "udp", task.data, func(resp []byte) error {
				_, err := task.conn.WriteTo(resp, task.addr)
				return err
			})
		}
	}
}

func (s *Server) tcpAcceptLoop(ctx context.Context, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go s.handleTCPConn(ctx, conn)
	}
}

func (s *Server) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(tcpIdleTimeout)); err != nil {
			return
		}
		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		msgLen := int(lenBuf[0])<<8 | int(lenBuf[1])
		data := make([]byte, msgLen)
		if _, err := io.ReadFull(conn, data); err != nil {
			return
		}

		s.handlePacket(ctx, "tcp", data, func(resp []byte) error {
			framed := make([]byte, 0, len(resp)+2)
			framed = append(framed, byte(len(resp)>>8), byte(len(resp)))
			framed = append(framed, resp...)
			_, err := conn.Write(framed)
			return err
		})
	}
}

// handlePacket decodes one query, answers it through the catalog, and
// writes the response via sendFn. Malformed queries that cannot even yield
// a message ID are dropped; anything parseable always gets a response.
func (s *Server) handlePacket(ctx context.Context, protocol string, data []byte, sendFn func([]byte) error) {
	start := time.Now()

	query, err := dnswire.Decode(data)
	if err != nil {
		if len(data) < 12 {
			logger.WithError(err).Debug("dropping unparseable query")
			return
		}
		// The header still yields the ID: answer with an empty question
		// section, which Answer turns into FORMERR.
		query = &dnswire.Message{Header: dnswire.Header{ID: uint16(data[0])<<8 | uint16(data[1])}}
	}

	resp := zone.Answer(ctx, s.st.Catalog, query)

	wire := resp.Encode()
	if protocol == "udp" && len(wire) > maxUDPPayload {
		resp.Header.TC = true
		resp.Answers = nil
		resp.Authority = nil
		resp.Additional = nil
		wire = resp.Encode()
	}

	qtype := "NONE"
	if len(query.Questions) > 0 {
		qtype = query.Questions[0].Type.String()
	}
	metrics.DNSQueriesTotal.WithLabelValues(qtype, rcodeLabel(resp.Header.Rcode), protocol).Inc()
	metrics.DNSQueryDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())

	if err := sendFn(wire); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.WithError(err).Debug("failed to write response")
	}
}

func rcodeLabel(rc dnswire.Rcode) string {
	switch rc {
	case dnswire.RcodeNoError:
		return "NOERROR"
	case dnswire.RcodeFormErr:
		return "FORMERR"
	case dnswire.RcodeServFail:
		return "SERVFAIL"
	case dnswire.RcodeNXDomain:
		return "NXDOMAIN"
	case dnswire.RcodeNotImp:
		return "NOTIMP"
	case dnswire.RcodeRefused:
		return "REFUSED"
	default:
		return "OTHER"
	}
}
