package redistest

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mna/redislot/redistest/resp"
	"github.com/stretchr/testify/require"
)

// MockServer is a mock redis server.
type MockServer struct {
	Addr string

	done chan struct{}
	wg   sync.WaitGroup
	h    func(string, ...string) interface{}
	t    testing.TB
	l    net.Listener

	mu   sync.Mutex
	reqs [][]string
}

// StartMockServer creates and starts a mock redis server. The handler is
// called for each command received by the server. The returned value is
// encoded in the redis protocol and sent to the client. The server is
// closed automatically at the end of the test, but it can be closed
// earlier by calling Close.
func StartMockServer(t testing.TB, handler func(cmd string, args ...string) interface{}) *MockServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "net.Listen")

	s := &MockServer{
		Addr: l.Addr().String(),
		done: make(chan struct{}),
		h:    handler,
		t:    t,
		l:    l,
	}
	t.Cleanup(s.Close)
	go s.serve()
	return s
}

// Requests returns a copy of the requests received by the server so far,
// in order. Each request is the command name followed by its arguments.
func (s *MockServer) Requests() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := make([][]string, len(s.reqs))
	copy(reqs, s.reqs)
	return reqs
}

// Close closes the mock redis server. It is safe to call it more than
// once.
func (s *MockServer) Close() {
	select {
	case <-s.done:
		return
	default:
	}

	require.NoError(s.t, s.l.Close(), "Close listener")
	<-s.done
	exit := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(exit)
	}()

	// wait for a few seconds for connections to finish, otherwise fail
	select {
	case <-exit:
		return
	case <-time.After(5 * time.Second):
		s.t.Fatal("failed to cleanly stop the mock server")
	}
}

func (s *MockServer) serve() {
	defer close(s.done)
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *MockServer) serveConn(c net.Conn) {
	defer s.wg.Done()

	go func() {
		<-s.done
		c.Close()
	}()

	br := bufio.NewReader(c)
	for {
		req, err := resp.DecodeRequest(br)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.reqs = append(s.reqs, req)
		s.mu.Unlock()

		v := s.h(req[0], req[1:]...)
		if err := resp.Encode(c, v); err != nil {
			panic(err)
		}
	}
}
