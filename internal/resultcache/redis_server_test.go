package resultcache_test

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// redisServer speaks just enough RESP2 for the cache: PING, GET, SET (with EX
// or PX), and DEL. Everything else, HELLO included, gets an error reply so
// the client falls back to RESP2.
type redisServer struct {
	ln net.Listener

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	cmds []string
}

func startRedisServer(t *testing.T) *redisServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &redisServer{
		ln:   ln,
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				srv.serve(conn)
			}()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	return srv
}

func (s *redisServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *redisServer) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *redisServer) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *redisServer) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *redisServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

func (s *redisServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		s.dispatch(w, args)
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *redisServer) dispatch(w *bufio.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprint(w, "-ERR empty command\r\n")
		return
	}
	name := strings.ToUpper(args[0])
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, name)

	switch name {
	case "PING":
		fmt.Fprint(w, "+PONG\r\n")
	case "GET":
		if len(args) != 2 {
			fmt.Fprint(w, "-ERR wrong number of arguments for 'get'\r\n")
			return
		}
		v, ok := s.data[args[1]]
		if !ok {
			fmt.Fprint(w, "$-1\r\n")
			return
		}
		fmt.Fprintf(w, "$%d\r\n%s\r\n", len(v), v)
	case "SET":
		if len(args) < 3 {
			fmt.Fprint(w, "-ERR wrong number of arguments for 'set'\r\n")
			return
		}
		s.data[args[1]] = args[2]
		delete(s.ttls, args[1])
		if len(args) == 5 {
			n, err := strconv.Atoi(args[4])
			if err != nil {
				fmt.Fprint(w, "-ERR value is not an integer\r\n")
				return
			}
			switch strings.ToUpper(args[3]) {
			case "EX":
				s.ttls[args[1]] = time.Duration(n) * time.Second
			case "PX":
				s.ttls[args[1]] = time.Duration(n) * time.Millisecond
			}
		}
		fmt.Fprint(w, "+OK\r\n")
	case "DEL":
		removed := 0
		for _, key := range args[1:] {
			if _, ok := s.data[key]; ok {
				delete(s.data, key)
				delete(s.ttls, key)
				removed++
			}
		}
		fmt.Fprintf(w, ":%d\r\n", removed)
	default:
		fmt.Fprintf(w, "-ERR unknown command '%s'\r\n", args[0])
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return strings.Fields(line), nil
	}
	count, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, count)
	for range count {
		header, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(header, "$") {
			return nil, errors.New("expected bulk string")
		}
		size, err := strconv.Atoi(header[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
