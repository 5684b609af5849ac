// Package transport provides a thin UDP datagram wrapper used to carry
// VLE-encoded atoms between peers: bind a socket, send a datagram to an
// address, and receive the next datagram with an optional read deadline.
// It performs no retransmission, reordering, or acknowledgement — the
// sequence engine's placement algorithm and orphan buffer are designed to
// tolerate exactly that kind of unreliable, reordering transport.
package transport

import (
	"fmt"
	"net"
	"time"
)

// maxDatagramSize bounds a single read; an omnisync atom's VLE encoding is
// at most 42 bytes (pkg/codec.PackVLE), so this leaves generous headroom.
const maxDatagramSize = 4096

// Socket wraps a bound UDP connection.
type Socket struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket listening on the given port (0 for the kernel to
// pick an ephemeral one).
func Bind(port int) (*Socket, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind port %d: %w", port, err)
	}
	return &Socket{conn: conn}, nil
}

// LocalAddr returns the address the socket is bound to, including the
// kernel-assigned port when Bind was called with port 0.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }

// Send transmits data as a single datagram to addr.
func (s *Socket) Send(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return err
}

// Recv blocks until the next datagram arrives and returns its payload and
// sender address. Each call returns a newly allocated slice.
func (s *Socket) Recv() ([]byte, *net.UDPAddr, error) {
	return s.recv(0)
}

// RecvTimeout behaves like Recv but returns a deadline-exceeded error if
// no datagram arrives within timeout.
func (s *Socket) RecvTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	return s.recv(timeout)
}

func (s *Socket) recv(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	} else {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, nil, fmt.Errorf("transport: clear read deadline: %w", err)
		}
	}

	buf := make([]byte, maxDatagramSize)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: receive: %w", err)
	}
	return buf[:n], addr, nil
}
