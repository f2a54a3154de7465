package transport

import (
	"fmt"
	"net"
	"sync"
)

// DatagramConn is a connected datagram socket.
// This abstraction lets the publisher run against a mock in tests.
type DatagramConn interface {
	// Write sends b as one datagram to the connected peer.
	Write(b []byte) (int, error)

	// Close closes the socket.
	Close() error

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr
}

// Dialer opens datagram sockets.
type Dialer interface {
	Dial(address string) (DatagramConn, error)
}

// UDPDialer dials real UDP sockets.
type UDPDialer struct{}

// Dial resolves address ("ip:port") and connects a UDP socket to it.
func (UDPDialer) Dial(address string) (DatagramConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return conn, nil
}

// MockConn implements DatagramConn for testing.
type MockConn struct {
	mu sync.Mutex
	// Address is returned by RemoteAddr.
	Address *net.UDPAddr
	// WriteError, when set, fails every Write.
	WriteError error

	written [][]byte
	closed  bool
}

// NewMockConn creates a MockConn addressed at 127.0.0.1:5065.
func NewMockConn() *MockConn {
	return &MockConn{
		Address: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5065},
	}
}

// Write records a copy of b.
func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.written = append(m.written, append([]byte(nil), b...))
	return len(b), nil
}

// SetWriteError changes WriteError while the publisher is running.
func (m *MockConn) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteError = err
}

// Written returns the datagrams written so far.
func (m *MockConn) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// Close marks the connection as closed.
func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// RemoteAddr returns the mock peer address.
func (m *MockConn) RemoteAddr() net.Addr {
	return m.Address
}

// MockDialer implements Dialer for testing.
type MockDialer struct {
	// Conn is returned from Dial.
	Conn *MockConn
	// Error is returned by Dial if set.
	Error error
	// Addresses records every dialled address.
	Addresses []string
}

// Dial records address and returns Conn.
func (d *MockDialer) Dial(address string) (DatagramConn, error) {
	d.Addresses = append(d.Addresses, address)
	if d.Error != nil {
		return nil, d.Error
	}
	if d.Conn == nil {
		d.Conn = NewMockConn()
	}
	return d.Conn, nil
}
